// Package catalog is the demo application served by the flowdb command: a
// small music catalog (genres, artists, albums) plus users, exposed as
// JSON resources on any of the configured databases.
package catalog

import (
	"github.com/dministrator/flowdb/pkg/sqldb"
	"github.com/uptrace/bun"
)

type Genre struct {
	bun.BaseModel `bun:"table:genres"`
	sqldb.Model

	Name    string    `bun:"name,notnull,unique" json:"name" validate:"required,max=120"`
	Artists []*Artist `bun:"rel:has-many,join:id=genre_id" json:"artists,omitempty"`
}

type Artist struct {
	bun.BaseModel `bun:"table:artists"`
	sqldb.Model

	Name    string `bun:"name,notnull" json:"name" validate:"required,max=120"`
	GenreID int64  `bun:"genre_id,notnull" json:"genre_id" validate:"required,gt=0"`
	Genre   *Genre `bun:"rel:belongs-to,join:genre_id=id" json:"genre,omitempty"`
}

type Album struct {
	bun.BaseModel `bun:"table:albums"`
	sqldb.Model

	Title    string  `bun:"title,notnull" json:"title" validate:"required,max=200"`
	Year     int     `bun:"year" json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	ArtistID int64   `bun:"artist_id,notnull" json:"artist_id" validate:"required,gt=0"`
	Artist   *Artist `bun:"rel:belongs-to,join:artist_id=id" json:"artist,omitempty"`
}

// User never serialises its password hash.
type User struct {
	bun.BaseModel `bun:"table:users"`
	sqldb.Model

	Username string              `bun:"username,notnull,unique" json:"username" validate:"required,alphanum,max=64"`
	Email    string              `bun:"email" json:"email,omitempty" validate:"omitempty,email"`
	Password *sqldb.PasswordHash `bun:"password,type:varchar(128)" json:"-" validate:"required"`
}
