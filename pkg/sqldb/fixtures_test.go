package sqldb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type Genre struct {
	bun.BaseModel `bun:"table:genres"`
	Model
	Name    string    `bun:"name,notnull,unique"`
	Artists []*Artist `bun:"rel:has-many,join:id=genre_id"`
}

type Artist struct {
	bun.BaseModel `bun:"table:artists"`
	Model
	Name    string `bun:"name,notnull"`
	GenreID int64  `bun:"genre_id,notnull"`
	Genre   *Genre `bun:"rel:belongs-to,join:genre_id=id"`
}

type Album struct {
	bun.BaseModel `bun:"table:albums"`
	Model
	Title    string
	ArtistID int64   `bun:"artist_id,notnull"`
	Artist   *Artist `bun:"rel:belongs-to,join:artist_id=id"`
}

type User struct {
	bun.BaseModel `bun:"table:users"`
	Model
	Username string        `bun:"username,notnull,unique"`
	Email    string        `bun:"email"`
	Password *PasswordHash `bun:"password,type:varchar(128)"`
}

type fixture struct {
	uris    map[string]string
	reg     *Registry
	pool    *Pool
	genres  *Manager[Genre]
	artists *Manager[Artist]
	albums  *Manager[Album]
	users   *Manager[User]
}

// testURIs returns two named databases: postgres when both
// FLOWDB_TEST_POSTGRES_URL variables are set, sqlite files otherwise.
func testURIs(t *testing.T) map[string]string {
	t.Helper()
	pg, pg2 := os.Getenv("FLOWDB_TEST_POSTGRES_URL"), os.Getenv("FLOWDB_TEST_POSTGRES_URL_DB2")
	if pg != "" && pg2 != "" {
		return map[string]string{"DEFAULT": pg, "DB2": pg2}
	}
	dir := t.TempDir()
	return map[string]string{
		"DEFAULT": "sqlite://" + filepath.Join(dir, "default.db"),
		"DB2":     "sqlite://" + filepath.Join(dir, "db2.db"),
	}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := NewRegistry()
	f := &fixture{
		uris:    testURIs(t),
		reg:     reg,
		genres:  Register[Genre](reg),
		artists: Register[Artist](reg, ForeignKey("(genre_id) REFERENCES genres (id) ON DELETE CASCADE")),
		albums:  Register[Album](reg, ForeignKey("(artist_id) REFERENCES artists (id) ON DELETE CASCADE")),
		users:   Register[User](reg),
	}
	f.pool = f.openPool(t)
	require.NoError(t, CleanDB(ctx, f.pool, reg))
	require.NoError(t, SyncDB(ctx, f.pool, reg))
	t.Cleanup(func() {
		_ = CleanDB(context.Background(), f.pool, reg)
	})
	return f
}

// openPool opens another pool over the fixture's databases.
func (f *fixture) openPool(t *testing.T) *Pool {
	t.Helper()
	pool, err := Create(context.Background(), f.uris, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

// seedMusic commits one genre, two artists and three albums on DEFAULT.
func (f *fixture) seedMusic(t *testing.T) (rock *Genre, a1, a2 *Artist) {
	t.Helper()
	ctx := context.Background()
	rock = &Genre{Name: "Rock"}
	require.NoError(t, f.genres.Add(ctx, f.pool, "", rock))
	a1 = &Artist{Name: "Nirvana", GenreID: rock.ID}
	a2 = &Artist{Name: "Pixies", GenreID: rock.ID}
	require.NoError(t, f.artists.AddAll(ctx, f.pool, "", []*Artist{a1, a2}))
	require.NoError(t, f.albums.AddAll(ctx, f.pool, "", []*Album{
		{Title: "Bleach", ArtistID: a1.ID},
		{Title: "Doolittle", ArtistID: a2.ID},
		{Title: "Nevermind", ArtistID: a1.ID},
	}))
	require.NoError(t, f.pool.Commit())
	return rock, a1, a2
}
