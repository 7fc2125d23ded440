package sqldb

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Model carries the columns most records share. Embed it by value:
//
//	type Genre struct {
//	    bun.BaseModel `bun:"table:genres"`
//	    sqldb.Model
//	    Name string `bun:"name,notnull"`
//	}
type Model struct {
	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

var _ bun.BeforeAppendModelHook = (*Model)(nil)

// BeforeAppendModel stamps the timestamps on insert and update.
func (m *Model) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
	case *bun.UpdateQuery:
		m.UpdatedAt = now
	}
	return nil
}
