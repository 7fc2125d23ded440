package sqldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedConnectionsAreIsolated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// add to DEFAULT only
	require.NoError(t, f.genres.Add(ctx, f.pool, "", &Genre{Name: "Rock"}))
	require.NoError(t, f.pool.Commit())

	n, err := f.genres.Count(ctx, f.pool, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.genres.Count(ctx, f.pool, "DB2", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// add to DB2 only
	require.NoError(t, f.genres.Add(ctx, f.pool, "DB2", &Genre{Name: "Rock2"}))
	require.NoError(t, f.pool.Commit())

	rock2, err := f.genres.Get(ctx, f.pool, "DB2", Filters{"name": "Rock2"})
	require.NoError(t, err)
	assert.Equal(t, "Rock2", rock2.Name)
	_, err = f.genres.Get(ctx, f.pool, "DEFAULT", Filters{"name": "Rock2"})
	assert.ErrorIs(t, err, ErrNotFound)

	// delete from DEFAULT only
	rock, err := f.genres.Get(ctx, f.pool, "", Filters{"name": "Rock"})
	require.NoError(t, err)
	require.NoError(t, f.genres.Delete(ctx, f.pool, rock))
	require.NoError(t, f.pool.Commit())

	left, err := f.genres.FilterBy(f.pool, "DEFAULT", nil).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
	other, err := f.genres.FilterBy(f.pool, "DB2", nil).All(ctx)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "Rock2", other[0].Name)
}

func TestCountGrowsPerRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i, name := range []string{"Rock", "Jazz", "Blues"} {
		require.NoError(t, f.genres.Add(ctx, f.pool, "DB2", &Genre{Name: name}))
		require.NoError(t, f.pool.Commit())
		n, err := f.genres.Count(ctx, f.pool, "DB2", nil)
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
		n, err = f.genres.Count(ctx, f.pool, "DEFAULT", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, name := range []string{"DEFAULT", "DB2"} {
		g, err := f.genres.Get(ctx, f.pool, name, Filters{"id": 424242})
		assert.Nil(t, g)
		require.ErrorIs(t, err, ErrNotFound)
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "object not found")
	}

	_, err := f.genres.FilterBy(f.pool, "", nil).First(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMultipleResults(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedMusic(t)

	_, err := f.artists.Get(ctx, f.pool, "", nil)
	assert.ErrorIs(t, err, ErrMultipleResults)

	_, err = f.artists.GetForUpdate(ctx, f.pool, "", Filters{"name": "Pixies"})
	assert.NoError(t, err)
}

func TestGetForUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, a1, _ := f.seedMusic(t)

	_, err := f.artists.GetForUpdate(ctx, f.pool, "", Filters{"id": int64(4242)})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "artists")

	_, err = f.artists.GetForUpdate(ctx, f.pool, "", Filters{"genre_id": a1.GenreID})
	assert.ErrorIs(t, err, ErrMultipleResults)

	locked, err := f.artists.GetForUpdate(ctx, f.pool, "", Filters{"id": a1.ID})
	require.NoError(t, err)
	locked.Name = "Nirvana (remastered)"
	require.NoError(t, f.artists.Update(ctx, f.pool, locked))
	require.NoError(t, f.pool.Commit())

	other := f.openPool(t)
	got, err := f.artists.Get(ctx, other, "", Filters{"id": a1.ID})
	require.NoError(t, err)
	assert.Equal(t, "Nirvana (remastered)", got.Name)
}

func TestUnknownFilterField(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.genres.Get(ctx, f.pool, "", Filters{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = f.genres.Count(ctx, f.pool, "", Filters{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = f.genres.FilterBy(f.pool, "", nil).OrderBy("-nope").All(ctx)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFilterByNull(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.users.Add(ctx, f.pool, "", &User{Username: "anon"}))
	pw, err := NewPasswordHash("123", 4)
	require.NoError(t, err)
	require.NoError(t, f.users.Add(ctx, f.pool, "", &User{Username: "alice", Password: pw}))
	require.NoError(t, f.pool.Commit())

	u, err := f.users.Get(ctx, f.pool, "", Filters{"password": nil})
	require.NoError(t, err)
	assert.Equal(t, "anon", u.Username)
}

func TestReadsAreIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedMusic(t)

	q := f.albums.FilterBy(f.pool, "", nil)
	first, err := q.All(ctx)
	require.NoError(t, err)
	second, err := q.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, titles(first), titles(second))

	n1, err := q.Count(ctx)
	require.NoError(t, err)
	n2, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Equal(t, 3, n1)
}

func TestQuerySliceOrderIter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var recs []*Genre
	for _, name := range []string{"G0", "G1", "G2", "G3", "G4"} {
		recs = append(recs, &Genre{Name: name})
	}
	require.NoError(t, f.genres.AddAll(ctx, f.pool, "DB2", recs))
	require.NoError(t, f.pool.Commit())
	for _, g := range recs {
		assert.NotZero(t, g.ID)
	}

	q := f.genres.FilterBy(f.pool, "DB2", nil)

	mid, err := q.Slice(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2"}, names(mid))

	tail, err := q.Slice(ctx, 3, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"G3", "G4"}, names(tail))

	// open-ended slices keep the requested order
	rest, err := q.OrderBy("-id").Slice(ctx, 1, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"G3", "G2", "G1", "G0"}, names(rest))

	empty, err := q.Slice(ctx, 2, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)

	desc, err := q.OrderBy("-id").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "G4", desc.Name)

	var seen []string
	for g, err := range q.Iter(ctx) {
		require.NoError(t, err)
		seen = append(seen, g.Name)
	}
	assert.Equal(t, []string{"G0", "G1", "G2", "G3", "G4"}, seen)
}

func TestUpdateAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rock := &Genre{Name: "Rock"}
	require.NoError(t, f.genres.Add(ctx, f.pool, "DB2", rock))
	require.NoError(t, f.pool.Commit())
	owner, ok := f.genres.Owner(f.pool, rock)
	require.True(t, ok)
	assert.Equal(t, "DB2", owner)

	created := rock.UpdatedAt
	rock.Name = "Rock'n'Roll"
	require.NoError(t, f.genres.Update(ctx, f.pool, rock))
	require.NoError(t, f.pool.Commit())
	assert.False(t, rock.UpdatedAt.Before(created))

	got, err := f.genres.Get(ctx, f.pool, "DB2", Filters{"id": rock.ID})
	require.NoError(t, err)
	assert.Equal(t, "Rock'n'Roll", got.Name)

	// never added through the pool
	err = f.genres.Update(ctx, f.pool, &Genre{Model: Model{ID: rock.ID}, Name: "x"})
	assert.ErrorIs(t, err, ErrDetached)

	ghost, err := f.genres.Get(ctx, f.pool, "DB2", Filters{"id": rock.ID})
	require.NoError(t, err)
	ghost.ID = 999999
	assert.ErrorIs(t, f.genres.Update(ctx, f.pool, ghost), ErrNotFound)

	require.NoError(t, f.genres.Delete(ctx, f.pool, got))
	require.NoError(t, f.pool.Commit())
	assert.ErrorIs(t, f.genres.Delete(ctx, f.pool, got), ErrDetached)

	n, err := f.genres.Count(ctx, f.pool, "DB2", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRawSQLNamedParams(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, nirvana, _ := f.seedMusic(t)

	rows, err := f.albums.RawSQL(ctx, f.pool, "",
		`SELECT albums.id, albums.title FROM albums
		 JOIN artists ON artists.id = albums.artist_id
		 WHERE albums.artist_id = :artist_id
		 ORDER BY albums.id DESC`,
		Params{"artist_id": nirvana.ID})
	require.NoError(t, err)
	var raw []string
	for rows.Next() {
		var id int64
		var title string
		require.NoError(t, rows.Scan(&id, &title))
		raw = append(raw, title)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	want, err := f.albums.FilterBy(f.pool, "", Filters{"artist_id": nirvana.ID}).OrderBy("-id").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nevermind", "Bleach"}, raw)
	assert.Equal(t, titles(want), raw)

	recs, err := f.albums.Raw(ctx, f.pool, "",
		"SELECT * FROM albums WHERE artist_id = :artist_id ORDER BY id DESC",
		Params{"artist_id": nirvana.ID})
	require.NoError(t, err)
	assert.Equal(t, raw, titles(recs))
}

func TestRelation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedMusic(t)

	albums, err := f.albums.FilterBy(f.pool, "", nil).Relation("Artist").All(ctx)
	require.NoError(t, err)
	require.Len(t, albums, 3)
	for _, a := range albums {
		require.NotNil(t, a.Artist)
		assert.Equal(t, a.ArtistID, a.Artist.ID)
	}

	g, err := f.genres.FilterBy(f.pool, "", Filters{"name": "Rock"}).Relation("Artists").First(ctx)
	require.NoError(t, err)
	assert.Len(t, g.Artists, 2)
}

func TestConstraintViolations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.users.Add(ctx, f.pool, "", &User{Username: "bob"}))
	err := f.users.Add(ctx, f.pool, "", &User{Username: "bob"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err), "got %v", err)
	assert.False(t, IsForeignKeyViolation(err))
	require.NoError(t, f.pool.Rollback())

	err = f.artists.Add(ctx, f.pool, "", &Artist{Name: "Nobody", GenreID: 424242})
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err), "got %v", err)
	require.NoError(t, f.pool.Rollback())
}

func titles(albums []*Album) []string {
	out := make([]string, len(albums))
	for i, a := range albums {
		out[i] = a.Title
	}
	return out
}

func names(genres []*Genre) []string {
	out := make([]string, len(genres))
	for i, g := range genres {
		out[i] = g.Name
	}
	return out
}
