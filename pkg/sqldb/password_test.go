package sqldb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashEqual(t *testing.T) {
	h, err := NewPasswordHash("123", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, h.Equal("123"))
	assert.False(t, h.Equal("1232"))
	assert.Equal(t, bcrypt.MinCost, h.Cost())
	assert.NotContains(t, h.String(), "123$")
}

func TestPasswordHashIdentity(t *testing.T) {
	a, err := NewPasswordHash("123", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := NewPasswordHash("123", bcrypt.MinCost)
	require.NoError(t, err)

	// same plaintext, different salts
	assert.NotEqual(t, a.String(), b.String())
	assert.False(t, a == b)
	assert.True(t, a.Equal("123") && b.Equal("123"))
}

func TestPasswordHashDefaultCost(t *testing.T) {
	h, err := HashPassword("123")
	require.NoError(t, err)
	assert.Equal(t, DefaultPasswordCost, h.Cost())

	_, err = NewPasswordHash("123", bcrypt.MaxCost+1)
	assert.Error(t, err)
}

func TestParsePasswordHash(t *testing.T) {
	h, err := NewPasswordHash("secret", bcrypt.MinCost)
	require.NoError(t, err)

	parsed, err := ParsePasswordHash(h.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal("secret"))

	_, err = ParsePasswordHash("not-a-hash")
	assert.Error(t, err)

	var empty *PasswordHash
	assert.False(t, empty.Equal(""))
	assert.Equal(t, "", empty.String())
}

func TestPasswordHashJSON(t *testing.T) {
	h, err := NewPasswordHash("secret", bcrypt.MinCost)
	require.NoError(t, err)

	type payload struct {
		Password *PasswordHash `json:"password"`
	}
	data, err := json.Marshal(payload{Password: h})
	require.NoError(t, err)

	var back payload
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, h.String(), back.Password.String(), "decoding never re-hashes")
	assert.True(t, back.Password.Equal("secret"))
}

func TestPasswordHashPersists(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	u, err := f.users.FromDict(map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "123",
	})
	require.NoError(t, err)
	require.NotNil(t, u.Password)
	require.NoError(t, f.users.Add(ctx, f.pool, "DB2", u))
	require.NoError(t, f.pool.Commit())

	loaded, err := f.users.Get(ctx, f.pool, "DB2", Filters{"username": "alice"})
	require.NoError(t, err)
	require.NotNil(t, loaded.Password)
	assert.True(t, loaded.Password.Equal("123"))
	assert.False(t, loaded.Password.Equal("1232"))
	assert.Equal(t, u.Password.String(), loaded.Password.String())
	assert.False(t, loaded.Password == u.Password)
}
