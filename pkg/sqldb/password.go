package sqldb

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used by HashPassword.
const DefaultPasswordCost = 12

// PasswordHash is a bcrypt hash stored in a string column. It compares
// against plaintext with Equal; the plaintext itself is never kept.
//
// Declare password columns as *PasswordHash with an explicit column
// type, for example
//
//	Password *sqldb.PasswordHash `bun:"password,type:varchar(128)"`
type PasswordHash struct {
	hash []byte
}

// NewPasswordHash hashes plain with the given bcrypt cost.
func NewPasswordHash(plain string, cost int) (*PasswordHash, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &PasswordHash{hash: h}, nil
}

// HashPassword hashes plain with DefaultPasswordCost.
func HashPassword(plain string) (*PasswordHash, error) {
	return NewPasswordHash(plain, DefaultPasswordCost)
}

// ParsePasswordHash wraps an already encoded bcrypt hash.
func ParsePasswordHash(encoded string) (*PasswordHash, error) {
	if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
		return nil, fmt.Errorf("parse password hash: %w", err)
	}
	return &PasswordHash{hash: []byte(encoded)}, nil
}

// Equal reports whether plain hashes to p. Comparing two hashes with each
// other is identity only: use pointer equality.
func (p *PasswordHash) Equal(plain string) bool {
	return p.Compare(plain) == nil
}

// Compare returns nil when plain matches the hash.
func (p *PasswordHash) Compare(plain string) error {
	if p == nil || len(p.hash) == 0 {
		return errors.New("empty password hash")
	}
	return bcrypt.CompareHashAndPassword(p.hash, []byte(plain))
}

// Cost returns the bcrypt work factor recorded in the hash.
func (p *PasswordHash) Cost() int {
	if p == nil {
		return 0
	}
	c, err := bcrypt.Cost(p.hash)
	if err != nil {
		return 0
	}
	return c
}

// String returns the encoded hash.
func (p *PasswordHash) String() string {
	if p == nil {
		return ""
	}
	return string(p.hash)
}

// Value implements driver.Valuer.
func (p *PasswordHash) Value() (driver.Value, error) {
	if p == nil || len(p.hash) == 0 {
		return nil, nil
	}
	return string(p.hash), nil
}

// Scan implements sql.Scanner.
func (p *PasswordHash) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		p.hash = nil
	case string:
		p.hash = []byte(v)
	case []byte:
		p.hash = append([]byte(nil), v...)
	default:
		return fmt.Errorf("scan password hash: unsupported type %T", src)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler with the encoded hash.
func (p *PasswordHash) MarshalText() ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return append([]byte(nil), p.hash...), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts an
// encoded hash, not a plaintext password.
func (p *PasswordHash) UnmarshalText(text []byte) error {
	if _, err := bcrypt.Cost(text); err != nil {
		return fmt.Errorf("parse password hash: %w", err)
	}
	p.hash = append([]byte(nil), text...)
	return nil
}
