package sqldb

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"
)

// FieldType is the semantic type of a column, independent of engine.
type FieldType int

const (
	TypeOther FieldType = iota
	TypeString
	TypeInteger
	TypeNumeric
	TypeBoolean
	TypeTime
	TypeBytes
	TypePassword
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeNumeric:
		return "numeric"
	case TypeBoolean:
		return "boolean"
	case TypeTime:
		return "time"
	case TypeBytes:
		return "bytes"
	case TypePassword:
		return "password"
	default:
		return "other"
	}
}

// Field describes one column of a record type.
type Field struct {
	Column     string
	GoName     string
	Type       FieldType
	PrimaryKey bool
	Nullable   bool

	index []int
}

// Schema is the descriptor of a registered record type: its table, its
// columns in declaration order and the constraints used by SyncDB.
type Schema struct {
	Table string
	Type  reflect.Type

	fields      []Field
	byColumn    map[string]int
	pk          int
	foreignKeys []string
}

// SchemaOption adjusts a schema at registration.
type SchemaOption func(*Schema)

// ForeignKey adds a table constraint emitted by SyncDB, for example
// "(genre_id) REFERENCES genres (id) ON DELETE CASCADE".
func ForeignKey(expr string) SchemaOption {
	return func(s *Schema) { s.foreignKeys = append(s.foreignKeys, expr) }
}

var (
	baseModelType = reflect.TypeOf(bun.BaseModel{})
	passwordType  = reflect.TypeOf(PasswordHash{})
	timeType      = reflect.TypeOf(time.Time{})
	nullTimeType  = reflect.TypeOf(sql.NullTime{})
	nullStrType   = reflect.TypeOf(sql.NullString{})
	nullIntType   = reflect.TypeOf(sql.NullInt64{})
	nullBoolType  = reflect.TypeOf(sql.NullBool{})
	nullFloatType = reflect.TypeOf(sql.NullFloat64{})
	bytesType     = reflect.TypeOf([]byte(nil))
	scannerType   = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType    = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// buildSchema reads the bun tags of a struct type the same way bun does
// for table and column names.
func buildSchema(typ reflect.Type, opts ...SchemaOption) (*Schema, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("sqldb: %s is not a struct", typ)
	}
	s := &Schema{
		Type:     typ,
		Table:    inflection.Plural(underscore(typ.Name())),
		byColumn: make(map[string]int),
		pk:       -1,
	}
	if err := s.collect(typ, nil); err != nil {
		return nil, err
	}
	if len(s.fields) == 0 {
		return nil, fmt.Errorf("sqldb: %s has no columns", typ)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Schema) collect(typ reflect.Type, parent []int) error {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		index := append(append([]int(nil), parent...), i)
		tag := f.Tag.Get("bun")

		if f.Type == baseModelType {
			if table := tagOption(tag, "table:"); table != "" {
				s.Table = table
			}
			continue
		}
		if !f.IsExported() || tag == "-" {
			continue
		}
		if tagOption(tag, "rel:") != "" || tagOption(tag, "m2m:") != "" {
			continue
		}
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct && !isLeaf(f.Type) {
			if err := s.collect(f.Type, index); err != nil {
				return err
			}
			continue
		}

		column, _, _ := strings.Cut(tag, ",")
		if column == "" {
			column = underscore(f.Name)
		}
		if _, dup := s.byColumn[column]; dup {
			return fmt.Errorf("sqldb: %s: duplicate column %q", s.Type, column)
		}
		fieldType, nullable := classify(f.Type)
		field := Field{
			Column:     column,
			GoName:     f.Name,
			Type:       fieldType,
			PrimaryKey: hasTagFlag(tag, "pk"),
			Nullable:   nullable || hasTagFlag(tag, "nullzero"),
			index:      index,
		}
		if field.PrimaryKey && s.pk < 0 {
			s.pk = len(s.fields)
		}
		s.byColumn[column] = len(s.fields)
		s.fields = append(s.fields, field)
	}
	return nil
}

// Fields returns the columns in declaration order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field looks a column up by name.
func (s *Schema) Field(column string) (Field, bool) {
	i, ok := s.byColumn[column]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// PrimaryKey returns the first primary key column.
func (s *Schema) PrimaryKey() (Field, bool) {
	if s.pk < 0 {
		return Field{}, false
	}
	return s.fields[s.pk], true
}

// Columns returns the column names in declaration order.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Column
	}
	return out
}

func (s *Schema) checkColumn(column string) error {
	if _, ok := s.byColumn[column]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, s.Table, column)
	}
	return nil
}

func classify(t reflect.Type) (FieldType, bool) {
	nullable := false
	if t.Kind() == reflect.Pointer {
		nullable = true
		t = t.Elem()
	}
	switch t {
	case passwordType:
		return TypePassword, nullable
	case timeType:
		return TypeTime, nullable
	case nullTimeType:
		return TypeTime, true
	case nullStrType:
		return TypeString, true
	case nullIntType:
		return TypeInteger, true
	case nullBoolType:
		return TypeBoolean, true
	case nullFloatType:
		return TypeNumeric, true
	case bytesType:
		return TypeBytes, true
	}
	switch t.Kind() {
	case reflect.String:
		return TypeString, nullable
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger, nullable
	case reflect.Float32, reflect.Float64:
		return TypeNumeric, nullable
	case reflect.Bool:
		return TypeBoolean, nullable
	}
	return TypeOther, nullable
}

// isLeaf reports whether an embedded struct is stored as a single column.
func isLeaf(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	p := reflect.PointerTo(t)
	return t.Implements(valuerType) || p.Implements(valuerType) || p.Implements(scannerType)
}

func tagOption(tag, prefix string) string {
	for _, part := range strings.Split(tag, ",") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), prefix); ok {
			return v
		}
	}
	return ""
}

func hasTagFlag(tag, flag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == flag {
			return true
		}
	}
	return false
}

// underscore converts a Go identifier to snake_case: GenreID -> genre_id,
// HTTPServer -> http_server.
func underscore(s string) string {
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
