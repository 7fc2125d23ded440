package sqldb

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// Dict maps every column of rec to its value. Password columns map to
// their encoded hash, or nil when unset.
func (m *Manager[T]) Dict(rec *T) map[string]any {
	if rec == nil {
		return nil
	}
	v := reflect.ValueOf(rec).Elem()
	out := make(map[string]any, len(m.schema.fields))
	for _, f := range m.schema.fields {
		fv := v.FieldByIndex(f.index)
		if f.Type == TypePassword {
			out[f.Column] = passwordValue(fv)
			continue
		}
		if fv.Kind() == reflect.Pointer && fv.IsNil() {
			out[f.Column] = nil
			continue
		}
		out[f.Column] = fv.Interface()
	}
	return out
}

func passwordValue(fv reflect.Value) any {
	var p *PasswordHash
	switch fv.Kind() {
	case reflect.Pointer:
		if fv.IsNil() {
			return nil
		}
		p = fv.Interface().(*PasswordHash)
	default:
		p = fv.Addr().Interface().(*PasswordHash)
	}
	if len(p.hash) == 0 {
		return nil
	}
	return p.String()
}

// FromDict builds a record from column values. Plaintext strings given
// for password columns are hashed with DefaultPasswordCost; an existing
// *PasswordHash is taken as is. Unknown keys fail with ErrUnknownField.
func (m *Manager[T]) FromDict(values map[string]any) (*T, error) {
	rec := new(T)
	if err := m.Apply(rec, values); err != nil {
		return nil, err
	}
	return rec, nil
}

// Apply sets the given columns of rec with the same conversions as
// FromDict. Keys are checked before anything is assigned.
func (m *Manager[T]) Apply(rec *T, values map[string]any) error {
	for column := range values {
		if err := m.schema.checkColumn(column); err != nil {
			return err
		}
	}
	v := reflect.ValueOf(rec).Elem()
	for column, raw := range values {
		f, _ := m.schema.Field(column)
		if err := assign(v.FieldByIndex(f.index), f, raw); err != nil {
			return fmt.Errorf("%s.%s: %w", m.schema.Table, column, err)
		}
	}
	return nil
}

func assign(dst reflect.Value, f Field, raw any) error {
	if raw == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if f.Type == TypePassword {
		var p *PasswordHash
		switch x := raw.(type) {
		case *PasswordHash:
			p = x
		case string:
			h, err := HashPassword(x)
			if err != nil {
				return err
			}
			p = h
		default:
			return fmt.Errorf("cannot use %T as password", raw)
		}
		if dst.Kind() == reflect.Pointer {
			dst.Set(reflect.ValueOf(p))
		} else {
			dst.Set(reflect.ValueOf(*p))
		}
		return nil
	}
	if f.Type == TypeTime {
		if s, ok := raw.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return err
			}
			raw = t
		}
	}

	target := dst
	if dst.Kind() == reflect.Pointer {
		target = reflect.New(dst.Type().Elem()).Elem()
	}
	rv := reflect.ValueOf(raw)
	switch {
	case rv.Type().AssignableTo(target.Type()):
		target.Set(rv)
	case isNumber(rv.Kind()) && isNumber(target.Kind()):
		if err := setNumber(target, rv); err != nil {
			return err
		}
	case rv.Type().ConvertibleTo(target.Type()) && rv.Kind() == target.Kind():
		target.Set(rv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot use %T as %s", raw, target.Type())
	}
	if dst.Kind() == reflect.Pointer {
		dst.Set(target.Addr())
	}
	return nil
}

// setNumber converts between numeric kinds, rejecting fractional values
// for integer targets and values outside the target's range.
func setNumber(dst, src reflect.Value) error {
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		switch {
		case src.CanInt():
			n = src.Int()
		case src.CanUint():
			u := src.Uint()
			if u > math.MaxInt64 {
				return fmt.Errorf("%d overflows %s", u, dst.Type())
			}
			n = int64(u)
		default:
			f := src.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return fmt.Errorf("%v is not a valid %s", f, dst.Type())
			}
			n = int64(f)
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		switch {
		case src.CanInt():
			i := src.Int()
			if i < 0 {
				return fmt.Errorf("%d is negative for %s", i, dst.Type())
			}
			n = uint64(i)
		case src.CanUint():
			n = src.Uint()
		default:
			f := src.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return fmt.Errorf("%v is not a valid %s", f, dst.Type())
			}
			n = uint64(f)
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("%d overflows %s", n, dst.Type())
		}
		dst.SetUint(n)
	default:
		var f float64
		switch {
		case src.CanInt():
			f = float64(src.Int())
		case src.CanUint():
			f = float64(src.Uint())
		default:
			f = src.Float()
		}
		if dst.OverflowFloat(f) {
			return fmt.Errorf("%v overflows %s", f, dst.Type())
		}
		dst.SetFloat(f)
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
