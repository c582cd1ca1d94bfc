// Package scan is the reflection-based aggregate mapper wire, conn, pool
// and tx treat as an external collaborator: its only contract is that it
// can flatten an aggregate into positional textual parameters and
// rebuild an aggregate from a row of textual columns. upq implements
// that minimal contract with reflect, registering gofrs/uuid and
// shopspring/decimal as the two non-builtin field codecs, the way
// ext/gofrs-uuid and ext/shopspring-numeric register scalar codecs for
// pgtype.
package scan

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/Usub-development/upq/result"
)

// Mode selects strict vs loose row decoding.
type Mode int

const (
	// Strict fails if the row carries a column the destination struct
	// does not declare.
	Strict Mode = iota
	// Loose drops unknown columns silently.
	Loose
)

// Flatten converts an aggregate struct into positional textual
// parameters, in field declaration order, skipping fields tagged
// `upq:"-"`. NULL is represented by a nil *string entry.
func Flatten(v any) ([]*string, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("scan: Flatten requires a struct, got %s", rv.Kind())
	}

	rt := rv.Type()
	params := make([]*string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if tag := field.Tag.Get("upq"); tag == "-" {
			continue
		}
		if !field.IsExported() {
			continue
		}
		s, isNil, err := encodeValue(rv.Field(i))
		if err != nil {
			return nil, fmt.Errorf("scan: field %s: %w", field.Name, err)
		}
		if isNil {
			params = append(params, nil)
		} else {
			params = append(params, &s)
		}
	}
	return params, nil
}

func encodeValue(v reflect.Value) (string, bool, error) {
	switch x := v.Interface().(type) {
	case uuid.UUID:
		return x.String(), false, nil
	case decimal.Decimal:
		return x.String(), false, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), false, nil
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return "", true, nil
		}
		return encodeValue(v.Elem())
	case reflect.String:
		return v.String(), false, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), false, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), false, nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), false, nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), false, nil
	case reflect.Slice:
		elems := make([]string, v.Len())
		for i := 0; i < v.Len(); i++ {
			s, isNil, err := encodeValue(v.Index(i))
			if err != nil {
				return "", false, err
			}
			if isNil {
				elems[i] = "NULL"
			} else {
				elems[i] = s
			}
		}
		return encodeArrayLiteral(elems), false, nil
	default:
		return "", false, fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

// encodeArrayLiteral is a local, simpler counterpart of wire.EncodeArray,
// kept here to avoid a scan -> wire import cycle (wire is a lower-level
// package than scan). It joins the elements as they are: unlike
// wire.EncodeArray it quotes and escapes nothing, so elements containing
// ',', '{', '}', '"', '\' or spaces are written verbatim.
func encodeArrayLiteral(elems []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e)
	}
	b.WriteByte('}')
	return b.String()
}

// One rebuilds a single aggregate from the first row of res, per
// a single expected row. Returns ok=false when no row matched.
// error (via ok=false) when res has no rows.
func One(res result.QueryResult, columns []string, dest any, mode Mode) (bool, error) {
	if !res.Ok {
		return false, fmt.Errorf("scan: %s", res.Message)
	}
	if len(res.Rows) == 0 {
		return false, nil
	}
	return true, Row(res.Rows[0], columns, dest, mode)
}

// All rebuilds a slice of aggregates, one per row of res.
func All(res result.QueryResult, columns []string, destSlice any, mode Mode) error {
	if !res.Ok {
		return fmt.Errorf("scan: %s", res.Message)
	}
	rv := reflect.ValueOf(destSlice)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("scan: All requires a pointer to a slice")
	}
	elemType := rv.Elem().Type().Elem()
	out := reflect.MakeSlice(rv.Elem().Type(), 0, len(res.Rows))
	for _, row := range res.Rows {
		elem := reflect.New(elemType)
		if err := Row(row, columns, elem.Interface(), mode); err != nil {
			return err
		}
		out = reflect.Append(out, elem.Elem())
	}
	rv.Elem().Set(out)
	return nil
}

// Row rebuilds one aggregate from a row of textual columns. In Strict
// mode an unknown column (more columns than the destination declares)
// is an error; in Loose mode extras are dropped.
// scenario S2.
func Row(row result.Row, columns []string, dest any, mode Mode) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("scan: Row requires a pointer to a struct")
	}
	rv = rv.Elem()
	rt := rv.Type()

	fieldByCol := make(map[string]int, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		name := strings.ToLower(rt.Field(i).Name)
		if tag := rt.Field(i).Tag.Get("upq"); tag != "" && tag != "-" {
			name = tag
		}
		fieldByCol[name] = i
	}

	for i, col := range columns {
		if i >= len(row) {
			return fmt.Errorf("scan: row has fewer columns than header")
		}
		fieldIdx, ok := fieldByCol[strings.ToLower(col)]
		if !ok {
			if mode == Strict {
				return fmt.Errorf("scan: strict decode: unexpected column %q", col)
			}
			continue
		}
		if err := decodeInto(rv.Field(fieldIdx), row[i]); err != nil {
			return fmt.Errorf("scan: column %q: %w", col, err)
		}
	}
	return nil
}

func decodeInto(field reflect.Value, text string) error {
	switch field.Interface().(type) {
	case uuid.UUID:
		u, err := uuid.FromString(text)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(u))
		return nil
	case decimal.Decimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	case time.Time:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(text)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		elems, err := decodeArrayLiteral(text)
		if err != nil {
			return err
		}
		slice := reflect.MakeSlice(field.Type(), len(elems), len(elems))
		for i, e := range elems {
			if err := decodeInto(slice.Index(i), e); err != nil {
				return err
			}
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

func decodeArrayLiteral(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("malformed array literal %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil, nil
	}
	return strings.Split(body, ","), nil
}
