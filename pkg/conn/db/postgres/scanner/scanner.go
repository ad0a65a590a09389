// Package scanner maps query results into Go values by column names.
package scanner

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

type Queryer interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// Scanner converts rows into []T.
//
// # example
//
//	events, err := scanner.New[domain.OutcomeEvent]().QueryAll(
//		ctx, pool,
//		`select "event_id"::text, "entity_id", "event_time", "recorded_at" from "outcome_event"`,
//	)
//
// # mapping rule
//
// When T is a struct, each column is mapped into the field
//
//  1. with tag `sql:"column_name"`,
//  2. or, named as same as the column,
//  3. or, named in CamelCase version of the column name.
//
// For example, column "event_time" goes to the field tagged `sql:"event_time"`,
// the field "event_time" or the field "EventTime", in this order.
//
// When T is a primitive, time.Time or []byte, the query should have exactly one column.
type Scanner[T any] interface {
	// ScanAll reads all rows and closes them.
	ScanAll(pgx.Rows) ([]T, error)

	// QueryAll sends the query and scans all rows of the result.
	QueryAll(context.Context, Queryer, string, ...any) ([]T, error)
}

func New[T any]() Scanner[T] {
	tval := reflect.TypeOf(*new(T))

	if tval.AssignableTo(reflect.TypeOf(time.Time{})) || tval.AssignableTo(reflect.TypeOf([]byte{})) {
		return &singleColumnScanner[T]{}
	}
	switch tval.Kind() {
	case
		reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return &singleColumnScanner[T]{}
	}

	s := &structScanner[T]{
		byTag:  map[string]reflect.StructField{},
		byName: map[string]reflect.StructField{},
	}
	for i := range tval.NumField() {
		f := tval.Field(i)
		s.byName[f.Name] = f
		if tag, ok := f.Tag.Lookup("sql"); ok {
			s.byTag[tag] = f
		}
	}
	return s
}

func camel(column string) string {
	b := &strings.Builder{}
	for _, w := range strings.Split(column, "_") {
		if len(w) == 0 {
			b.WriteString("_")
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}

type structScanner[T any] struct {
	byTag  map[string]reflect.StructField
	byName map[string]reflect.StructField
	mux    sync.Mutex
}

func (s *structScanner[T]) field(column string) (reflect.StructField, bool) {
	if f, ok := s.byTag[column]; ok {
		return f, true
	}
	if f, ok := s.byName[column]; ok {
		return f, true
	}
	f, ok := s.byName[camel(column)]
	return f, ok
}

func (s *structScanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	defer rows.Close()
	s.mux.Lock()
	defer s.mux.Unlock()

	fields := []reflect.StructField{}
	for _, fd := range rows.FieldDescriptions() {
		f, ok := s.field(string(fd.Name))
		if !ok {
			return nil, fmt.Errorf(
				`field for column "%s" (%s) is not found in type %T`,
				fd.Name, typeName(fd.DataTypeOID), *new(T),
			)
		}
		fields = append(fields, f)
	}

	ret := []T{}
	for rows.Next() {
		elem := new(T)
		re := reflect.ValueOf(elem).Elem()
		dest := make([]any, len(fields))
		for nth, f := range fields {
			dest[nth] = re.FieldByIndex(f.Index).Addr().Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ret = append(ret, *elem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *structScanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...any) ([]T, error) {
	rows, err := conn.Query(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	return s.ScanAll(rows)
}

type singleColumnScanner[T any] struct{}

func (s *singleColumnScanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	defer rows.Close()

	if cols := rows.FieldDescriptions(); len(cols) != 1 {
		return nil, fmt.Errorf("%d columns are queried for %T, but it takes only one", len(cols), *new(T))
	}

	ret := []T{}
	for rows.Next() {
		var elem T
		if err := rows.Scan(&elem); err != nil {
			return nil, err
		}
		ret = append(ret, elem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *singleColumnScanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...any) ([]T, error) {
	rows, err := conn.Query(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	return s.ScanAll(rows)
}

// names of column types appearing in the schema. for error messages.
var typeNames = map[uint32]string{
	pgtype.BoolOID:        "bool",
	pgtype.Int2OID:        "int2",
	pgtype.Int4OID:        "int4",
	pgtype.Int8OID:        "int8",
	pgtype.Float8OID:      "float8",
	pgtype.TextOID:        "text",
	pgtype.VarcharOID:     "varchar",
	pgtype.TextArrayOID:   "text[]",
	pgtype.UUIDOID:        "uuid",
	pgtype.JSONBOID:       "jsonb",
	pgtype.TimestamptzOID: "timestamptz",
}

func typeName(oid uint32) string {
	if n, ok := typeNames[oid]; ok {
		return n
	}
	return fmt.Sprintf("oid:%d", oid)
}
