package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execTag  string
	execErr  error
	queryErr error
	rows     [][]any
	row      []any
	rowErr   error

	calls []fakeCall
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, fakeCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	tag := f.execTag
	if tag == "" {
		tag = "INSERT 0 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, fakeCall{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{rows: f.rows, idx: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, fakeCall{sql: sql, args: args})
	return &fakeRow{values: f.row, err: f.rowErr}
}

func (f *fakeDB) lastCall() fakeCall {
	return f.calls[len(f.calls)-1]
}

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignAll(dest, r.values)
}

type fakeRows struct {
	rows   [][]any
	idx    int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assignAll(dest, r.rows[r.idx])
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx], nil
}

func assignAll(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan arity mismatch: got=%d want=%d", len(dest), len(values))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, val any) error {
	ok := false
	switch d := dest.(type) {
	case *uuid.UUID:
		var v uuid.UUID
		v, ok = val.(uuid.UUID)
		*d = v
	case *string:
		var v string
		v, ok = val.(string)
		*d = v
	case *[]byte:
		switch v := val.(type) {
		case []byte:
			*d, ok = v, true
		case string:
			*d, ok = []byte(v), true
		case nil:
			*d, ok = nil, true
		}
	case *time.Time:
		var v time.Time
		v, ok = val.(time.Time)
		*d = v
	case *int:
		var v int
		v, ok = val.(int)
		*d = v
	default:
		return fmt.Errorf("unsupported scan dest %T", dest)
	}
	if !ok {
		return fmt.Errorf("cannot assign %T to %T", val, dest)
	}
	return nil
}
