package store

import (
	"context"
	"database/sql"
)

// stubDB satisfies every query interface in this package. Unset hooks
// succeed without touching dest.
type stubDB struct {
	getFn    func(ctx context.Context, dest any, query string, args ...any) error
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
	execFn   func(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Narrow views of stubDB for call sites that take a single interface.
type (
	stubExecer = stubDB
	stubGetter = stubDB
)

var (
	_ DB = stubDB{}
	_ Tx = stubDB{}
)

func (s stubDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn != nil {
		return s.getFn(ctx, dest, query, args...)
	}
	return nil
}

func (s stubDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn != nil {
		return s.selectFn(ctx, dest, query, args...)
	}
	return nil
}

func (s stubDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.execFn != nil {
		return s.execFn(ctx, query, args...)
	}
	return stubResult{rows: 1}, nil
}

// stubResult reports rows as affected.
type stubResult struct {
	rows int64
	err  error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, r.err }
func (r stubResult) RowsAffected() (int64, error) { return r.rows, r.err }
