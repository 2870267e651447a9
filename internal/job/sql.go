package job

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLAction executes a single statement, e.g. pruning expired password reset
// tokens or old chat history.
type SQLAction struct {
	DB      *sql.DB
	Query   string
	Args    []any
	Timeout time.Duration
}

// OpenSQLAction opens a SQLite database at dsn for query.
func OpenSQLAction(dsn, query string, timeout time.Duration) (*SQLAction, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLAction{DB: db, Query: query, Timeout: timeout}, nil
}

func (a *SQLAction) Run(ctx context.Context) Outcome {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	res, err := a.DB.ExecContext(ctx, a.Query, a.Args...)
	if err != nil {
		return Outcome{Succeeded: false, Output: "sql: " + err.Error()}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Outcome{Succeeded: true, Output: "statement executed"}
	}
	return Outcome{Succeeded: true, Output: fmt.Sprintf("%d rows affected", n)}
}

func (a *SQLAction) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
