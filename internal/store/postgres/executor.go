package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Executor runs whitelisted functions as stored procedures taking a single
// jsonb argument and returning jsonb. Parameters are always bound, never
// interpolated; the function name is quoted as an identifier.
type Executor struct {
	db DB
}

func NewExecutor(db DB) *Executor {
	return &Executor{db: db}
}

func (e *Executor) Execute(ctx context.Context, function string, params map[string]any) (json.RawMessage, error) {
	args, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("postgres.Executor.Execute: marshal params: %w", err)
	}

	query := fmt.Sprintf(`SELECT to_jsonb(%s($1::jsonb))`, pgx.Identifier{function}.Sanitize())

	var out []byte
	if err := e.db.QueryRow(ctx, query, args).Scan(&out); err != nil {
		return nil, fmt.Errorf("postgres.Executor.Execute: %s: %w", function, err)
	}

	return json.RawMessage(out), nil
}
