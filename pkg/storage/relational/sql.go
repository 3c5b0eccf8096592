// Package relational implements storage.Relational over database/sql,
// supporting SQLite (default/dev) and Postgres, mirroring the
// teacher's dialect-aware SQL session service.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/CheKilo/bot-agent/pkg/storage"
)

// Dialect distinguishes the placeholder/quoting conventions needed to
// translate storage.Op into SQL text.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Backend is a storage.Relational backed by database/sql.
type Backend struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (and creates, if missing) a pure-Go SQLite database.
func OpenSQLite(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("relational: open sqlite: %w", err)
	}
	return &Backend{db: db, dialect: DialectSQLite}, nil
}

// OpenPostgres opens a Postgres database via lib/pq.
func OpenPostgres(dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: open postgres: %w", err)
	}
	return &Backend{db: db, dialect: DialectPostgres}, nil
}

// EnsureSchema creates the mid_term_memory table if it does not exist.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS mid_term_memory (
	id VARCHAR(255) PRIMARY KEY,
	bot_id VARCHAR(255) NOT NULL,
	user_id VARCHAR(255) NOT NULL,
	summary TEXT NOT NULL,
	keywords TEXT,
	raw_messages TEXT,
	message_count INTEGER NOT NULL DEFAULT 0,
	start_time TIMESTAMP,
	end_time TIMESTAMP,
	access_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mid_term_scope ON mid_term_memory(bot_id, user_id);
`
	_, err := b.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("relational: ensure schema: %w", err)
	}
	return nil
}

func (b *Backend) placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Execute runs a batch of operations, optionally inside one
// transaction.
func (b *Backend) Execute(ctx context.Context, ops []storage.Op, useTransaction bool) ([]storage.OpResult, error) {
	if !useTransaction {
		results := make([]storage.OpResult, len(ops))
		for i, op := range ops {
			results[i] = b.execOne(ctx, b.db, op)
		}
		return results, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("relational: begin tx: %w", err)
	}

	results := make([]storage.OpResult, len(ops))
	for i, op := range ops {
		results[i] = b.execOne(ctx, tx, op)
		if results[i].Err != nil {
			_ = tx.Rollback()
			return results, results[i].Err
		}
	}

	if err := tx.Commit(); err != nil {
		return results, fmt.Errorf("relational: commit: %w", err)
	}
	return results, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (b *Backend) execOne(ctx context.Context, ex execer, op storage.Op) storage.OpResult {
	switch {
	case op.Insert != nil:
		return b.execInsert(ctx, ex, op.Insert)
	case op.Update != nil:
		return b.execUpdate(ctx, ex, op.Update)
	case op.Delete != nil:
		return b.execDelete(ctx, ex, op.Delete)
	case op.Select != nil:
		return b.execSelect(ctx, ex, op.Select)
	default:
		return storage.OpResult{Err: fmt.Errorf("relational: empty op")}
	}
}

func (b *Backend) execInsert(ctx context.Context, ex execer, op *storage.InsertOp) storage.OpResult {
	cols := make([]string, 0, len(op.Row))
	for col := range op.Row {
		cols = append(cols, col)
	}
	phs := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		phs[i] = b.placeholder(i + 1)
		args[i] = toDriverValue(op.Row[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", op.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.OpResult{Err: fmt.Errorf("relational: insert into %s: %w", op.Table, err)}
	}
	affected, _ := res.RowsAffected()
	return storage.OpResult{RowsAffected: affected}
}

func (b *Backend) execUpdate(ctx context.Context, ex execer, op *storage.UpdateOp) storage.OpResult {
	var setClause string
	var args []any

	if op.RawSet != "" {
		setClause = b.rewritePlaceholders(op.RawSet, 0)
		for _, p := range op.RawSetParams {
			args = append(args, toDriverValue(p))
		}
	} else {
		cols := make([]string, 0, len(op.Set))
		for col := range op.Set {
			cols = append(cols, col)
		}
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = fmt.Sprintf("%s = %s", col, b.placeholder(len(args)+1))
			args = append(args, toDriverValue(op.Set[col]))
		}
		setClause = strings.Join(parts, ", ")
	}

	whereClause, whereArgs := b.renderWhere(op.Where, len(args))
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s", op.Table, setClause)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.OpResult{Err: fmt.Errorf("relational: update %s: %w", op.Table, err)}
	}
	affected, _ := res.RowsAffected()
	return storage.OpResult{RowsAffected: affected}
}

func (b *Backend) execDelete(ctx context.Context, ex execer, op *storage.DeleteOp) storage.OpResult {
	whereClause, args := b.renderWhere(op.Where, 0)
	query := fmt.Sprintf("DELETE FROM %s", op.Table)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.OpResult{Err: fmt.Errorf("relational: delete from %s: %w", op.Table, err)}
	}
	affected, _ := res.RowsAffected()
	return storage.OpResult{RowsAffected: affected}
}

func (b *Backend) execSelect(ctx context.Context, ex execer, op *storage.SelectOp) storage.OpResult {
	fields := "*"
	if len(op.Fields) > 0 {
		fields = strings.Join(op.Fields, ", ")
	}

	whereClause, args := b.renderWhere(op.Where, 0)
	query := fmt.Sprintf("SELECT %s FROM %s", fields, op.Table)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	if op.OrderBy != "" {
		query += " ORDER BY " + op.OrderBy
	}
	if op.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", op.Limit)
	}
	if op.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", op.Offset)
	}

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.OpResult{Err: fmt.Errorf("relational: select from %s: %w", op.Table, err)}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return storage.OpResult{Err: fmt.Errorf("relational: columns: %w", err)}
	}

	var result []storage.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return storage.OpResult{Err: fmt.Errorf("relational: scan: %w", err)}
		}
		row := make(storage.Row, len(cols))
		for i, col := range cols {
			row[col] = fromDriverValue(vals[i])
		}
		result = append(result, row)
	}
	return storage.OpResult{Rows: result}
}

func (b *Backend) renderWhere(w storage.Where, argOffset int) (string, []any) {
	if w.RawClause != "" {
		args := make([]any, len(w.RawParams))
		for i, p := range w.RawParams {
			args[i] = toDriverValue(p)
		}
		return b.rewritePlaceholders(w.RawClause, argOffset), args
	}
	if len(w.Conditions) == 0 {
		return "", nil
	}

	cols := make([]string, 0, len(w.Conditions))
	for col := range w.Conditions {
		cols = append(cols, col)
	}
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s = %s", col, b.placeholder(argOffset+i+1))
		args[i] = toDriverValue(w.Conditions[col])
	}
	return strings.Join(parts, " AND "), args
}

// rewritePlaceholders translates a raw clause written with '?'
// placeholders into the dialect's native placeholder syntax, renumbering
// from argOffset+1 for Postgres.
func (b *Backend) rewritePlaceholders(clause string, argOffset int) string {
	if b.dialect != DialectPostgres {
		return clause
	}
	var sb strings.Builder
	n := argOffset
	for _, r := range clause {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func toDriverValue(v storage.TypedValue) any {
	switch v.Kind {
	case "string":
		return v.Str
	case "int":
		return v.Int
	case "double":
		return v.Float
	case "bool":
		return v.Bool
	case "bytes":
		return v.Bytes
	case "timestamp":
		return v.Time
	default:
		return nil
	}
}

func fromDriverValue(v any) storage.TypedValue {
	switch t := v.(type) {
	case nil:
		return storage.NullValue()
	case string:
		return storage.StringValue(t)
	case []byte:
		return storage.BytesValue(t)
	case int64:
		return storage.IntValue(t)
	case float64:
		return storage.FloatValue(t)
	case bool:
		return storage.BoolValue(t)
	case time.Time:
		return storage.TimeValue(t)
	default:
		return storage.StringValue(fmt.Sprintf("%v", t))
	}
}

var _ storage.Relational = (*Backend)(nil)
