package escalation

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table escalations are written to when none is configured.
const DefaultTable = "ticket_escalations"

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres inserts each record as a row. Every field is stored as text.
type Postgres struct {
	db    execer
	table string
	close func()
}

// NewPostgres connects to dsn and creates the escalation table if missing.
func NewPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	p, err := newPostgres(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.close = pool.Close
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func newPostgres(db execer, table string) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}
	parts := strings.Split(table, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("invalid escalation table name %q", table)
		}
	}
	return &Postgres{db: db, table: pgx.Identifier(parts).Sanitize()}, nil
}

// EnsureSchema creates the escalation table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	cols := make([]string, len(Columns))
	for i, c := range Columns {
		cols[i] = pgx.Identifier{c}.Sanitize() + " TEXT NOT NULL DEFAULT ''"
	}
	sql := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(), %s)",
		p.table, strings.Join(cols, ", "),
	)
	if _, err := p.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create escalation table: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, rec Record) error {
	cols := make([]string, len(Columns))
	params := make([]string, len(Columns))
	args := make([]any, len(Columns))
	for i, v := range rec.Values() {
		cols[i] = pgx.Identifier{Columns[i]}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = v
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		p.table, strings.Join(cols, ", "), strings.Join(params, ", "))

	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
