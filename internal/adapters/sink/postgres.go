package sink

import (
	"context"
	"database/sql"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// PostgresSink records emitted events in a Postgres table for after-the-fact
// review. Inserts are idempotent via the unique (entity, signal, kind, ts)
// key, so a retried cycle never double-writes an event.
type PostgresSink struct {
	db        *sql.DB
	tableName string
}

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, tableName: table}
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) Emit(ctx context.Context, ev domain.Event) error {
	query := "INSERT INTO " + p.tableName +
		" (entity, signal, kind, severity, rationale, ts) VALUES ($1,$2,$3,$4,$5,$6)" +
		" ON CONFLICT (entity, signal, kind, ts) DO NOTHING"

	_, err := p.db.ExecContext(ctx, query,
		ev.Entity,
		ev.Signal,
		string(ev.Kind),
		string(ev.Severity),
		ev.Rationale,
		ev.Timestamp,
	)
	return err
}

var _ ports.ActionSink = (*PostgresSink)(nil)
