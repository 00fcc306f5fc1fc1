package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresSink supplements the default file sink with a queryable record of
// adjustment/exploration events, grounded on the teacher's
// internal/persistence/postgres repository idiom. It is additive: the
// audit trail's correctness never depends on Postgres being reachable, so
// callers typically wrap this in a sink that also writes to FileSink.
type PostgresSink struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresSink(db *sqlx.DB, timeout time.Duration) *PostgresSink {
	return &PostgresSink{db: db, timeout: timeout}
}

func (s *PostgresSink) Write(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("pgaudit: marshal data: %w", err)
	}

	const query = `
		INSERT INTO risk_audit_events (ts, category, action, data)
		VALUES ($1, $2, $3, $4)`

	_, err = s.db.ExecContext(ctx, query,
		time.UnixMilli(e.Timestamp).UTC(), e.Category, e.Action, dataJSON)
	if err != nil {
		return fmt.Errorf("pgaudit: insert: %w", err)
	}
	return nil
}

// MultiSink fans a single Write out to several sinks, matching the common
// "file is the source of truth, Postgres is queryable supplement" pattern —
// a Postgres failure is logged by the caller but never blocks the file
// write that already succeeded.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Write(ctx context.Context, e Event) error {
	var firstErr error
	for _, sink := range m.Sinks {
		if err := sink.Write(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
