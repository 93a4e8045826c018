// Package outbox provides the offline mutation queue: a durable, ordered
// local store of workflow intents recorded while the device has no
// connectivity, and the drainer that replays them once connectivity returns.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MutationKind distinguishes the two queued intent types.
type MutationKind string

const (
	KindStatusTransition MutationKind = "status_transition"
	KindInteractionLog   MutationKind = "interaction_log"
)

// PendingMutation is a queued local intent. The locally generated id doubles
// as the idempotency token on replay, so a mutation partially applied before
// a connectivity drop is never double-applied.
type PendingMutation struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Kind      MutationKind
	Payload   json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

const schema = `
CREATE TABLE IF NOT EXISTS pending_mutations (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	lead_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS pending_mutations_lead_idx ON pending_mutations (lead_id, seq);
`

// Queue is the sqlite-backed mutation store. Mutations for one lead are
// strictly FIFO by insertion order; mutations for different leads are
// independent.
type Queue struct {
	db *sql.DB
}

// Open opens (or creates) the queue database at path.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; the queue is written from UI-driven calls
	// and the drainer concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Queue{db: db}, nil
}

// Close releases the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Append adds a mutation to the tail of its lead's lane.
func (q *Queue) Append(ctx context.Context, m PendingMutation) error {
	if m.ID == uuid.Nil {
		return errors.New("mutation id is required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO pending_mutations (id, lead_id, kind, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID.String(), m.LeadID.String(), string(m.Kind), string(m.Payload), m.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// NextForLead returns the oldest pending mutation for the lead, or nil when
// the lane is empty.
func (q *Queue) NextForLead(ctx context.Context, leadID uuid.UUID) (*PendingMutation, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, lead_id, kind, payload, created_at, attempts
		 FROM pending_mutations WHERE lead_id = ? ORDER BY seq ASC LIMIT 1`,
		leadID.String())
	return scanMutation(row)
}

// PendingLeads returns the distinct leads that currently have queued
// mutations, oldest lane first.
func (q *Queue) PendingLeads(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT lead_id FROM pending_mutations GROUP BY lead_id ORDER BY MIN(seq) ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		leads = append(leads, id)
	}
	return leads, rows.Err()
}

// Delete removes a mutation, either because it was applied or because it was
// discarded during reconciliation.
func (q *Queue) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM pending_mutations WHERE id = ?`, id.String())
	return err
}

// IncrementAttempts bumps the replay attempt counter for observability.
func (q *Queue) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE pending_mutations SET attempts = attempts + 1 WHERE id = ?`, id.String())
	return err
}

// CountForLead returns the number of queued mutations for the lead.
func (q *Queue) CountForLead(ctx context.Context, leadID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_mutations WHERE lead_id = ?`, leadID.String()).Scan(&n)
	return n, err
}

func scanMutation(row *sql.Row) (*PendingMutation, error) {
	var m PendingMutation
	var id, leadID, kind, payload, createdAt string
	if err := row.Scan(&id, &leadID, &kind, &payload, &createdAt, &m.Attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	parsedLead, err := uuid.Parse(leadID)
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}

	m.ID = parsedID
	m.LeadID = parsedLead
	m.Kind = MutationKind(kind)
	m.Payload = json.RawMessage(payload)
	m.CreatedAt = ts
	return &m, nil
}
