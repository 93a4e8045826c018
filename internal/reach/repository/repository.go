package repository

import (
	"context"
	"errors"
	"time"

	"reachflow/internal/reach/domain"
	"reachflow/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx-backed ReachRepository.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository over the connection pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, status, owner_name, owner_absentee, enrichment_error, skiptrace_error, last_contacted_at, created_at, updated_at`

func (r *Repository) scanLead(ctx context.Context, row pgx.Row) (*LeadReachRecord, error) {
	var rec LeadReachRecord
	var status string
	err := row.Scan(&rec.ID, &status, &rec.OwnerName, &rec.OwnerAbsentee,
		&rec.EnrichmentError, &rec.SkipTraceError, &rec.LastContactedAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, err
	}
	rec.Status = domain.Status(status)

	points, err := r.contactPoints(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.ContactPoints = points
	return &rec, nil
}

func (r *Repository) contactPoints(ctx context.Context, leadID uuid.UUID) ([]ContactPoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lead_id, kind, value FROM reach_contact_points
		 WHERE lead_id = $1 ORDER BY created_at ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]ContactPoint, 0)
	for rows.Next() {
		var p ContactPoint
		if err := rows.Scan(&p.ID, &p.LeadID, &p.Kind, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Create inserts a new lead record with status "new".
func (r *Repository) Create(ctx context.Context, leadID uuid.UUID) (*LeadReachRecord, error) {
	if leadID == uuid.Nil {
		leadID = uuid.New()
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO reach_leads (id, status) VALUES ($1, $2)
		 RETURNING `+leadColumns,
		leadID, string(domain.StatusNew))
	return r.scanLead(ctx, row)
}

// GetByID fetches the record and its contact points.
func (r *Repository) GetByID(ctx context.Context, leadID uuid.UUID) (*LeadReachRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM reach_leads WHERE id = $1`, leadID)
	return r.scanLead(ctx, row)
}

// UpdateStatus compare-and-sets the status.
func (r *Repository) UpdateStatus(ctx context.Context, leadID uuid.UUID, from, to domain.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reach_leads SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		leadID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetOwnerIdentity stores the enrichment result's owner fields.
func (r *Repository) SetOwnerIdentity(ctx context.Context, leadID uuid.UUID, name string, absentee bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE reach_leads SET owner_name = $2, owner_absentee = $3, updated_at = now()
		 WHERE id = $1`,
		leadID, name, absentee)
	return err
}

// ReplaceContactPoints swaps the lead's contact points for the given set.
func (r *Repository) ReplaceContactPoints(ctx context.Context, leadID uuid.UUID, points []ContactPoint) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM reach_contact_points WHERE lead_id = $1`, leadID); err != nil {
		return err
	}

	for _, p := range points {
		id := p.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO reach_contact_points (id, lead_id, kind, value)
			 VALUES ($1, $2, $3, $4)`,
			id, leadID, p.Kind, p.Value); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SetStageError records the last failure reason for a stage.
func (r *Repository) SetStageError(ctx context.Context, leadID uuid.UUID, stage Stage, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE reach_leads SET `+stageErrorColumn(stage)+` = $2, updated_at = now() WHERE id = $1`,
		leadID, reason)
	return err
}

// ClearStageError clears the stage's failure reason after a successful retry.
func (r *Repository) ClearStageError(ctx context.Context, leadID uuid.UUID, stage Stage) error {
	_, err := r.pool.Exec(ctx, `UPDATE reach_leads SET `+stageErrorColumn(stage)+` = NULL, updated_at = now() WHERE id = $1`,
		leadID)
	return err
}

func stageErrorColumn(stage Stage) string {
	if stage == StageSkipTrace {
		return "skiptrace_error"
	}
	return "enrichment_error"
}

// TouchLastContacted updates the last-contacted bookkeeping.
func (r *Repository) TouchLastContacted(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE reach_leads SET last_contacted_at = $2, updated_at = now() WHERE id = $1`,
		leadID, at)
	return err
}

// UpsertInteraction inserts the outcome or overwrites an existing record for
// the same interaction id.
func (r *Repository) UpsertInteraction(ctx context.Context, interaction Interaction) error {
	occurredAt := interaction.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reach_interactions (id, lead_id, channel, outcome, note, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET channel = EXCLUDED.channel, outcome = EXCLUDED.outcome,
		     note = EXCLUDED.note, occurred_at = EXCLUDED.occurred_at,
		     updated_at = now()`,
		interaction.ID, interaction.LeadID, string(interaction.Channel),
		string(interaction.Outcome), interaction.Note, occurredAt)
	return err
}

// GetInteraction fetches an interaction by id.
func (r *Repository) GetInteraction(ctx context.Context, id uuid.UUID) (*Interaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lead_id, channel, outcome, note, occurred_at, created_at, updated_at
		 FROM reach_interactions WHERE id = $1`, id)
	return scanInteraction(row)
}

// ListInteractions returns the lead's interactions, newest first.
func (r *Repository) ListInteractions(ctx context.Context, leadID uuid.UUID) ([]Interaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lead_id, channel, outcome, note, occurred_at, created_at, updated_at
		 FROM reach_interactions WHERE lead_id = $1 ORDER BY occurred_at DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var i Interaction
		var channel, outcome string
		if err := rows.Scan(&i.ID, &i.LeadID, &channel, &outcome, &i.Note, &i.OccurredAt, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		i.Channel = domain.Channel(channel)
		i.Outcome = domain.Outcome(outcome)
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanInteraction(row pgx.Row) (*Interaction, error) {
	var i Interaction
	var channel, outcome string
	err := row.Scan(&i.ID, &i.LeadID, &channel, &outcome, &i.Note, &i.OccurredAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("interaction not found")
		}
		return nil, err
	}
	i.Channel = domain.Channel(channel)
	i.Outcome = domain.Outcome(outcome)
	return &i, nil
}

var _ ReachRepository = (*Repository)(nil)
