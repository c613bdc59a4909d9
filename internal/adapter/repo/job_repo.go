package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whale-professor/Solvan/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Waiting jobs
// are delivered FIFO by enqueue time; Claim uses FOR UPDATE SKIP LOCKED so
// concurrent executor slots never pick the same row.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Enqueue inserts a new waiting job record.
func (r *JobRepositoryPG) Enqueue(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO vanity_jobs (id, owner_id, conversation_id, search_type, pattern, case_sensitive, status)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Request.OwnerID,
		job.Request.ConversationID,
		job.Request.SearchType,
		job.Request.Pattern,
		job.Request.CaseSensitive,
		domain.JobStatusWaiting,
	)
	return err
}

// Claim atomically marks the oldest waiting job active and returns it.
func (r *JobRepositoryPG) Claim(ctx context.Context) (*domain.Job, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM vanity_jobs
    WHERE status = 'waiting'
    ORDER BY created_at ASC, id ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE vanity_jobs
    SET status = 'active', updated_at = NOW()
    WHERE id IN (SELECT id FROM next_job)
    RETURNING id, owner_id, conversation_id, search_type, pattern, case_sensitive, status, diagnostic, created_at, updated_at
)
SELECT * FROM claimed;
`
	row := r.pool.QueryRow(ctx, query)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return job, nil
}

// Finish moves a non-terminal job to a terminal status. Returns false when
// the job was already settled or does not exist.
func (r *JobRepositoryPG) Finish(ctx context.Context, jobID string, status domain.JobStatus, diagnostic string) (bool, error) {
	query := `
UPDATE vanity_jobs
SET status = $2, diagnostic = $3, updated_at = NOW()
WHERE id = $1 AND status IN ('waiting', 'active');
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, diagnostic)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelWaiting cancels the job only while it is still waiting. The race
// against worker pickup resolves here: once claimed, the row no longer
// matches and the update affects zero rows.
func (r *JobRepositoryPG) CancelWaiting(ctx context.Context, jobID string) (bool, error) {
	query := `
UPDATE vanity_jobs
SET status = 'cancelled', updated_at = NOW()
WHERE id = $1 AND status = 'waiting';
`
	tag, err := r.pool.Exec(ctx, query, jobID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Depth returns point-in-time waiting/active counts.
func (r *JobRepositoryPG) Depth(ctx context.Context) (domain.Depth, error) {
	query := `
SELECT
    COUNT(*) FILTER (WHERE status = 'waiting'),
    COUNT(*) FILTER (WHERE status = 'active')
FROM vanity_jobs;
`
	var d domain.Depth
	if err := r.pool.QueryRow(ctx, query).Scan(&d.Waiting, &d.Active); err != nil {
		return domain.Depth{}, err
	}
	return d, nil
}

// FlushPending cancels every waiting and active job.
func (r *JobRepositoryPG) FlushPending(ctx context.Context) ([]string, error) {
	query := `
UPDATE vanity_jobs
SET status = 'cancelled', diagnostic = 'flushed by operator', updated_at = NOW()
WHERE status IN ('waiting', 'active')
RETURNING id;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Request.OwnerID,
		&job.Request.ConversationID,
		&job.Request.SearchType,
		&job.Request.Pattern,
		&job.Request.CaseSensitive,
		&job.Status,
		&job.Diagnostic,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
