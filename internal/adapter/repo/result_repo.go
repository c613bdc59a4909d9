package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whale-professor/Solvan/internal/domain"
)

// ResultRepositoryPG implements the TTL-keyed result store on PostgreSQL.
// Rows are written once per job id and treated as absent after expires_at;
// expired rows are reaped lazily on read.
type ResultRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new result repository backed by PostgreSQL.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepositoryPG {
	return &ResultRepositoryPG{pool: pool}
}

// Put stores the result payload under jobID with the given TTL. Write-once:
// a second write for the same key is a no-op.
func (r *ResultRepositoryPG) Put(ctx context.Context, jobID string, result domain.JobResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	query := `
INSERT INTO vanity_results (job_id, payload, expires_at)
VALUES ($1, $2, NOW() + make_interval(secs => $3))
ON CONFLICT (job_id) DO NOTHING;
`
	_, err = r.pool.Exec(ctx, query, jobID, payload, ttl.Seconds())
	return err
}

// Get retrieves an unexpired result. The read does not extend the TTL.
func (r *ResultRepositoryPG) Get(ctx context.Context, jobID string) (domain.JobResult, error) {
	query := `
SELECT payload
FROM vanity_results
WHERE job_id = $1 AND expires_at > NOW();
`
	var payload []byte
	if err := r.pool.QueryRow(ctx, query, jobID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.reapExpired(ctx, jobID)
			return domain.JobResult{}, domain.ErrResultMissing
		}
		return domain.JobResult{}, err
	}

	var result domain.JobResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.JobResult{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

func (r *ResultRepositoryPG) reapExpired(ctx context.Context, jobID string) {
	query := `
DELETE FROM vanity_results
WHERE job_id = $1 AND expires_at <= NOW();
`
	_, _ = r.pool.Exec(ctx, query, jobID)
}

var _ domain.ResultRepository = (*ResultRepositoryPG)(nil)
