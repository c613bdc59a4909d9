package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whale-professor/Solvan/internal/domain"
)

// StatsRepositoryPG appends generation statistics rows. The sink is one-way:
// nothing in the service reads these back.
type StatsRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new stats repository backed by PostgreSQL.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepositoryPG {
	return &StatsRepositoryPG{pool: pool}
}

// Record inserts one statistics row.
func (r *StatsRepositoryPG) Record(ctx context.Context, stat domain.GenerationStat) error {
	query := `
INSERT INTO generation_stats (created_at, owner_id, search_type, pattern, case_sensitive, address, attempts, elapsed_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		stat.Timestamp,
		stat.OwnerID,
		stat.SearchType,
		stat.Pattern,
		stat.CaseSensitive,
		stat.Address,
		stat.Attempts,
		stat.ElapsedMs,
	)
	return err
}

var _ domain.StatsRepository = (*StatsRepositoryPG)(nil)
