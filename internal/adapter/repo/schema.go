package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`
CREATE TABLE IF NOT EXISTS vanity_jobs (
    id              UUID PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    search_type     TEXT NOT NULL,
    pattern         TEXT NOT NULL,
    case_sensitive  BOOLEAN NOT NULL,
    status          TEXT NOT NULL DEFAULT 'waiting',
    diagnostic      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	`
CREATE INDEX IF NOT EXISTS vanity_jobs_claim_idx
    ON vanity_jobs (status, created_at, id);
`,
	`
CREATE TABLE IF NOT EXISTS vanity_results (
    job_id     UUID PRIMARY KEY,
    payload    JSONB NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS generation_stats (
    id             BIGSERIAL PRIMARY KEY,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    owner_id       TEXT NOT NULL,
    search_type    TEXT NOT NULL,
    pattern        TEXT NOT NULL,
    case_sensitive BOOLEAN NOT NULL,
    address        TEXT NOT NULL,
    attempts       BIGINT NOT NULL,
    elapsed_ms     BIGINT NOT NULL
);
`,
}

// EnsureSchema creates the service tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
