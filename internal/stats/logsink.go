// Package stats provides the fallback statistics sink for deployments
// without a database: every generation is appended to the structured log.
package stats

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/domain"
)

// LogSink implements domain.StatsRepository by emitting one log event per
// completed generation.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log-backed statistics sink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "stats").Logger()}
}

// Record appends one statistics record to the log.
func (s *LogSink) Record(_ context.Context, stat domain.GenerationStat) error {
	s.log.Info().
		Time("timestamp", stat.Timestamp).
		Str("owner_id", stat.OwnerID).
		Str("search_type", string(stat.SearchType)).
		Str("pattern", stat.Pattern).
		Bool("case_sensitive", stat.CaseSensitive).
		Str("address", stat.Address).
		Int64("attempts", stat.Attempts).
		Int64("elapsed_ms", stat.ElapsedMs).
		Msg("generation recorded")
	return nil
}

var _ domain.StatsRepository = (*LogSink)(nil)
