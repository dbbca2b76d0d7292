package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
)

// FindingRepository appends findings. Findings are immutable once
// written, so there is no update path.
type FindingRepository struct {
	pool *pgxpool.Pool
}

var _ ports.FindingRepository = (*FindingRepository)(nil)

// NewFindingRepository wires a connection pool.
func NewFindingRepository(pool *pgxpool.Pool) *FindingRepository {
	return &FindingRepository{pool: pool}
}

// SaveAll inserts the batch in a single statement.
func (r *FindingRepository) SaveAll(ctx context.Context, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	builder := psql.Insert("findings").Columns(
		"id", "project_id", "user_id",
		"url", "normalized_url", "source_query", "snippet",
		"relevancy_score", "reasoning", "key_points", "metadata",
		"created_at",
	)

	for _, f := range findings {
		keyPoints, err := json.Marshal(f.KeyPoints)
		if err != nil {
			return fmt.Errorf("marshal key points: %w", err)
		}
		metadata, err := json.Marshal(f.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		builder = builder.Values(
			f.ID, f.ProjectID, f.UserID,
			f.URL, f.NormalizedURL, f.SourceQuery, f.Snippet,
			f.RelevancyScore, f.Reasoning, keyPoints, metadata,
			f.CreatedAt,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build findings insert: %w", err)
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert findings: %w", err)
	}
	return nil
}
