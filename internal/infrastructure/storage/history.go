package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
)

// HistoryRepository stores one ledger row per project. The URL and
// query maps are JSONB documents; merge semantics live in the history
// package, so the repository only loads and replaces whole ledgers.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

var _ ports.HistoryRepository = (*HistoryRepository)(nil)

// NewHistoryRepository wires a connection pool.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Get loads the project ledger, or ports.ErrNotFound for a first run.
func (r *HistoryRepository) Get(ctx context.Context, userID, projectID string) (*domain.SearchHistory, error) {
	query, args, err := psql.Select("project_id", "user_id", "processed_urls", "query_performance", "updated_at").
		From("search_histories").
		Where(sq.Eq{"user_id": userID, "project_id": projectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var (
		history     domain.SearchHistory
		urls        []byte
		performance []byte
	)
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&history.ProjectID, &history.UserID, &urls, &performance, &history.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("get history: %w", err)
	}

	history.ProcessedURLs = map[string]domain.ProcessedURL{}
	history.QueryPerformance = map[string]domain.QueryPerformance{}
	if len(urls) > 0 {
		if err := json.Unmarshal(urls, &history.ProcessedURLs); err != nil {
			return nil, fmt.Errorf("unmarshal processed urls: %w", err)
		}
	}
	if len(performance) > 0 {
		if err := json.Unmarshal(performance, &history.QueryPerformance); err != nil {
			return nil, fmt.Errorf("unmarshal query performance: %w", err)
		}
	}
	return &history, nil
}

// Save upserts the whole ledger.
func (r *HistoryRepository) Save(ctx context.Context, history *domain.SearchHistory) error {
	urls, err := json.Marshal(history.ProcessedURLs)
	if err != nil {
		return fmt.Errorf("marshal processed urls: %w", err)
	}
	performance, err := json.Marshal(history.QueryPerformance)
	if err != nil {
		return fmt.Errorf("marshal query performance: %w", err)
	}

	query, args, err := psql.Insert("search_histories").
		Columns("project_id", "user_id", "processed_urls", "query_performance", "updated_at").
		Values(history.ProjectID, history.UserID, urls, performance, sq.Expr("NOW()")).
		Suffix(`ON CONFLICT (project_id) DO UPDATE
			SET processed_urls = EXCLUDED.processed_urls,
			    query_performance = EXCLUDED.query_performance,
			    updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build history upsert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}
