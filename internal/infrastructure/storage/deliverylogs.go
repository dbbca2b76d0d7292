package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
)

// DeliveryLogRepository persists run records and their status
// transitions. The compiled report and run stats are JSONB.
type DeliveryLogRepository struct {
	pool *pgxpool.Pool
}

var _ ports.DeliveryLogRepository = (*DeliveryLogRepository)(nil)

// NewDeliveryLogRepository wires a connection pool.
func NewDeliveryLogRepository(pool *pgxpool.Pool) *DeliveryLogRepository {
	return &DeliveryLogRepository{pool: pool}
}

// Save inserts a new delivery log.
func (r *DeliveryLogRepository) Save(ctx context.Context, log *domain.DeliveryLog) error {
	report, err := json.Marshal(log.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	stats, err := json.Marshal(log.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	query, args, err := psql.Insert("delivery_logs").
		Columns("id", "project_id", "user_id",
			"report", "stats", "status", "retry_count", "error",
			"research_started_at", "research_completed_at", "delivered_at", "created_at").
		Values(log.ID, log.ProjectID, log.UserID,
			report, stats, string(log.Status), log.RetryCount, log.Error,
			log.ResearchStartedAt, log.ResearchCompletedAt, log.DeliveredAt, log.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delivery log insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}
	return nil
}

// Get loads one delivery log scoped to its owner and project.
func (r *DeliveryLogRepository) Get(ctx context.Context, userID, projectID, logID string) (*domain.DeliveryLog, error) {
	query, args, err := psql.Select("id", "project_id", "user_id",
		"report", "stats", "status", "retry_count", "error",
		"research_started_at", "research_completed_at", "delivered_at", "created_at").
		From("delivery_logs").
		Where(sq.Eq{"user_id": userID, "project_id": projectID, "id": logID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delivery log query: %w", err)
	}

	var (
		log    domain.DeliveryLog
		report []byte
		stats  []byte
	)
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&log.ID, &log.ProjectID, &log.UserID,
		&report, &stats, &log.Status, &log.RetryCount, &log.Error,
		&log.ResearchStartedAt, &log.ResearchCompletedAt, &log.DeliveredAt, &log.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("get delivery log: %w", err)
	}

	if len(report) > 0 {
		if err := json.Unmarshal(report, &log.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &log.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return &log, nil
}

// UpdateStatus transitions a log's delivery state.
func (r *DeliveryLogRepository) UpdateStatus(ctx context.Context, userID, projectID, logID string, status domain.DeliveryStatus, deliveredAt *time.Time) error {
	query, args, err := psql.Update("delivery_logs").
		Set("status", string(status)).
		Set("delivered_at", deliveredAt).
		Where(sq.Eq{"user_id": userID, "project_id": projectID, "id": logID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
