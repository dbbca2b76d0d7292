package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
)

// NotificationRepository records operator escalations.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

var _ ports.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository wires a connection pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Save inserts one notification.
func (r *NotificationRepository) Save(ctx context.Context, n *domain.AdminNotification) error {
	query, args, err := psql.Insert("admin_notifications").
		Columns("id", "user_id", "project_id", "project_name",
			"message", "error", "retry_count", "severity", "created_at").
		Values(n.ID, n.UserID, n.ProjectID, n.ProjectName,
			n.Message, n.Error, n.RetryCount, string(n.Severity), n.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build notification insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
