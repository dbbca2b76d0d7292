package domain

import "time"

// NotificationSeverity grades operator notifications.
type NotificationSeverity string

const (
	SeverityWarning  NotificationSeverity = "warning"
	SeverityCritical NotificationSeverity = "critical"
)

// AdminNotification is emitted when a project fails twice in a row and
// needs operator attention.
type AdminNotification struct {
	ID          string
	UserID      string
	ProjectID   string
	ProjectName string
	Message     string
	Error       string
	RetryCount  int
	Severity    NotificationSeverity
	CreatedAt   time.Time
}
