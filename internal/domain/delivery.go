package domain

import "time"

// DeliveryStatus enumerates delivery-log states. Pending means computed
// but not yet released to the user; success means released.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryPartial DeliveryStatus = "partial"
)

// CompiledReport is the synthesized output of one research run.
type CompiledReport struct {
	Markdown string
	Title    string
	Summary  string
}

// RunStats captures counters surfaced on the dashboard for one run.
type RunStats struct {
	QueriesGenerated int
	QueriesExecuted  int
	URLsFetched      int
	URLsSuccessful   int
	RelevantFindings int
	IterationsUsed   int
	SuccessRate      float64
	FreshnessUsed    string
	DurationMs       int64
}

// DeliveryLog is one completed or attempted run's record.
type DeliveryLog struct {
	ID                  string
	ProjectID           string
	UserID              string
	Report              CompiledReport
	Stats               RunStats
	Status              DeliveryStatus
	RetryCount          int
	Error               string
	ResearchStartedAt   time.Time
	ResearchCompletedAt time.Time
	DeliveredAt         *time.Time
	CreatedAt           time.Time
}
