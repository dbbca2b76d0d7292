package research

import (
	"time"

	"ResearchRadar/internal/domain"
)

// Result is the orchestrator's output contract, consumed by the
// scheduling controller to drive the project lifecycle.
type Result struct {
	Success          bool
	RelevantResults  []domain.Finding
	IterationsUsed   int
	QueriesGenerated []string
	QueriesExecuted  []string
	URLsFetched      int
	URLsSuccessful   int
	Report           *domain.CompiledReport
	DeliveryLogID    string
	Error            string
	StartedAt        time.Time
	CompletedAt      time.Time
	DurationMs       int64
}
