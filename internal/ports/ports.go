package ports

import (
	"context"
	"errors"
	"time"

	"ResearchRadar/internal/domain"
)

// ErrNotFound is returned by repositories when the requested record is absent.
var ErrNotFound = errors.New("not found")

// ErrRateLimited marks a provider refusal caused by request-rate limits.
// Callers back off longer than for generic failures.
var ErrRateLimited = errors.New("provider rate limited")

// Freshness is the recency window applied to a search query.
type Freshness string

const (
	FreshnessDay   Freshness = "day"
	FreshnessWeek  Freshness = "week"
	FreshnessMonth Freshness = "month"
	FreshnessYear  Freshness = "year"
)

// Widen returns the next wider freshness window. Year cannot widen further.
func (f Freshness) Widen() Freshness {
	switch f {
	case FreshnessDay:
		return FreshnessWeek
	case FreshnessWeek:
		return FreshnessMonth
	case FreshnessMonth:
		return FreshnessYear
	default:
		return FreshnessYear
	}
}

// SearchFilters shapes a single provider query.
type SearchFilters struct {
	Freshness      Freshness
	IncludeDomains []string
	ExcludeDomains []string
	Region         string
	Language       string
	MaxResults     int
}

// SearchResult is one raw hit from the search provider.
type SearchResult struct {
	URL         string
	Title       string
	Description string
	Source      string
	PublishedAt *time.Time
}

// SearchProvider issues web searches.
type SearchProvider interface {
	Search(ctx context.Context, query string, filters SearchFilters) ([]SearchResult, error)
	Name() string
}

// GeneratedQuery is one search query proposed by the LLM.
type GeneratedQuery struct {
	Query string
	Kind  string // broad, specific, question, temporal
}

// QueryRequest describes what the query generator should work from.
type QueryRequest struct {
	Description      string
	RequiredKeywords []string
	ExcludedKeywords []string
	TopQueries       []string // prior top-performing queries, later iterations
	Iteration        int
}

// RelevancyRequest asks for a score of one snippet against the project.
type RelevancyRequest struct {
	Description string
	Title       string
	Snippet     string
	URL         string
	Threshold   int
}

// RelevancyVerdict is the typed response of a relevancy analysis.
type RelevancyVerdict struct {
	Score      int
	Reasoning  string
	KeyPoints  []string
	IsRelevant bool
}

// CandidatePage is a title/snippet pair offered to the pre-fetch filter.
type CandidatePage struct {
	URL     string
	Title   string
	Snippet string
}

// LLMProvider is the required LLM capability set. Optional capabilities
// (ResultFilterer, Embedder) are detected by type assertion on the same
// value, so callers branch on an explicit supports check.
type LLMProvider interface {
	GenerateQueries(ctx context.Context, req QueryRequest) ([]GeneratedQuery, error)
	AnalyzeRelevancy(ctx context.Context, req RelevancyRequest) (RelevancyVerdict, error)
	CompileReport(ctx context.Context, description string, findings []domain.Finding) (domain.CompiledReport, error)
	CompileClusteredReport(ctx context.Context, description string, clusters []domain.TopicCluster) (domain.CompiledReport, error)
	GenerateSummary(ctx context.Context, markdown string) (string, error)
}

// ResultFilterer is the optional pre-fetch filtering capability.
type ResultFilterer interface {
	FilterResults(ctx context.Context, description string, pages []CandidatePage) ([]bool, error)
}

// Embedder is the optional embedding capability used by the clusterer.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ProjectRepository reads and transitions projects.
type ProjectRepository interface {
	Get(ctx context.Context, userID, projectID string) (*domain.Project, error)
	ListActive(ctx context.Context) ([]domain.Project, error)
	Update(ctx context.Context, project *domain.Project) error
}

// FindingRepository appends findings produced by a run.
type FindingRepository interface {
	SaveAll(ctx context.Context, findings []domain.Finding) error
}

// DeliveryLogRepository persists run outcomes and status transitions.
type DeliveryLogRepository interface {
	Save(ctx context.Context, log *domain.DeliveryLog) error
	Get(ctx context.Context, userID, projectID, logID string) (*domain.DeliveryLog, error)
	UpdateStatus(ctx context.Context, userID, projectID, logID string, status domain.DeliveryStatus, deliveredAt *time.Time) error
}

// HistoryRepository loads and merges the per-project search ledger.
type HistoryRepository interface {
	Get(ctx context.Context, userID, projectID string) (*domain.SearchHistory, error)
	Save(ctx context.Context, history *domain.SearchHistory) error
}

// NotificationRepository records operator escalations.
type NotificationRepository interface {
	Save(ctx context.Context, n *domain.AdminNotification) error
}

// Notifier pushes operator escalations to an out-of-band channel.
type Notifier interface {
	NotifyAdmin(ctx context.Context, n domain.AdminNotification) error
}

// Scheduler drives the controller tick.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
