package domain

import "time"

// ProcessedURL records one URL the project has already seen.
type ProcessedURL struct {
	URL                string
	NormalizedURL      string
	FirstSeenAt        time.Time
	TimesFound         int
	LastRelevancyScore int
	WasIncluded        bool
}

// QueryPerformance accumulates how well one query text has performed
// across runs. SuccessRate is always derived from the totals, and
// AverageRelevancyScore is a weighted running average over relevant URLs.
type QueryPerformance struct {
	Query                 string
	TimesUsed             int
	URLsFound             int
	RelevantURLsFound     int
	AverageRelevancyScore float64
	LastUsedAt            time.Time
}

// SuccessRate derives the relevant/found ratio as a percentage.
func (q QueryPerformance) SuccessRate() float64 {
	if q.URLsFound == 0 {
		return 0
	}
	return float64(q.RelevantURLsFound) / float64(q.URLsFound) * 100
}

// SearchHistory is the per-project ledger preventing re-fetching content
// across repeated runs. One document per project; normalized-URL keys
// are unique.
type SearchHistory struct {
	ProjectID        string
	UserID           string
	ProcessedURLs    map[string]ProcessedURL     // keyed by normalized URL
	QueryPerformance map[string]QueryPerformance // keyed by raw query text
	UpdatedAt        time.Time
}

// NewSearchHistory builds an empty ledger for a project.
func NewSearchHistory(userID, projectID string) *SearchHistory {
	return &SearchHistory{
		ProjectID:        projectID,
		UserID:           userID,
		ProcessedURLs:    map[string]ProcessedURL{},
		QueryPerformance: map[string]QueryPerformance{},
	}
}
