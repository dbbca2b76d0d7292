package history

import (
	"time"

	"ResearchRadar/internal/domain"
)

// URLObservation is one URL outcome produced during a run, ready to be
// merged back into the project ledger.
type URLObservation struct {
	URL            string
	NormalizedURL  string
	RelevancyScore int
	WasIncluded    bool
}

// QueryObservation is one query's outcome for a single run.
type QueryObservation struct {
	Query             string
	URLsFound         int
	RelevantURLsFound int
	// Sum of relevancy scores of the relevant URLs, used for the
	// weighted running average.
	RelevancyScoreSum int
}

// MergeURLs folds run observations into the ledger. A URL already present
// increments TimesFound, overwrites LastRelevancyScore, and ORs
// WasIncluded; a new URL is appended with FirstSeenAt set.
func MergeURLs(h *domain.SearchHistory, observations []URLObservation, now time.Time) {
	if h.ProcessedURLs == nil {
		h.ProcessedURLs = map[string]domain.ProcessedURL{}
	}

	for _, obs := range observations {
		key := obs.NormalizedURL
		if key == "" {
			key = NormalizeURL(obs.URL)
		}

		entry, ok := h.ProcessedURLs[key]
		if !ok {
			h.ProcessedURLs[key] = domain.ProcessedURL{
				URL:                obs.URL,
				NormalizedURL:      key,
				FirstSeenAt:        now,
				TimesFound:         1,
				LastRelevancyScore: obs.RelevancyScore,
				WasIncluded:        obs.WasIncluded,
			}
			continue
		}

		entry.TimesFound++
		entry.LastRelevancyScore = obs.RelevancyScore
		entry.WasIncluded = entry.WasIncluded || obs.WasIncluded
		h.ProcessedURLs[key] = entry
	}

	h.UpdatedAt = now
}

// MergeQueries accumulates per-query usage and URL counts across runs.
// Success rate is never stored; it derives from the accumulated totals.
// The average relevancy score is a weighted running average over all
// relevant URLs the query has ever produced.
func MergeQueries(h *domain.SearchHistory, observations []QueryObservation, now time.Time) {
	if h.QueryPerformance == nil {
		h.QueryPerformance = map[string]domain.QueryPerformance{}
	}

	for _, obs := range observations {
		entry, ok := h.QueryPerformance[obs.Query]
		if !ok {
			entry = domain.QueryPerformance{Query: obs.Query}
		}

		prevRelevant := entry.RelevantURLsFound
		entry.TimesUsed++
		entry.URLsFound += obs.URLsFound
		entry.RelevantURLsFound += obs.RelevantURLsFound
		entry.LastUsedAt = now

		if entry.RelevantURLsFound > 0 {
			total := entry.AverageRelevancyScore*float64(prevRelevant) + float64(obs.RelevancyScoreSum)
			entry.AverageRelevancyScore = total / float64(entry.RelevantURLsFound)
		}

		h.QueryPerformance[obs.Query] = entry
	}

	h.UpdatedAt = now
}

// TopQueries returns up to limit queries ordered by derived success rate,
// considering only queries used at least minUses times.
func TopQueries(h *domain.SearchHistory, minUses, limit int) []string {
	type scored struct {
		query string
		rate  float64
	}

	candidates := make([]scored, 0, len(h.QueryPerformance))
	for _, perf := range h.QueryPerformance {
		if perf.TimesUsed < minUses {
			continue
		}
		candidates = append(candidates, scored{query: perf.Query, rate: perf.SuccessRate()})
	}

	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].rate > candidates[j-1].rate; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if limit > len(candidates) {
		limit = len(candidates)
	}

	queries := make([]string, 0, limit)
	for _, c := range candidates[:limit] {
		queries = append(queries, c.query)
	}
	return queries
}

// Seen reports whether the normalized URL is already in the ledger.
func Seen(h *domain.SearchHistory, normalizedURL string) bool {
	_, ok := h.ProcessedURLs[normalizedURL]
	return ok
}
