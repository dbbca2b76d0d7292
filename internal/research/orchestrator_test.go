package research

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/extract"
	"ResearchRadar/internal/ports"
)

// --- fakes ---

type fakeProjects struct {
	project *domain.Project
	updates []domain.Project
}

func (f *fakeProjects) Get(_ context.Context, _, _ string) (*domain.Project, error) {
	if f.project == nil {
		return nil, ports.ErrNotFound
	}
	copied := *f.project
	return &copied, nil
}

func (f *fakeProjects) ListActive(_ context.Context) ([]domain.Project, error) { return nil, nil }

func (f *fakeProjects) Update(_ context.Context, p *domain.Project) error {
	f.updates = append(f.updates, *p)
	return nil
}

type fakeFindings struct{ saved []domain.Finding }

func (f *fakeFindings) SaveAll(_ context.Context, findings []domain.Finding) error {
	f.saved = append(f.saved, findings...)
	return nil
}

type fakeLogs struct{ saved []domain.DeliveryLog }

func (f *fakeLogs) Save(_ context.Context, log *domain.DeliveryLog) error {
	f.saved = append(f.saved, *log)
	return nil
}

func (f *fakeLogs) Get(_ context.Context, _, _, _ string) (*domain.DeliveryLog, error) {
	return nil, ports.ErrNotFound
}

func (f *fakeLogs) UpdateStatus(_ context.Context, _, _, _ string, _ domain.DeliveryStatus, _ *time.Time) error {
	return nil
}

type fakeHistories struct {
	history *domain.SearchHistory
	saved   []*domain.SearchHistory
}

func (f *fakeHistories) Get(_ context.Context, _, _ string) (*domain.SearchHistory, error) {
	if f.history == nil {
		return nil, ports.ErrNotFound
	}
	return f.history, nil
}

func (f *fakeHistories) Save(_ context.Context, h *domain.SearchHistory) error {
	f.saved = append(f.saved, h)
	return nil
}

type searchCall struct {
	queries []string
	filters ports.SearchFilters
}

type fakeSearcher struct {
	calls   []searchCall
	batches []map[string][]ports.SearchResult
	err     error
}

func (f *fakeSearcher) SearchMultiple(_ context.Context, queries []string, filters ports.SearchFilters) (map[string][]ports.SearchResult, error) {
	f.calls = append(f.calls, searchCall{queries: queries, filters: filters})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return map[string][]ports.SearchResult{}, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeExtractor struct{ snippets map[string]string }

func (f *fakeExtractor) ExtractMultiple(_ context.Context, urls []string) []extract.Content {
	out := make([]extract.Content, len(urls))
	for i, url := range urls {
		snippet, ok := f.snippets[url]
		if !ok {
			out[i] = extract.Content{URL: url, FetchStatus: extract.FetchFailed, FetchError: "not scripted"}
			continue
		}
		out[i] = extract.Content{
			URL:         url,
			Snippet:     snippet,
			WordCount:   len(snippet),
			FetchStatus: extract.FetchSuccess,
			Metadata:    extract.Metadata{Title: "Title of " + url},
		}
	}
	return out
}

// fakeLLM scores by URL lookup; relevancy defaults to zero for unknown URLs.
type fakeLLM struct {
	scores       map[string]int
	queryBatches [][]ports.GeneratedQuery
	queryCalls   int
	genErr       error
}

func (f *fakeLLM) GenerateQueries(_ context.Context, _ ports.QueryRequest) ([]ports.GeneratedQuery, error) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	i := f.queryCalls
	f.queryCalls++
	if i < len(f.queryBatches) {
		return f.queryBatches[i], nil
	}
	return []ports.GeneratedQuery{{Query: fmt.Sprintf("query-%d", i+1), Kind: "broad"}}, nil
}

func (f *fakeLLM) AnalyzeRelevancy(_ context.Context, req ports.RelevancyRequest) (ports.RelevancyVerdict, error) {
	score := f.scores[req.URL]
	return ports.RelevancyVerdict{
		Score:      score,
		Reasoning:  "scripted",
		KeyPoints:  []string{"point for " + req.URL},
		IsRelevant: score >= req.Threshold,
	}, nil
}

func (f *fakeLLM) CompileReport(_ context.Context, _ string, findings []domain.Finding) (domain.CompiledReport, error) {
	return domain.CompiledReport{
		Markdown: fmt.Sprintf("# Report over %d findings", len(findings)),
		Title:    "Scripted Report",
		Summary:  "compiler summary",
	}, nil
}

func (f *fakeLLM) CompileClusteredReport(_ context.Context, _ string, clusters []domain.TopicCluster) (domain.CompiledReport, error) {
	return domain.CompiledReport{
		Markdown: fmt.Sprintf("# Clustered report over %d clusters", len(clusters)),
		Title:    "Scripted Clustered Report",
		Summary:  "compiler summary",
	}, nil
}

func (f *fakeLLM) GenerateSummary(_ context.Context, _ string) (string, error) {
	return "tight executive summary", nil
}

// --- harness ---

type harness struct {
	projects  *fakeProjects
	findings  *fakeFindings
	logs      *fakeLogs
	histories *fakeHistories
	searcher  *fakeSearcher
	extractor *fakeExtractor
	llm       *fakeLLM
}

func testProject() *domain.Project {
	next := time.Now().Add(time.Hour)
	return &domain.Project{
		ID:          "p1",
		UserID:      "u1",
		Name:        "AI Chips",
		Description: "AI chip announcements",
		Frequency:   domain.FrequencyDaily,
		Timezone:    "UTC",
		Settings:    domain.ProjectSettings{RelevancyThreshold: 60, MinResults: 3, MaxResults: 10},
		Status:      domain.StatusActive,
		NextRunAt:   &next,
	}
}

func newHarness(project *domain.Project) *harness {
	return &harness{
		projects:  &fakeProjects{project: project},
		findings:  &fakeFindings{},
		logs:      &fakeLogs{},
		histories: &fakeHistories{},
		searcher:  &fakeSearcher{},
		extractor: &fakeExtractor{snippets: map[string]string{}},
		llm:       &fakeLLM{scores: map[string]int{}},
	}
}

func (h *harness) orchestrator() *Orchestrator {
	return New(DefaultConfig(), Deps{
		Projects:  h.projects,
		Findings:  h.findings,
		Logs:      h.logs,
		Histories: h.histories,
		Search:    h.searcher,
		Extractor: h.extractor,
		LLM:       h.llm,
	})
}

func hit(url string) ports.SearchResult {
	return ports.SearchResult{URL: url, Title: "Title of " + url}
}

// --- tests ---

func TestRunSucceedsWithEnoughContent(t *testing.T) {
	t.Parallel()

	h := newHarness(testProject())
	urls := []string{
		"https://a.example/chip-launch",
		"https://b.example/gpu-news",
		"https://c.example/npu-benchmarks",
	}

	batch := map[string][]ports.SearchResult{"query-1": {hit(urls[0]), hit(urls[1]), hit(urls[2])}}
	h.searcher.batches = []map[string][]ports.SearchResult{batch}
	for _, url := range urls {
		h.extractor.snippets[url] = "An AI chip announcement with details."
		h.llm.scores[url] = 80
	}

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	require.True(t, result.Success, "run failed: %s", result.Error)
	assert.GreaterOrEqual(t, len(result.RelevantResults), 3)
	require.NotNil(t, result.Report)
	assert.NotEmpty(t, result.Report.Markdown)
	assert.Equal(t, "tight executive summary", result.Report.Summary)
	assert.Equal(t, 1, result.IterationsUsed)
	assert.NotEmpty(t, result.DeliveryLogID)

	require.Len(t, h.logs.saved, 1)
	assert.Equal(t, domain.DeliveryPending, h.logs.saved[0].Status)
	assert.Len(t, h.findings.saved, 3)
	require.Len(t, h.histories.saved, 1)
	assert.Len(t, h.histories.saved[0].ProcessedURLs, 3)
}

func TestRunStopsEarlyAtMinResults(t *testing.T) {
	t.Parallel()

	project := testProject()
	project.Settings.MinResults = 5
	h := newHarness(project)

	iterOne := map[string][]ports.SearchResult{"query-1": {
		hit("https://a.example/1"), hit("https://a.example/2"), hit("https://a.example/3"),
	}}
	iterTwo := map[string][]ports.SearchResult{"query-2": {
		hit("https://b.example/4"), hit("https://b.example/5"),
	}}
	h.searcher.batches = []map[string][]ports.SearchResult{iterOne, iterTwo}

	for _, url := range []string{
		"https://a.example/1", "https://a.example/2", "https://a.example/3",
		"https://b.example/4", "https://b.example/5",
	} {
		h.extractor.snippets[url] = "Relevant chip content."
		h.llm.scores[url] = 90
	}

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	require.True(t, result.Success, "run failed: %s", result.Error)
	assert.Equal(t, 2, result.IterationsUsed, "must stop at iteration 2")
	assert.Len(t, h.searcher.calls, 2, "iteration 3 must not search")
	assert.Len(t, result.RelevantResults, 5)
}

func TestRunWidensFreshnessExactlyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(testProject())
	// Every iteration returns nothing relevant; all three searches happen.
	h.searcher.batches = nil

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	require.True(t, result.Success, "run failed: %s", result.Error)
	require.Len(t, h.searcher.calls, 3)
	assert.Equal(t, ports.FreshnessDay, h.searcher.calls[0].filters.Freshness)
	assert.Equal(t, ports.FreshnessWeek, h.searcher.calls[1].filters.Freshness)
	assert.Equal(t, ports.FreshnessWeek, h.searcher.calls[2].filters.Freshness,
		"freshness must widen at most once per run")
}

func TestRunEmptyProducesNoResultsReport(t *testing.T) {
	t.Parallel()

	h := newHarness(testProject())

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	require.True(t, result.Success, "run failed: %s", result.Error)
	assert.Empty(t, result.RelevantResults)
	require.NotNil(t, result.Report)
	assert.Equal(t, NoResultsMessage, result.Report.Markdown)
	assert.Empty(t, h.findings.saved, "no findings must be persisted")
	require.Len(t, h.logs.saved, 1, "an empty run still records a delivery log")
}

func TestRunFailureMarksProjectErrored(t *testing.T) {
	t.Parallel()

	h := newHarness(testProject())
	h.searcher.err = errors.New("provider down")

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "provider down")

	require.NotEmpty(t, h.projects.updates)
	last := h.projects.updates[len(h.projects.updates)-1]
	assert.Equal(t, domain.StatusError, last.Status)
	assert.Contains(t, last.LastError, "provider down")

	assert.Empty(t, h.findings.saved, "failed run must not persist findings")
	assert.Empty(t, h.logs.saved, "failed run must not persist a delivery log")
	assert.Empty(t, h.histories.saved, "failed run must not merge history")
}

func TestRunSkipsURLsAlreadyInHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(testProject())
	hist := domain.NewSearchHistory("u1", "p1")
	hist.ProcessedURLs["https://a.example/old"] = domain.ProcessedURL{
		URL:           "https://a.example/old",
		NormalizedURL: "https://a.example/old",
	}
	h.histories.history = hist

	batch := map[string][]ports.SearchResult{"query-1": {
		hit("https://a.example/old"),
		hit("https://a.example/new"),
	}}
	h.searcher.batches = []map[string][]ports.SearchResult{batch}
	h.extractor.snippets["https://a.example/new"] = "Fresh chip content."
	h.llm.scores["https://a.example/new"] = 95

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	require.True(t, result.Success, "run failed: %s", result.Error)
	require.Len(t, result.RelevantResults, 1)
	assert.Equal(t, "https://a.example/new", result.RelevantResults[0].URL)
	assert.Equal(t, 1, result.URLsFetched, "seen URL must not be fetched again")
}

func TestRunDropsExcludedKeywordURLs(t *testing.T) {
	t.Parallel()

	project := testProject()
	project.SearchParameters.ExcludedKeywords = []string{"rumor"}
	h := newHarness(project)

	batch := map[string][]ports.SearchResult{"query-1": {
		hit("https://a.example/rumor-mill"),
		hit("https://a.example/confirmed"),
	}}
	h.searcher.batches = []map[string][]ports.SearchResult{batch}
	h.extractor.snippets["https://a.example/confirmed"] = "Confirmed launch details."
	h.llm.scores["https://a.example/confirmed"] = 85

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	require.True(t, result.Success, "run failed: %s", result.Error)
	require.Len(t, result.RelevantResults, 1)
	assert.Equal(t, "https://a.example/confirmed", result.RelevantResults[0].URL)
}

func TestRunCapsResultsAtMaxResults(t *testing.T) {
	t.Parallel()

	project := testProject()
	project.Settings.MinResults = 1
	project.Settings.MaxResults = 2
	h := newHarness(project)

	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	batch := map[string][]ports.SearchResult{"query-1": {hit(urls[0]), hit(urls[1]), hit(urls[2])}}
	h.searcher.batches = []map[string][]ports.SearchResult{batch}

	scores := []int{70, 95, 85}
	for i, url := range urls {
		h.extractor.snippets[url] = "Chip content."
		h.llm.scores[url] = scores[i]
	}

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)

	require.True(t, result.Success, "run failed: %s", result.Error)
	require.Len(t, result.RelevantResults, 2)
	assert.Equal(t, 95, result.RelevantResults[0].RelevancyScore, "sorted by score descending")
	assert.Equal(t, 85, result.RelevantResults[1].RelevancyScore)
}

func TestRunQueryPerformanceMergedIntoHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(testProject())
	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	batch := map[string][]ports.SearchResult{"query-1": {hit(urls[0]), hit(urls[1]), hit(urls[2])}}
	h.searcher.batches = []map[string][]ports.SearchResult{batch}

	h.extractor.snippets[urls[0]] = "Relevant."
	h.extractor.snippets[urls[1]] = "Relevant."
	h.extractor.snippets[urls[2]] = "Irrelevant."
	h.llm.scores[urls[0]] = 90
	h.llm.scores[urls[1]] = 70
	h.llm.scores[urls[2]] = 10

	result := h.orchestrator().Run(context.Background(), "u1", "p1", domain.DeliveryPending)
	require.True(t, result.Success, "run failed: %s", result.Error)

	require.Len(t, h.histories.saved, 1)
	perf := h.histories.saved[0].QueryPerformance["query-1"]
	assert.Equal(t, 3, perf.URLsFound)
	assert.Equal(t, 2, perf.RelevantURLsFound)
	assert.InDelta(t, 80.0, perf.AverageRelevancyScore, 1e-9)
}
