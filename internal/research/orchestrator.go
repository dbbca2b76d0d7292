package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/extract"
	"ResearchRadar/internal/history"
	"ResearchRadar/internal/ports"
)

// NoResultsMessage is the report body when a run finds nothing relevant.
const NoResultsMessage = "No relevant results found for this research period."

// Searcher is the rate-limited batch search surface the orchestrator uses.
type Searcher interface {
	SearchMultiple(ctx context.Context, queries []string, filters ports.SearchFilters) (map[string][]ports.SearchResult, error)
}

// PageExtractor turns URL lists into normalized content.
type PageExtractor interface {
	ExtractMultiple(ctx context.Context, urls []string) []extract.Content
}

// FindingClusterer groups findings into topic clusters.
type FindingClusterer interface {
	Cluster(ctx context.Context, findings []domain.Finding) ([]domain.TopicCluster, error)
}

// Config bounds one research run.
type Config struct {
	MaxIterations int // iteration cap, default 3
	CandidateCap  int // max unseen URLs considered per iteration, default 25
	TopQueryUses  int // minimum prior uses before a query counts as top-performing
}

// DefaultConfig matches the standard run budget.
func DefaultConfig() Config {
	return Config{MaxIterations: 3, CandidateCap: 25, TopQueryUses: 2}
}

// Deps wires all driven adapters into the orchestrator.
type Deps struct {
	Projects  ports.ProjectRepository
	Findings  ports.FindingRepository
	Logs      ports.DeliveryLogRepository
	Histories ports.HistoryRepository
	Search    Searcher
	Extractor PageExtractor
	LLM       ports.LLMProvider
	Clusterer FindingClusterer
	Logger    *slog.Logger
}

// Orchestrator composes search, extraction, analysis, clustering, and
// compilation into one research run for one project.
type Orchestrator struct {
	cfg       Config
	projects  ports.ProjectRepository
	findings  ports.FindingRepository
	logs      ports.DeliveryLogRepository
	histories ports.HistoryRepository
	search    Searcher
	extractor PageExtractor
	llm       ports.LLMProvider
	clusterer FindingClusterer
	logger    *slog.Logger
}

// New builds the orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.CandidateCap < 1 {
		cfg.CandidateCap = DefaultConfig().CandidateCap
	}
	if cfg.TopQueryUses < 1 {
		cfg.TopQueryUses = DefaultConfig().TopQueryUses
	}
	return &Orchestrator{
		cfg:       cfg,
		projects:  deps.Projects,
		findings:  deps.Findings,
		logs:      deps.Logs,
		histories: deps.Histories,
		search:    deps.Search,
		extractor: deps.Extractor,
		llm:       deps.LLM,
		clusterer: deps.Clusterer,
		logger:    deps.Logger,
	}
}

// candidate is one unseen URL waiting for extraction and analysis.
type candidate struct {
	url           string
	normalizedURL string
	title         string
	description   string
	sourceQuery   string
}

// Run executes one research run and persists its outcome. logStatus is
// the status the delivery log is created with: pending for pre-runs,
// success for immediate-release retry runs. On failure the project is
// marked errored with LastError set and nothing is persisted.
func (o *Orchestrator) Run(ctx context.Context, userID, projectID string, logStatus domain.DeliveryStatus) Result {
	startedAt := time.Now()
	result := Result{StartedAt: startedAt}

	project, err := o.projects.Get(ctx, userID, projectID)
	if err != nil {
		return o.fail(ctx, nil, result, fmt.Errorf("load project: %w", err))
	}

	hist, err := o.histories.Get(ctx, userID, projectID)
	if errors.Is(err, ports.ErrNotFound) {
		hist = domain.NewSearchHistory(userID, projectID)
	} else if err != nil {
		return o.fail(ctx, project, result, fmt.Errorf("load history: %w", err))
	}

	run, err := o.iterate(ctx, project, hist, &result)
	if err != nil {
		return o.fail(ctx, project, result, err)
	}

	report, err := o.compile(ctx, project, run.included)
	if err != nil {
		return o.fail(ctx, project, result, err)
	}

	completedAt := time.Now()
	logID, err := o.persist(ctx, project, hist, run, report, logStatus, startedAt, completedAt, &result)
	if err != nil {
		return o.fail(ctx, project, result, err)
	}

	result.Success = true
	result.RelevantResults = run.included
	result.Report = &report
	result.DeliveryLogID = logID
	result.CompletedAt = completedAt
	result.DurationMs = completedAt.Sub(startedAt).Milliseconds()

	o.info("research run complete",
		"project_id", projectID,
		"findings", len(run.included),
		"iterations", result.IterationsUsed,
		"duration_ms", result.DurationMs)
	return result
}

// runState accumulates across iterations.
type runState struct {
	included      []domain.Finding
	urlObs        []history.URLObservation
	queryObs      map[string]*history.QueryObservation
	freshnessUsed ports.Freshness
}

func (o *Orchestrator) iterate(ctx context.Context, project *domain.Project, hist *domain.SearchHistory, result *Result) (*runState, error) {
	seen := map[string]struct{}{}
	for key := range hist.ProcessedURLs {
		seen[key] = struct{}{}
	}

	freshness := initialFreshness(project.Frequency)
	widened := false

	run := &runState{
		queryObs:      map[string]*history.QueryObservation{},
		freshnessUsed: freshness,
	}

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		result.IterationsUsed = iteration

		queries, err := o.generateQueries(ctx, project, hist, iteration)
		if err != nil {
			return nil, err
		}
		for _, q := range queries {
			result.QueriesGenerated = append(result.QueriesGenerated, q.Query)
		}

		filters := buildFilters(project, freshness)
		texts := make([]string, 0, len(queries))
		for _, q := range queries {
			texts = append(texts, q.Query)
		}

		hits, err := o.search.SearchMultiple(ctx, texts, filters)
		if err != nil {
			return nil, fmt.Errorf("search batch: %w", err)
		}
		for _, query := range texts {
			queryHits, executed := hits[query]
			if !executed {
				continue
			}
			result.QueriesExecuted = append(result.QueriesExecuted, query)
			obs := run.queryObservation(query)
			obs.URLsFound += len(queryHits)
		}

		candidates := o.selectCandidates(texts, hits, project, seen)
		if len(candidates) == 0 {
			o.debug("no new unseen urls this iteration", "iteration", iteration)
			if widenStep(&freshness, &widened, len(run.included), project.Settings.MinResults) {
				run.freshnessUsed = freshness
			}
			continue
		}

		candidates = o.preFilter(ctx, project, candidates)
		if len(candidates) == 0 {
			if widenStep(&freshness, &widened, len(run.included), project.Settings.MinResults) {
				run.freshnessUsed = freshness
			}
			continue
		}

		if err := o.extractAndAnalyze(ctx, project, candidates, seen, run, result); err != nil {
			return nil, err
		}

		if len(run.included) >= project.Settings.MinResults {
			o.debug("min results satisfied, stopping early",
				"iteration", iteration, "findings", len(run.included))
			break
		}

		if widenStep(&freshness, &widened, len(run.included), project.Settings.MinResults) {
			run.freshnessUsed = freshness
		}
	}

	sort.SliceStable(run.included, func(i, j int) bool {
		return run.included[i].RelevancyScore > run.included[j].RelevancyScore
	})
	if max := project.Settings.MaxResults; max > 0 && len(run.included) > max {
		run.included = run.included[:max]
	}

	return run, nil
}

func (o *Orchestrator) generateQueries(ctx context.Context, project *domain.Project, hist *domain.SearchHistory, iteration int) ([]ports.GeneratedQuery, error) {
	req := ports.QueryRequest{
		Description:      project.Description,
		RequiredKeywords: project.SearchParameters.RequiredKeywords,
		ExcludedKeywords: project.SearchParameters.ExcludedKeywords,
		Iteration:        iteration,
	}
	if iteration > 1 {
		req.TopQueries = history.TopQueries(hist, o.cfg.TopQueryUses, 3)
	}

	queries, err := o.llm.GenerateQueries(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	return queries, nil
}

// selectCandidates merges and dedupes search hits against the seen set,
// drops URLs matching excluded keywords, and caps the candidate count.
func (o *Orchestrator) selectCandidates(queries []string, hits map[string][]ports.SearchResult, project *domain.Project, seen map[string]struct{}) []candidate {
	var candidates []candidate

	for _, query := range queries {
		for _, hit := range hits[query] {
			norm := history.NormalizeURL(hit.URL)
			if _, dup := seen[norm]; dup {
				continue
			}
			if matchesAnyKeyword(hit.URL+" "+hit.Title, project.SearchParameters.ExcludedKeywords) {
				continue
			}

			seen[norm] = struct{}{}
			candidates = append(candidates, candidate{
				url:           hit.URL,
				normalizedURL: norm,
				title:         hit.Title,
				description:   hit.Description,
				sourceQuery:   query,
			})
			if len(candidates) >= o.cfg.CandidateCap {
				return candidates
			}
		}
	}

	return candidates
}

// preFilter drops low-value candidates via the optional LLM capability.
// Any filtering error degrades to keeping everything.
func (o *Orchestrator) preFilter(ctx context.Context, project *domain.Project, candidates []candidate) []candidate {
	filterer, ok := o.llm.(ports.ResultFilterer)
	if !ok {
		return candidates
	}

	pages := make([]ports.CandidatePage, len(candidates))
	for i, c := range candidates {
		pages[i] = ports.CandidatePage{URL: c.url, Title: c.title, Snippet: c.description}
	}

	keep, err := filterer.FilterResults(ctx, project.Description, pages)
	if err != nil {
		o.debug("pre-filter failed, keeping all candidates", "error", err)
		return candidates
	}

	kept := candidates[:0]
	for i, c := range candidates {
		if keep[i] {
			kept = append(kept, c)
		}
	}
	return kept
}

func (o *Orchestrator) extractAndAnalyze(ctx context.Context, project *domain.Project, candidates []candidate, seen map[string]struct{}, run *runState, result *Result) error {
	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.url
	}

	contents := o.extractor.ExtractMultiple(ctx, urls)
	result.URLsFetched += len(urls)

	for i, content := range contents {
		cand := candidates[i]

		if content.FetchStatus != extract.FetchSuccess {
			run.urlObs = append(run.urlObs, history.URLObservation{
				URL:           cand.url,
				NormalizedURL: cand.normalizedURL,
			})
			continue
		}
		result.URLsSuccessful++

		if !o.passesKeywordFilters(content.Snippet+" "+content.Metadata.Title, project) {
			run.urlObs = append(run.urlObs, history.URLObservation{
				URL:           cand.url,
				NormalizedURL: cand.normalizedURL,
			})
			continue
		}

		verdict, err := o.llm.AnalyzeRelevancy(ctx, ports.RelevancyRequest{
			Description: project.Description,
			Title:       content.Metadata.Title,
			Snippet:     content.Snippet,
			URL:         cand.url,
			Threshold:   project.Settings.RelevancyThreshold,
		})
		if err != nil {
			return fmt.Errorf("analyze relevancy for %s: %w", cand.url, err)
		}

		run.urlObs = append(run.urlObs, history.URLObservation{
			URL:            cand.url,
			NormalizedURL:  cand.normalizedURL,
			RelevancyScore: verdict.Score,
			WasIncluded:    verdict.IsRelevant,
		})

		if !verdict.IsRelevant {
			continue
		}

		obs := run.queryObservation(cand.sourceQuery)
		obs.RelevantURLsFound++
		obs.RelevancyScoreSum += verdict.Score

		run.included = append(run.included, domain.Finding{
			ID:             uuid.New().String(),
			ProjectID:      project.ID,
			UserID:         project.UserID,
			URL:            cand.url,
			NormalizedURL:  cand.normalizedURL,
			SourceQuery:    cand.sourceQuery,
			Snippet:        content.Snippet,
			RelevancyScore: verdict.Score,
			Reasoning:      verdict.Reasoning,
			KeyPoints:      verdict.KeyPoints,
			Metadata: domain.FindingMetadata{
				Title:       content.Metadata.Title,
				Author:      content.Metadata.Author,
				PublishedAt: content.Metadata.PublishedAt,
				ImageURL:    content.Metadata.ImageURL,
			},
			CreatedAt: time.Now(),
		})
	}

	return nil
}

// compile produces the report: clustered when any cluster has more than
// one member, flat otherwise, and an empty-period report for no
// findings. The follow-up executive summary is non-fatal.
func (o *Orchestrator) compile(ctx context.Context, project *domain.Project, findings []domain.Finding) (domain.CompiledReport, error) {
	if len(findings) == 0 {
		return domain.CompiledReport{
			Markdown: NoResultsMessage,
			Title:    project.Name,
			Summary:  NoResultsMessage,
		}, nil
	}

	var report domain.CompiledReport
	var err error

	clusters := o.clusterFindings(ctx, findings)
	if hasMultiMemberCluster(clusters) {
		report, err = o.llm.CompileClusteredReport(ctx, project.Description, clusters)
		if err != nil {
			return domain.CompiledReport{}, fmt.Errorf("compile clustered report: %w", err)
		}
	} else {
		report, err = o.llm.CompileReport(ctx, project.Description, findings)
		if err != nil {
			return domain.CompiledReport{}, fmt.Errorf("compile report: %w", err)
		}
	}

	if summary, sErr := o.llm.GenerateSummary(ctx, report.Markdown); sErr == nil && summary != "" {
		report.Summary = summary
	} else if sErr != nil {
		o.debug("summary generation failed, keeping compiler summary", "error", sErr)
	}

	return report, nil
}

// clusterFindings degrades to no clustering when the provider lacks the
// embedding capability or clustering itself fails.
func (o *Orchestrator) clusterFindings(ctx context.Context, findings []domain.Finding) []domain.TopicCluster {
	if o.clusterer == nil {
		return nil
	}
	if _, ok := o.llm.(ports.Embedder); !ok {
		return nil
	}

	clusters, err := o.clusterer.Cluster(ctx, findings)
	if err != nil {
		o.debug("clustering failed, falling back to flat report", "error", err)
		return nil
	}
	return clusters
}

func (o *Orchestrator) persist(ctx context.Context, project *domain.Project, hist *domain.SearchHistory, run *runState, report domain.CompiledReport, logStatus domain.DeliveryStatus, startedAt, completedAt time.Time, result *Result) (string, error) {
	if len(run.included) > 0 {
		if err := o.findings.SaveAll(ctx, run.included); err != nil {
			return "", fmt.Errorf("save findings: %w", err)
		}
	}

	successRate := 0.0
	if result.URLsFetched > 0 {
		successRate = float64(result.URLsSuccessful) / float64(result.URLsFetched) * 100
	}

	var deliveredAt *time.Time
	if logStatus == domain.DeliverySuccess {
		deliveredAt = &completedAt
	}

	log := &domain.DeliveryLog{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		UserID:    project.UserID,
		Report:    report,
		Stats: domain.RunStats{
			QueriesGenerated: len(result.QueriesGenerated),
			QueriesExecuted:  len(result.QueriesExecuted),
			URLsFetched:      result.URLsFetched,
			URLsSuccessful:   result.URLsSuccessful,
			RelevantFindings: len(run.included),
			IterationsUsed:   result.IterationsUsed,
			SuccessRate:      successRate,
			FreshnessUsed:    string(run.freshnessUsed),
			DurationMs:       completedAt.Sub(startedAt).Milliseconds(),
		},
		Status:              logStatus,
		ResearchStartedAt:   startedAt,
		ResearchCompletedAt: completedAt,
		DeliveredAt:         deliveredAt,
		CreatedAt:           completedAt,
	}
	if err := o.logs.Save(ctx, log); err != nil {
		return "", fmt.Errorf("save delivery log: %w", err)
	}

	now := time.Now()
	history.MergeURLs(hist, run.urlObs, now)
	queryObs := make([]history.QueryObservation, 0, len(run.queryObs))
	for _, obs := range run.queryObs {
		queryObs = append(queryObs, *obs)
	}
	history.MergeQueries(hist, queryObs, now)
	if err := o.histories.Save(ctx, hist); err != nil {
		return "", fmt.Errorf("save history: %w", err)
	}

	return log.ID, nil
}

// fail marks the project errored and returns a failure result. No
// partial findings are persisted.
func (o *Orchestrator) fail(ctx context.Context, project *domain.Project, result Result, err error) Result {
	o.warn("research run failed", "error", err)

	if project != nil {
		project.Status = domain.StatusError
		project.LastError = err.Error()
		if updateErr := o.projects.Update(ctx, project); updateErr != nil {
			o.warn("could not mark project errored", "error", updateErr)
		}
	}

	result.Success = false
	result.Error = err.Error()
	result.CompletedAt = time.Now()
	result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()
	return result
}

func (o *Orchestrator) passesKeywordFilters(text string, project *domain.Project) bool {
	if matchesAnyKeyword(text, project.SearchParameters.ExcludedKeywords) {
		return false
	}
	for _, required := range project.SearchParameters.RequiredKeywords {
		if !strings.Contains(strings.ToLower(text), strings.ToLower(required)) {
			return false
		}
	}
	return true
}

func (r *runState) queryObservation(query string) *history.QueryObservation {
	obs, ok := r.queryObs[query]
	if !ok {
		obs = &history.QueryObservation{Query: query}
		r.queryObs[query] = obs
	}
	return obs
}

// widenStep widens the freshness window exactly once per run, and only
// while the run is still short of minResults.
func widenStep(freshness *ports.Freshness, widened *bool, found, minResults int) bool {
	if *widened || found >= minResults {
		return false
	}
	next := freshness.Widen()
	if next == *freshness {
		return false
	}
	*freshness = next
	*widened = true
	return true
}

func initialFreshness(freq domain.Frequency) ports.Freshness {
	switch freq {
	case domain.FrequencyWeekly:
		return ports.FreshnessWeek
	case domain.FrequencyMonthly:
		return ports.FreshnessMonth
	default:
		return ports.FreshnessDay
	}
}

func buildFilters(project *domain.Project, freshness ports.Freshness) ports.SearchFilters {
	return ports.SearchFilters{
		Freshness:      freshness,
		IncludeDomains: project.SearchParameters.PriorityDomains,
		ExcludeDomains: project.SearchParameters.ExcludedDomains,
		Region:         project.SearchParameters.Region,
		Language:       project.SearchParameters.Language,
	}
}

func matchesAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func hasMultiMemberCluster(clusters []domain.TopicCluster) bool {
	for _, c := range clusters {
		if c.Size() > 1 {
			return true
		}
	}
	return false
}

func (o *Orchestrator) info(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o *Orchestrator) debug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}
