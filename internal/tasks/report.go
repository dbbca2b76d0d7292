package tasks

import (
	"context"
	"fmt"
	"strings"

	"ResearchRadar/internal/domain"
)

const reportSystem = `You compile research findings into a markdown report.
Respond with JSON only: {"markdown":"...","title":"...","summary":"..."}.
Group related items, cite every source URL, keep the tone factual.`

const summarySystem = `You write a tight executive summary of a finished markdown report.
Respond with JSON only: {"summary":"..."}. Three sentences at most.`

type reportResponse struct {
	Markdown string `json:"markdown"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
}

func (r reportResponse) validate() error {
	if strings.TrimSpace(r.Markdown) == "" {
		return fmt.Errorf("empty markdown")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("empty title")
	}
	return nil
}

// CompileReport turns ranked findings into a markdown report.
func (p *Provider) CompileReport(ctx context.Context, description string, findings []domain.Finding) (domain.CompiledReport, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research interest: %s\n\nFindings (ranked):\n", description)
	for i, f := range findings {
		fmt.Fprintf(&sb, "%d. [%d] %s\n   %s\n   Key points: %s\n",
			i+1, f.RelevancyScore, f.Metadata.Title, f.URL, strings.Join(f.KeyPoints, "; "))
	}

	var resp reportResponse
	if err := p.callJSON(ctx, "report compilation", reportSystem, sb.String(), &resp, func() error { return resp.validate() }); err != nil {
		return domain.CompiledReport{}, err
	}

	return domain.CompiledReport{Markdown: resp.Markdown, Title: resp.Title, Summary: resp.Summary}, nil
}

// CompileClusteredReport compiles a report organised around topic
// clusters, one section per story.
func (p *Provider) CompileClusteredReport(ctx context.Context, description string, clusters []domain.TopicCluster) (domain.CompiledReport, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research interest: %s\n\nStories (each cluster is one story; merge its sources into one section):\n", description)
	for i, cluster := range clusters {
		fmt.Fprintf(&sb, "Story %d (avg score %.0f): %s\n   Primary: %s\n",
			i+1, cluster.AverageScore, cluster.PrimaryArticle.Metadata.Title, cluster.PrimaryArticle.URL)
		for _, related := range cluster.RelatedArticles {
			fmt.Fprintf(&sb, "   Also covered by: %s\n", related.URL)
		}
		fmt.Fprintf(&sb, "   Key points: %s\n", strings.Join(cluster.CombinedKeyPoints, "; "))
	}

	var resp reportResponse
	if err := p.callJSON(ctx, "clustered report compilation", reportSystem, sb.String(), &resp, func() error { return resp.validate() }); err != nil {
		return domain.CompiledReport{}, err
	}

	return domain.CompiledReport{Markdown: resp.Markdown, Title: resp.Title, Summary: resp.Summary}, nil
}

// GenerateSummary regenerates a tighter executive summary from the
// finished markdown. Callers treat a failure here as non-fatal.
func (p *Provider) GenerateSummary(ctx context.Context, markdown string) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}

	validate := func() error {
		if strings.TrimSpace(resp.Summary) == "" {
			return fmt.Errorf("empty summary")
		}
		return nil
	}

	if err := p.callJSON(ctx, "summary generation", summarySystem, markdown, &resp, validate); err != nil {
		return "", err
	}
	return resp.Summary, nil
}
