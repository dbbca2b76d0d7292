package tasks

import (
	"context"
	"fmt"
	"strings"

	"ResearchRadar/internal/ports"
)

const queryGenSystem = `You generate web search queries for a research assistant.
Respond with JSON only: {"queries":[{"query":"...","kind":"broad|specific|question|temporal"}]}.
Produce between 5 and 7 queries covering all four kinds.`

var validQueryKinds = map[string]bool{
	"broad":    true,
	"specific": true,
	"question": true,
	"temporal": true,
}

// GenerateQueries asks for 5-7 tagged search queries. Later iterations
// include prior top-performing queries and explicit broadening guidance.
func (p *Provider) GenerateQueries(ctx context.Context, req ports.QueryRequest) ([]ports.GeneratedQuery, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research interest: %s\n", req.Description)

	if len(req.RequiredKeywords) > 0 {
		fmt.Fprintf(&sb, "Required keywords: %s\n", strings.Join(req.RequiredKeywords, ", "))
	}
	if len(req.ExcludedKeywords) > 0 {
		fmt.Fprintf(&sb, "Avoid topics containing: %s\n", strings.Join(req.ExcludedKeywords, ", "))
	}
	if req.Iteration > 1 {
		fmt.Fprintf(&sb, "This is iteration %d; earlier queries found too few results. Broaden the phrasing and vary the angles.\n", req.Iteration)
		if len(req.TopQueries) > 0 {
			fmt.Fprintf(&sb, "Queries that performed well before: %s\n", strings.Join(req.TopQueries, "; "))
		}
	}

	var resp struct {
		Queries []struct {
			Query string `json:"query"`
			Kind  string `json:"kind"`
		} `json:"queries"`
	}

	validate := func() error {
		if len(resp.Queries) == 0 {
			return fmt.Errorf("no queries returned")
		}
		for _, q := range resp.Queries {
			if strings.TrimSpace(q.Query) == "" {
				return fmt.Errorf("empty query text")
			}
		}
		return nil
	}

	if err := p.callJSON(ctx, "query generation", queryGenSystem, sb.String(), &resp, validate); err != nil {
		return nil, err
	}

	queries := make([]ports.GeneratedQuery, 0, len(resp.Queries))
	for _, q := range resp.Queries {
		kind := strings.ToLower(strings.TrimSpace(q.Kind))
		if !validQueryKinds[kind] {
			kind = "broad"
		}
		queries = append(queries, ports.GeneratedQuery{
			Query: strings.TrimSpace(q.Query),
			Kind:  kind,
		})
	}

	p.debug("generated queries", "count", len(queries), "iteration", req.Iteration)
	return queries, nil
}
