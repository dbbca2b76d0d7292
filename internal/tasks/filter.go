package tasks

import (
	"context"
	"fmt"
	"strings"

	"ResearchRadar/internal/ports"
)

const filterSystem = `You triage search results before expensive page fetches.
Given a research interest and numbered title/snippet pairs, respond with JSON only:
{"keep":[true,false,...]} with exactly one boolean per input, in order.`

// FilterResults decides keep/discard per candidate page from title and
// snippet alone, saving extraction work on low-value pages.
func (p *Provider) FilterResults(ctx context.Context, description string, pages []ports.CandidatePage) ([]bool, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Research interest: %s\n\nCandidates:\n", description)
	for i, page := range pages {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, page.Title, page.Snippet)
	}

	var resp struct {
		Keep []bool `json:"keep"`
	}

	validate := func() error {
		if len(resp.Keep) != len(pages) {
			return fmt.Errorf("expected %d decisions, got %d", len(pages), len(resp.Keep))
		}
		return nil
	}

	if err := p.callJSON(ctx, "result filtering", filterSystem, sb.String(), &resp, validate); err != nil {
		return nil, err
	}

	return resp.Keep, nil
}
