package tasks

import (
	"context"
	"fmt"

	"ResearchRadar/internal/ports"
)

const relevancySystem = `You judge how relevant a page is to a research interest.
Respond with JSON only: {"score":0-100,"reasoning":"...","keyPoints":["..."]}.
Key points are short factual takeaways from the snippet.`

// AnalyzeRelevancy scores one snippet against the project description.
// IsRelevant derives from the configured threshold, not the model.
func (p *Provider) AnalyzeRelevancy(ctx context.Context, req ports.RelevancyRequest) (ports.RelevancyVerdict, error) {
	user := fmt.Sprintf("Research interest: %s\n\nPage: %s\nTitle: %s\n\nContent:\n%s",
		req.Description, req.URL, req.Title, req.Snippet)

	var resp struct {
		Score     int      `json:"score"`
		Reasoning string   `json:"reasoning"`
		KeyPoints []string `json:"keyPoints"`
	}

	validate := func() error {
		if resp.Score < 0 || resp.Score > 100 {
			return fmt.Errorf("score %d out of range", resp.Score)
		}
		return nil
	}

	if err := p.callJSON(ctx, "relevancy analysis", relevancySystem, user, &resp, validate); err != nil {
		return ports.RelevancyVerdict{}, err
	}

	return ports.RelevancyVerdict{
		Score:      resp.Score,
		Reasoning:  resp.Reasoning,
		KeyPoints:  resp.KeyPoints,
		IsRelevant: resp.Score >= req.Threshold,
	}, nil
}
