package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
)

// DefaultSimilarityThreshold is the cosine similarity at which two
// findings are treated as the same story.
const DefaultSimilarityThreshold = 0.85

const snippetExcerptChars = 200

// Clusterer groups semantically similar findings via embeddings.
type Clusterer struct {
	embedder  ports.Embedder
	threshold float64
	logger    *slog.Logger
}

// New builds a clusterer. Threshold values outside (0,1] fall back to
// the default.
func New(embedder ports.Embedder, threshold float64, logger *slog.Logger) *Clusterer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Clusterer{embedder: embedder, threshold: threshold, logger: logger}
}

// Cluster groups the findings into topic clusters sorted by average
// score descending. Fewer than two findings short-circuit to one cluster
// per finding.
func (c *Clusterer) Cluster(ctx context.Context, findings []domain.Finding) ([]domain.TopicCluster, error) {
	if len(findings) == 0 {
		return nil, nil
	}
	if len(findings) == 1 {
		return []domain.TopicCluster{singleton(findings[0])}, nil
	}

	texts := make([]string, len(findings))
	for i, f := range findings {
		texts[i] = embeddingText(f)
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed findings: %w", err)
	}
	if len(vectors) != len(findings) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d findings", len(vectors), len(findings))
	}

	set := NewDisjointSet(len(findings))
	for i := 0; i < len(findings); i++ {
		for j := i + 1; j < len(findings); j++ {
			if cosineSimilarity(vectors[i], vectors[j]) >= c.threshold {
				set.Union(i, j)
			}
		}
	}

	groups := map[int][]domain.Finding{}
	for i, f := range findings {
		root := set.Find(i)
		groups[root] = append(groups[root], f)
	}

	clusters := make([]domain.TopicCluster, 0, len(groups))
	for _, members := range groups {
		clusters = append(clusters, build(members))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].AverageScore > clusters[j].AverageScore
	})

	if c.logger != nil {
		c.logger.Debug("clustered findings", "findings", len(findings), "clusters", len(clusters))
	}
	return clusters, nil
}

func singleton(f domain.Finding) domain.TopicCluster {
	return domain.TopicCluster{
		PrimaryArticle:    f,
		AllSources:        []string{f.URL},
		CombinedKeyPoints: mergeKeyPoints([][]string{f.KeyPoints}),
		AverageScore:      float64(f.RelevancyScore),
	}
}

func build(members []domain.Finding) domain.TopicCluster {
	primaryIdx := 0
	total := 0.0
	for i, m := range members {
		total += float64(m.RelevancyScore)
		if m.RelevancyScore > members[primaryIdx].RelevancyScore {
			primaryIdx = i
		}
	}

	cluster := domain.TopicCluster{
		PrimaryArticle: members[primaryIdx],
		AverageScore:   total / float64(len(members)),
	}

	pointSets := make([][]string, 0, len(members))
	pointSets = append(pointSets, members[primaryIdx].KeyPoints)
	for i, m := range members {
		cluster.AllSources = append(cluster.AllSources, m.URL)
		if i == primaryIdx {
			continue
		}
		cluster.RelatedArticles = append(cluster.RelatedArticles, m)
		pointSets = append(pointSets, m.KeyPoints)
	}

	cluster.CombinedKeyPoints = mergeKeyPoints(pointSets)
	return cluster
}

// embeddingText concatenates title, key points, and a snippet excerpt as
// the clustering signal for one finding.
func embeddingText(f domain.Finding) string {
	parts := []string{f.Metadata.Title}
	parts = append(parts, f.KeyPoints...)

	excerpt := f.Snippet
	if len(excerpt) > snippetExcerptChars {
		excerpt = excerpt[:snippetExcerptChars]
	}
	parts = append(parts, excerpt)

	return strings.Join(parts, " ")
}

// mergeKeyPoints flattens the members' key points, dropping near
// duplicates: a point is a duplicate of an already-kept point if one
// contains the other, or both exceed 20 characters, differ in length by
// fewer than 10, and share the same leading 20 characters.
func mergeKeyPoints(pointSets [][]string) []string {
	var kept []string

	for _, points := range pointSets {
		for _, point := range points {
			point = strings.TrimSpace(point)
			if point == "" {
				continue
			}

			duplicate := false
			for _, existing := range kept {
				if isNearDuplicate(point, existing) {
					duplicate = true
					break
				}
			}
			if !duplicate {
				kept = append(kept, point)
			}
		}
	}

	return kept
}

func isNearDuplicate(a, b string) bool {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if len(a) > 20 && len(b) > 20 {
		diff := len(a) - len(b)
		if diff < 0 {
			diff = -diff
		}
		if diff < 10 && a[:20] == b[:20] {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
