package domain

// TopicCluster groups findings judged to cover the same story.
// Constructed once per run and consumed by the report compiler;
// never persisted independently.
type TopicCluster struct {
	PrimaryArticle    Finding
	RelatedArticles   []Finding
	AllSources        []string
	CombinedKeyPoints []string
	AverageScore      float64
}

// Size returns the total member count including the primary article.
func (c TopicCluster) Size() int {
	return 1 + len(c.RelatedArticles)
}
