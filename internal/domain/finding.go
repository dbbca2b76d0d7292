package domain

import "time"

// FindingMetadata carries presentation details extracted from the page.
type FindingMetadata struct {
	Title       string
	Author      string
	PublishedAt *time.Time
	ImageURL    string
}

// Finding is a single extracted and scored piece of content.
// Immutable once persisted.
type Finding struct {
	ID             string
	ProjectID      string
	UserID         string
	URL            string
	NormalizedURL  string
	SourceQuery    string
	Snippet        string
	RelevancyScore int
	Reasoning      string
	KeyPoints      []string
	Metadata       FindingMetadata
	CreatedAt      time.Time
}
