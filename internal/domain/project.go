package domain

import "time"

// Frequency describes how often a project's research runs.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ProjectStatus enumerates a project's lifecycle states.
type ProjectStatus string

const (
	StatusActive  ProjectStatus = "active"
	StatusRunning ProjectStatus = "running"
	StatusPaused  ProjectStatus = "paused"
	StatusError   ProjectStatus = "error"
)

// SearchParameters narrows what the search provider may return.
type SearchParameters struct {
	PriorityDomains  []string
	ExcludedDomains  []string
	RequiredKeywords []string
	ExcludedKeywords []string
	Region           string
	Language         string
}

// ProjectSettings tunes how aggressively a run collects findings.
type ProjectSettings struct {
	RelevancyThreshold int // 0-100
	MinResults         int
	MaxResults         int
}

// Project is a user's standing research interest with its schedule.
type Project struct {
	ID                    string
	UserID                string
	Name                  string
	Description           string
	Frequency             Frequency
	DeliveryTime          string // local HH:MM
	Timezone              string
	SearchParameters      SearchParameters
	Settings              ProjectSettings
	Status                ProjectStatus
	LastRunAt             *time.Time
	NextRunAt             *time.Time
	LastError             string
	PreparedDeliveryLogID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Location resolves the project timezone, defaulting to UTC.
func (p Project) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}
