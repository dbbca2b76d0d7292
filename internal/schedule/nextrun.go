package schedule

import (
	"fmt"
	"time"

	"ResearchRadar/internal/domain"
)

// NextRunAt computes the next delivery instant for a project: convert
// now to the project timezone, pin the configured delivery time, and
// advance by whole frequency periods until strictly in the future.
func NextRunAt(now time.Time, project *domain.Project) time.Time {
	loc := project.Location()
	local := now.In(loc)

	hour, minute, err := parseDeliveryTime(project.DeliveryTime)
	if err != nil {
		hour, minute = 8, 0
	}

	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	for !candidate.After(local) {
		candidate = advance(candidate, project.Frequency)
	}
	return candidate
}

func advance(t time.Time, freq domain.Frequency) time.Time {
	switch freq {
	case domain.FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case domain.FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func parseDeliveryTime(value string) (int, int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid delivery time %q: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("delivery time %q out of range", value)
	}
	return hour, minute, nil
}
