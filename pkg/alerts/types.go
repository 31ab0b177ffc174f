package alerts

import "time"

// Severity levels, lowest to highest
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Event is the JSON alert envelope delivered to subscribers
type Event struct {
	Type        string    `json:"type"`
	AlertID     string    `json:"alert_id"`
	Severity    string    `json:"severity"`
	AlertType   string    `json:"alert_type"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
}

// Filter is a per-connection subscription filter. An absent field
// matches everything. Subscription control messages carry this shape
// and are merged into the connection's existing filter.
type Filter struct {
	Severities []string `json:"severity,omitempty"`
	AlertTypes []string `json:"alert_types,omitempty"`
	SourceIDs  []string `json:"source_ids,omitempty"`
}

// merge folds additional filter fields into f without replacing
// existing ones
func (f *Filter) merge(other Filter) {
	f.Severities = appendMissing(f.Severities, other.Severities)
	f.AlertTypes = appendMissing(f.AlertTypes, other.AlertTypes)
	f.SourceIDs = appendMissing(f.SourceIDs, other.SourceIDs)
}

// matches evaluates an event against the filter
func (f *Filter) matches(evt Event) bool {
	if len(f.Severities) > 0 && !containsString(f.Severities, evt.Severity) {
		return false
	}
	if len(f.AlertTypes) > 0 && !containsString(f.AlertTypes, evt.AlertType) {
		return false
	}
	if len(f.SourceIDs) > 0 && !containsString(f.SourceIDs, evt.Source) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func appendMissing(existing, extra []string) []string {
	for _, s := range extra {
		if !containsString(existing, s) {
			existing = append(existing, s)
		}
	}
	return existing
}
