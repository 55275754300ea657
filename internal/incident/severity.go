package incident

import (
	"fmt"
	"strings"
)

// Severity is the level attached to a persisted incident.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// DefaultSeverity is used for labels missing from the severity map.
const DefaultSeverity = SeverityMedium

// DefaultRanking orders the traffic detector vocabulary, most severe first.
var DefaultRanking = []string{
	"Multiple collision",
	"Vehicle fire",
	"Vehicular accident",
	"Reckless driving",
	"Tailgating",
	"Self-accident",
}

// DefaultSeverityMap maps the traffic detector vocabulary to severities.
var DefaultSeverityMap = map[string]Severity{
	"Multiple collision": SeverityHigh,
	"Vehicle fire":       SeverityHigh,
	"Vehicular accident": SeverityHigh,
	"Reckless driving":   SeverityMedium,
	"Tailgating":         SeverityMedium,
	"Self-accident":      SeverityLow,
}

// ParseSeverity converts a case-insensitive level name to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityLow:
		return SeverityLow, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// String implements fmt.Stringer.
func (s Severity) String() string {
	return string(s)
}
