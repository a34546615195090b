package reputation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/triage-ai/palisade/package_guard/internal/extract"
)

// Severity is the ordinal risk of an alert. Higher values are worse.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMiddle
	SeverityHigh
	SeverityCritical
)

// String returns the severity as the scoring tool spells it.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMiddle:
		return "middle"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity maps the tool's severity string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "middle":
		return SeverityMiddle, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityUnknown, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Alert is a single issue the scoring tool reported for a package.
type Alert struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
}

// Report is the parsed scoring result for one package.
type Report struct {
	Package extract.PackageRef
	Alerts  []Alert
}

// WorstSeverity returns the highest severity present, or SeverityUnknown for no alerts.
func (r *Report) WorstSeverity() Severity {
	worst := SeverityUnknown
	if r == nil {
		return worst
	}
	for _, a := range r.Alerts {
		if a.Severity > worst {
			worst = a.Severity
		}
	}
	return worst
}

// AlertsAt returns the alerts with exactly the given severity, in report order.
func (r *Report) AlertsAt(sev Severity) []Alert {
	if r == nil {
		return nil
	}
	var out []Alert
	for _, a := range r.Alerts {
		if a.Severity == sev {
			out = append(out, a)
		}
	}
	return out
}

var (
	// ErrToolNotFound means the scoring tool is not installed or not on PATH.
	ErrToolNotFound = errors.New("reputation tool not found")

	// ErrIndeterminate means the tool ran but produced no usable verdict.
	ErrIndeterminate = errors.New("reputation check indeterminate")
)

// Source scores packages. Implementations must respect ctx deadlines.
type Source interface {
	// Available reports whether the source can be queried at all.
	// Returns an error wrapping ErrToolNotFound when it cannot.
	Available() error

	// Score returns the report for ref. Failures wrap ErrIndeterminate.
	Score(ctx context.Context, ref extract.PackageRef) (*Report, error)
}
