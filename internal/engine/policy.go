package engine

import (
	"fmt"
	"strings"

	"github.com/triage-ai/palisade/package_guard/internal/hook"
	"github.com/triage-ai/palisade/package_guard/internal/reputation"
	"github.com/triage-ai/palisade/package_guard/internal/storage"
)

// PolicyResult holds the decision for a report and how it is audited.
type PolicyResult struct {
	Decision  hook.Decision
	EventType storage.EventType
	Action    string
	Reason    string // audit reason; also the decision reason for deny/ask
	Alerts    []reputation.Alert
}

// Decide maps the worst severity in report to a decision.
//
// Rules (applied in order, exactly one fires):
//  1. Any critical alert → DENY, listing every critical alert
//  2. Any high alert     → ASK, listing every high alert
//  3. Otherwise          → ALLOW
//
// Middle and low alerts are informational and never change the outcome.
func Decide(report *reputation.Report) PolicyResult {
	pkg := packageLabel(report)

	if critical := report.AlertsAt(reputation.SeverityCritical); len(critical) > 0 {
		reason := fmt.Sprintf("Blocked %s: critical security alerts: %s", pkg, describeAlerts(critical))
		return PolicyResult{
			Decision:  hook.Deny(reason),
			EventType: storage.EventBlock,
			Action:    storage.ActionBlocked,
			Reason:    reason,
			Alerts:    critical,
		}
	}

	if high := report.AlertsAt(reputation.SeverityHigh); len(high) > 0 {
		reason := fmt.Sprintf("%s has high severity alerts: %s. Review before installing.", pkg, describeAlerts(high))
		return PolicyResult{
			Decision:  hook.Ask(reason),
			EventType: storage.EventWarn,
			Action:    storage.ActionAsked,
			Reason:    reason,
			Alerts:    high,
		}
	}

	var alerts []reputation.Alert
	if report != nil {
		alerts = report.Alerts
	}
	return PolicyResult{
		Decision:  hook.Allow(""),
		EventType: storage.EventAllow,
		Action:    storage.ActionAllowed,
		Reason:    fmt.Sprintf("%s has no critical or high severity alerts", pkg),
		Alerts:    alerts,
	}
}

func packageLabel(report *reputation.Report) string {
	if report == nil || report.Package.Name == "" {
		return "package"
	}
	if report.Package.Ecosystem == "" {
		return report.Package.Name
	}
	return report.Package.Ecosystem + " package " + report.Package.Name
}

func describeAlerts(alerts []reputation.Alert) string {
	parts := make([]string, len(alerts))
	for i, a := range alerts {
		if a.Category != "" {
			parts[i] = fmt.Sprintf("%s (%s)", a.Name, a.Category)
		} else {
			parts[i] = a.Name
		}
	}
	return strings.Join(parts, ", ")
}
