package monitoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "failure_rate"
	AlertCostOverrun AlertType = "cost_overrun"
	AlertRateLimited AlertType = "rate_limited"
)

// Alert is a single threshold breach.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlertThresholds configures Evaluate. Zero values disable a check.
type AlertThresholds struct {
	// FailureRate alerts once MinFinished items are done and the failed
	// share exceeds it.
	FailureRate float64
	MinFinished int
	// CostBudgetUSD alerts when estimated spend exceeds it.
	CostBudgetUSD float64
	// RateLimited alerts when this many items failed with rate_limit.
	RateLimited int
}

// DefaultAlertThresholds returns the stock batch alert settings.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{FailureRate: 0.5, MinFinished: 5, RateLimited: 3}
}

// Evaluate checks snap against th and returns any alerts.
func Evaluate(snap Snapshot, th AlertThresholds) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	if th.FailureRate > 0 && snap.Total >= th.MinFinished && snap.FailRate > th.FailureRate {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("failure rate %.1f%% exceeds %.1f%% (%d failed / %d finished)",
				snap.FailRate*100, th.FailureRate*100, snap.Failed, snap.Total),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    th.FailureRate,
				"failed":       snap.Failed,
				"finished":     snap.Total,
			},
			Timestamp: now,
		})
	}

	if th.CostBudgetUSD > 0 && snap.CostUSD > th.CostBudgetUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "medium",
			Message:  fmt.Sprintf("estimated cost $%.4f exceeds budget $%.4f", snap.CostUSD, th.CostBudgetUSD),
			Details: map[string]any{
				"cost_usd": snap.CostUSD,
				"budget":   th.CostBudgetUSD,
			},
			Timestamp: now,
		})
	}

	if n := snap.FailuresByKind["rate_limit"]; th.RateLimited > 0 && n >= th.RateLimited {
		alerts = append(alerts, Alert{
			Type:      AlertRateLimited,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d items exhausted retries on rate limits", n),
			Details:   map[string]any{"rate_limited": n},
			Timestamp: now,
		})
	}

	return alerts
}

// LogAlerts writes alerts to the global logger.
func LogAlerts(alerts []Alert) {
	for _, a := range alerts {
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
			zap.Any("details", a.Details),
		)
	}
}
