// Copyright 2025 Certen Protocol
//
// PolicyGate risk checks: kill switch, caps and health gating.

package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/certen/yield-orchestrator/internal/store"
	"github.com/certen/yield-orchestrator/internal/types"
)

// HealthScoreSource reads a pool's current health score.
type HealthScoreSource interface {
	HealthScore(ctx context.Context, poolID string) (float64, error)
}

// DailyUsdSource reads the trailing-24h sum of confirmed+pending USD.
type DailyUsdSource interface {
	DailyConfirmedUsd(ctx context.Context, since time.Time) (float64, error)
}

// AuditSink records a policy decision to the audit log (§4.11: every
// rejection is logged with severity warning). *store.AuditLogRepository
// satisfies this directly.
type AuditSink interface {
	Append(ctx context.Context, eventType string, severity store.Severity, source, message string, metadata map[string]any) error
}

// Verdict is the gate's decision for one signal.
type Verdict struct {
	Accept  bool
	DryRun  bool
	Reason  string
}

// DefaultAggregatorWhitelist is the set of swap aggregators PolicyGate
// allows a route to use (§4.11's whitelist rule).
var DefaultAggregatorWhitelist = map[string]bool{
	"1inch":             true,
	"paraswap":          true,
	"uniswap-v3":        true,
	"cow_protocol":      true,
	"jupiter":           true,
	"1inch_fusion":      true,
}

// Gate implements C11: reads the current ConfigWatcher snapshot and
// applies the §4.11 rule table to every signal before a Plan is built.
type Gate struct {
	watcher  *ConfigWatcher
	health   HealthScoreSource
	daily    DailyUsdSource
	audit    AuditSink
}

// NewGate wires a PolicyGate over its dependencies.
func NewGate(watcher *ConfigWatcher, health HealthScoreSource, daily DailyUsdSource, audit AuditSink) *Gate {
	return &Gate{watcher: watcher, health: health, daily: daily, audit: audit}
}

// Evaluate applies every §4.11 rule in order and returns the first
// rejection, or an Accept verdict with DryRun set from the current
// snapshot.
func (g *Gate) Evaluate(ctx context.Context, signal types.Signal) Verdict {
	snap := g.watcher.Current()

	if snap.KillSwitch && signal.Action != types.ActionExit && signal.Action != types.ActionDecrease {
		return g.reject(ctx, signal, "kill_switch active: only exit/withdraw allowed")
	}

	if !snap.AutopilotEnabled && !strings.HasPrefix(signal.StrategyID, "manual_") {
		return g.reject(ctx, signal, "autopilot disabled for non-manual strategy")
	}

	if snap.MaxSingleTxUsd > 0 && signal.AmountUsd > snap.MaxSingleTxUsd {
		return g.reject(ctx, signal, fmt.Sprintf("amountUsd %.2f exceeds max_single_tx_usd %.2f", signal.AmountUsd, snap.MaxSingleTxUsd))
	}

	if snap.MaxDailyTxUsd > 0 {
		daily, err := g.daily.DailyConfirmedUsd(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			return g.reject(ctx, signal, fmt.Sprintf("daily cap check failed: %v", err))
		}
		if daily+signal.AmountUsd >= snap.MaxDailyTxUsd {
			return g.reject(ctx, signal, fmt.Sprintf("24h total %.2f + this signal would reach max_daily_tx_usd %.2f", daily, snap.MaxDailyTxUsd))
		}
	}

	if signal.Action == types.ActionEnter && snap.MinHealthScore > 0 {
		score, err := g.health.HealthScore(ctx, signal.PoolID)
		if err != nil {
			return g.reject(ctx, signal, fmt.Sprintf("health score check failed: %v", err))
		}
		if score < snap.MinHealthScore {
			return g.reject(ctx, signal, fmt.Sprintf("pool health score %.2f below minimum %.2f", score, snap.MinHealthScore))
		}
	}

	return Verdict{Accept: true, DryRun: snap.DryRun}
}

// CheckAggregator enforces the swap-route whitelist rule for a specific
// route chosen downstream by the IntentRouter; separated from Evaluate
// since the route isn't known until after the gate's initial accept.
func (g *Gate) CheckAggregator(ctx context.Context, signal types.Signal, aggregator string) Verdict {
	if !DefaultAggregatorWhitelist[aggregator] {
		return g.reject(ctx, signal, fmt.Sprintf("aggregator %q not whitelisted", aggregator))
	}
	return Verdict{Accept: true}
}

func (g *Gate) reject(ctx context.Context, signal types.Signal, reason string) Verdict {
	if g.audit != nil {
		_ = g.audit.Append(ctx, "policy_rejection", store.SeverityWarning, "PolicyGate", reason, map[string]any{
			"signalId": signal.SignalID,
			"action":   signal.Action,
		})
	}
	return Verdict{Accept: false, Reason: reason}
}
