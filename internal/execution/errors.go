// Copyright 2025 Certen Protocol
//
// Package execution implements the transaction execution pipeline: the
// per-chain executor, the planner that expands signals into plans, the gas
// gate, the intent router and the fund preparer (components C5-C9 of the
// design). Errors are classified as values with a kind discriminator rather
// than exceptions, per the redesign notes: the Executor is the sole
// terminal handler of every kind below.

package execution

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy of §7.
type Kind string

const (
	KindConfig             Kind = "ConfigError"
	KindPolicyRejection    Kind = "PolicyRejection"
	KindRpcTransient       Kind = "RpcTransient"
	KindNonceMismatch      Kind = "NonceMismatch"
	KindInsufficientFunds  Kind = "InsufficientBalance"
	KindSlippageExceeded   Kind = "SlippageExceeded"
	KindReverted           Kind = "Reverted"
	KindSimulationFailed   Kind = "SimulationFailed"
	KindTimeout            Kind = "Timeout"
	KindBridgeRefundable   Kind = "BridgeRefundable"
)

// Error wraps an underlying cause with a §7 classification.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified Error.
func New(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindReverted for
// unclassified errors per §7's SimulationFailed fallback rule.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindReverted
}

// Retryable reports whether a step may be retried for this error kind,
// per the §4.8/§7 retry policy. SlippageExceeded is retryable only when the
// caller opted into widening slippage; that decision is made by the caller,
// not here, since this function has no access to the signal's flag.
func Retryable(kind Kind) bool {
	switch kind {
	case KindRpcTransient, KindNonceMismatch:
		return true
	default:
		return false
	}
}

var (
	// ErrKillSwitch is returned by PolicyGate when the global kill switch
	// blocks a non-exit, non-withdraw mutation.
	ErrKillSwitch = errors.New("kill switch active")
	// ErrAutopilotDisabled blocks non-manual signals when autopilot is off.
	ErrAutopilotDisabled = errors.New("autopilot disabled for non-manual strategy")
	// ErrCapExceeded covers both per-tx and rolling daily USD caps.
	ErrCapExceeded = errors.New("usd cap exceeded")
	// ErrHealthScore blocks entry into an unhealthy pool.
	ErrHealthScore = errors.New("pool health score below minimum")
	// ErrAggregatorNotWhitelisted blocks swaps routed through an
	// unapproved aggregator.
	ErrAggregatorNotWhitelisted = errors.New("swap aggregator not whitelisted")
)
