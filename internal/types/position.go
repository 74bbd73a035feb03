// Copyright 2025 Certen Protocol
//
// Position and valuation types for the ledger.

package types

import "time"

// PositionStatus tracks a Position's lifecycle.
type PositionStatus string

const (
	PositionActive  PositionStatus = "active"
	PositionClosed  PositionStatus = "closed"
	PositionPending PositionStatus = "pending"
)

// Position is the persistent record of capital committed to one pool.
type Position struct {
	PositionID       string
	PoolID           string
	WalletAddress    string
	Chain            ChainID
	AmountToken0     float64
	AmountToken1     float64
	ValueUsd         float64
	EntryValueUsd    float64
	UnrealizedPnlUsd float64
	RealizedPnlUsd   float64
	Status           PositionStatus
	OpenedAt         time.Time
	ClosedAt         *time.Time
	UpdatedAt        time.Time
}

// PendingStatus tracks a PendingSignature awaiting an external signer.
type PendingStatus string

const (
	PendingSigPending     PendingStatus = "pending"
	PendingSigBroadcasted PendingStatus = "broadcasted"
	PendingSigRejected    PendingStatus = "rejected"
	PendingSigExpired     PendingStatus = "expired"
)

// PendingSignature persists an assembled TxPayload for an external signer
// when no hot key is loaded for its chain (§4.12).
type PendingSignature struct {
	ID               string
	Chain            ChainID
	Kind             StepKind
	AmountUsd        float64
	Payload          []byte // opaque, JSON-encoded TxPayload
	Status           PendingStatus
	SignatureOrHash  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
