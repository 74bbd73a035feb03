// Copyright 2025 Certen Protocol
//
// Chain-specific transaction payload types.

package types

import "math/big"

// TxPayload is a chain-tagged envelope ready for simulation and submission.
// Per the §9 DESIGN NOTES redesign, this is a Go sum type rather than one
// struct with optional per-chain fields: exactly one concrete implementation
// backs any given payload, and the executor/router switch over Family()
// exhaustively instead of checking which optional field happens to be set.
type TxPayload interface {
	Chain() ChainID
	Family() Family
}

// EvmPayload is an unsigned EVM call: either a value transfer, a contract
// call, or both.
type EvmPayload struct {
	ChainID              ChainID
	To                   string
	Data                 []byte
	ValueWei             *big.Int
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (p EvmPayload) Chain() ChainID { return p.ChainID }
func (p EvmPayload) Family() Family { return FamilyEVM }

// SolanaPayload wraps a single pre-built instruction plus the accounts and
// program it targets; the concrete instruction encoding is the adapter's job.
type SolanaPayload struct {
	ChainID     ChainID
	ProgramID   string
	Accounts    []string
	Instruction []byte
}

func (p SolanaPayload) Chain() ChainID { return p.ChainID }
func (p SolanaPayload) Family() Family { return FamilySolana }

// AptosPayload carries a Move entry-function call in the shape the Aptos
// REST API's simulate/submit endpoints expect.
type AptosPayload struct {
	ChainID       ChainID
	Function      string // "0xaddr::module::function"
	TypeArguments []string
	Arguments     []any
}

func (p AptosPayload) Chain() ChainID { return p.ChainID }
func (p AptosPayload) Family() Family { return FamilyAptos }
