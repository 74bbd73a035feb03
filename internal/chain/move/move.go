// Copyright 2025 Certen Protocol
//
// Package move implements the Aptos/Move chain-family execution strategy
// against the Aptos REST API's simulate/submit/transactions-by-hash
// endpoints.
//
// No Aptos SDK appears anywhere in the retrieval pack (unlike go-ethereum
// for EVM and gagliardetto/solana-go for Solana), so this is the one chain
// strategy built on net/http + encoding/json against the account, simulate
// and transactions REST endpoints directly.

package move

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// Strategy is one Aptos REST endpoint's live connection.
type Strategy struct {
	chainID ctypes.ChainID
	baseURL string
	http    *http.Client
}

// Dial verifies the REST endpoint is reachable via GET /v1 and fails fast
// otherwise, per ProtocolAdapter.initialize()'s contract (§4.3).
func Dial(ctx context.Context, chain ctypes.ChainID, baseURL string) (*Strategy, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("aptos: empty REST URL for chain %s", chain)
	}
	s := &Strategy{chainID: chain, baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1", nil)
	if err != nil {
		return nil, fmt.Errorf("aptos: build health request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aptos: health check %s: %w", chain, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("aptos: health check %s: status %d", chain, resp.StatusCode)
	}
	return s, nil
}

// SequenceNumber fetches the account's current sequence number, Aptos's
// analogue of an EVM nonce, used both for simulation and submission.
func (s *Strategy) SequenceNumber(ctx context.Context, address string) (uint64, error) {
	var out struct {
		SequenceNumber string `json:"sequence_number"`
	}
	if err := s.get(ctx, fmt.Sprintf("/v1/accounts/%s", address), &out); err != nil {
		return 0, fmt.Errorf("aptos: account lookup: %w", err)
	}
	seq, err := strconv.ParseUint(out.SequenceNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("aptos: parse sequence number: %w", err)
	}
	return seq, nil
}

// SimResult mirrors evm.SimResult for the Aptos family.
type SimResult struct {
	OK           bool
	GasUsed      uint64
	RevertReason string
}

// Simulate calls /v1/transactions/simulate using the account's current
// sequence number, per §4.4's Aptos simulation contract.
func (s *Strategy) Simulate(ctx context.Context, payload ctypes.AptosPayload, sender string) (*SimResult, error) {
	seq, err := s.SequenceNumber(ctx, sender)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"sender":                    sender,
		"sequence_number":           strconv.FormatUint(seq, 10),
		"max_gas_amount":            "200000",
		"gas_unit_price":            "100",
		"expiration_timestamp_secs": strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10),
		"payload": map[string]any{
			"type":           "entry_function_payload",
			"function":       payload.Function,
			"type_arguments": payload.TypeArguments,
			"arguments":      payload.Arguments,
		},
		"signature": map[string]any{
			"type":       "ed25519_signature",
			"public_key": "0x" + "00",
			"signature":  "0x" + "00",
		},
	}

	var out []struct {
		Success  bool   `json:"success"`
		VmStatus string `json:"vm_status"`
		GasUsed  string `json:"gas_used"`
	}
	if err := s.post(ctx, "/v1/transactions/simulate", body, &out); err != nil {
		return nil, fmt.Errorf("aptos: simulate: %w", err)
	}
	if len(out) == 0 {
		return &SimResult{OK: false, RevertReason: "empty simulation response"}, nil
	}
	first := out[0]
	if !first.Success {
		return &SimResult{OK: false, RevertReason: first.VmStatus}, nil
	}
	gasUsed, _ := strconv.ParseUint(first.GasUsed, 10, 64)
	return &SimResult{OK: true, GasUsed: gasUsed}, nil
}

// Submit builds the signed transaction envelope and posts it to
// /v1/transactions, returning the transaction hash.
func (s *Strategy) Submit(ctx context.Context, payload ctypes.AptosPayload, sender string, seq, maxGas uint64, publicKeyHex, signatureHex string) (string, error) {
	body := map[string]any{
		"sender":                    sender,
		"sequence_number":           strconv.FormatUint(seq, 10),
		"max_gas_amount":            strconv.FormatUint(maxGas, 10),
		"gas_unit_price":            "100",
		"expiration_timestamp_secs": strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10),
		"payload": map[string]any{
			"type":           "entry_function_payload",
			"function":       payload.Function,
			"type_arguments": payload.TypeArguments,
			"arguments":      payload.Arguments,
		},
		"signature": map[string]any{
			"type":       "ed25519_signature",
			"public_key": publicKeyHex,
			"signature":  signatureHex,
		},
	}

	var out struct {
		Hash string `json:"hash"`
	}
	if err := s.post(ctx, "/v1/transactions", body, &out); err != nil {
		return "", fmt.Errorf("aptos: submit: %w", err)
	}
	return out.Hash, nil
}

// Confirmation mirrors evm.Confirmation for the Aptos family.
type Confirmation struct {
	Success bool
	Version uint64
}

// PollTransaction polls GET /v1/transactions/by_hash/{hash} until the
// transaction is confirmed, fails, or the context deadline elapses.
func (s *Strategy) PollTransaction(ctx context.Context, hash string, pollInterval time.Duration) (*Confirmation, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var out struct {
			Type    string `json:"type"`
			Success bool   `json:"success"`
			Version string `json:"version"`
		}
		err := s.get(ctx, "/v1/transactions/by_hash/"+hash, &out)
		if err == nil && out.Type != "pending_transaction" {
			version, _ := strconv.ParseUint(out.Version, 10, 64)
			return &Confirmation{Success: out.Success, Version: version}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("aptos: confirmation timeout for %s", hash)
		case <-ticker.C:
		}
	}
}

func (s *Strategy) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Strategy) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
