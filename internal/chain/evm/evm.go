// Copyright 2025 Certen Protocol
//
// Package evm implements the EVM chain-family execution strategy: dialing
// the RPC, nonce/gas-price queries, eth_call/estimateGas simulation,
// signed raw-transaction submission and receipt polling.
//
// Grounded on pkg/chain/strategy/evm_strategy.go (ethclient dial, chain ID
// fetch, keyed transactor) and evm_observer.go (receipt polling loop),
// adapted from the 3-step anchor workflow to a simulate/route/submit/confirm
// pipeline (§4.4, §4.8).

package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// Strategy is one EVM chain's live RPC connection. One Strategy per
// (chain, RPC URL) is shared across all callers per §5's shared-resource
// rules; *ethclient.Client is safe for concurrent use.
type Strategy struct {
	chainID  ctypes.ChainID
	client   *ethclient.Client
	evmID    *big.Int
}

// Dial connects to rpcURL and fails fast if the node is unreachable,
// per ProtocolAdapter.initialize()'s fail-fast contract (§4.3).
func Dial(ctx context.Context, chain ctypes.ChainID, rpcURL string) (*Strategy, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("evm: empty RPC URL for chain %s", chain)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", chain, err)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	evmID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: fetch chain id for %s: %w", chain, err)
	}
	return &Strategy{chainID: chain, client: client, evmID: evmID}, nil
}

// Close releases the underlying RPC connection.
func (s *Strategy) Close() { s.client.Close() }

// TransactionCount implements chain.RPCNonceSource: the confirmed
// (non-pending) transaction count at the latest block, used to reseed
// NonceManager on first use or after a reset.
func (s *Strategy) TransactionCount(ctx context.Context, chain ctypes.ChainID, address string) (uint64, error) {
	return s.client.NonceAt(ctx, common.HexToAddress(address), nil)
}

// GasPriceGwei returns the chain's current suggested gas price in Gwei,
// consumed by the GasScheduler's threshold comparison (§4.5).
func (s *Strategy) GasPriceGwei(ctx context.Context) (float64, error) {
	wei, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("evm: gas price: %w", err)
	}
	gwei := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9))
	f, _ := gwei.Float64()
	return f, nil
}

// SimResult is the §4.4 TxSimulator result shape.
type SimResult struct {
	OK            bool
	GasEstimate   uint64
	RevertReason  string
}

// Simulate performs eth_call at latest block plus eth_estimateGas, per
// §4.4's EVM simulation contract. On revert, it surfaces the raw revert
// data as the reason; decoding a specific error ABI is left to the
// adapter that knows the target contract's error types.
func (s *Strategy) Simulate(ctx context.Context, from string, p ctypes.EvmPayload) (*SimResult, error) {
	msg := ethereum.CallMsg{
		From:  common.HexToAddress(from),
		To:    addrPtr(p.To),
		Data:  p.Data,
		Value: valueOrZero(p.ValueWei),
	}

	if _, err := s.client.CallContract(ctx, msg, nil); err != nil {
		return &SimResult{OK: false, RevertReason: revertReason(err)}, nil
	}

	gas, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return &SimResult{OK: false, RevertReason: revertReason(err)}, nil
	}

	return &SimResult{OK: true, GasEstimate: gas}, nil
}

// BaseFee returns the latest block's base fee, used to compose the
// EIP-1559 maxFeePerGas formula in §4.8 step 5.
func (s *Strategy) BaseFee(ctx context.Context) (*big.Int, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: header: %w", err)
	}
	if header.BaseFee == nil {
		return big.NewInt(0), nil
	}
	return header.BaseFee, nil
}

// Submit signs p with privateKeyHex using nonce and the given fee/gas
// parameters, and broadcasts it via eth_sendRawTransaction.
func (s *Strategy) Submit(ctx context.Context, p ctypes.EvmPayload, privateKeyHex string, nonce uint64, gasLimit uint64, maxFee, priorityFee *big.Int) (string, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("evm: invalid private key: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.evmID,
		Nonce:     nonce,
		GasTipCap: priorityFee,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        addrPtr(p.To),
		Value:     valueOrZero(p.ValueWei),
		Data:      p.Data,
	})

	signer := types.NewLondonSigner(s.evmID)
	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		return "", fmt.Errorf("evm: sign tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", classifySubmitErr(err)
	}

	return signedTx.Hash().Hex(), nil
}

// Confirmation is the outcome of polling for a receipt.
type Confirmation struct {
	Success           bool
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	BlockNumber       uint64
}

// ErrTimeout signals the confirmation poll exceeded its deadline.
var ErrTimeout = errors.New("evm: confirmation timeout")

// PollReceipt polls for a transaction receipt until it appears, a revert
// is observed, or the context deadline (the step's 120s confirmation
// budget, §4.8 step 7) is exceeded. Grounded on the EVMObserver
// polling-interval loop in pkg/chain/strategy/evm_observer.go.
func (s *Strategy) PollReceipt(ctx context.Context, txHash string, pollInterval time.Duration) (*Confirmation, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &Confirmation{
				Success:           receipt.Status == types.ReceiptStatusSuccessful,
				GasUsed:           receipt.GasUsed,
				EffectiveGasPrice: receipt.EffectiveGasPrice,
				BlockNumber:       receipt.BlockNumber.Uint64(),
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("evm: receipt query: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}

func addrPtr(hex string) *common.Address {
	if hex == "" {
		return nil
	}
	a := common.HexToAddress(hex)
	return &a
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func revertReason(err error) string {
	var dataErr interface{ ErrorData() interface{} }
	if errors.As(err, &dataErr) {
		return fmt.Sprintf("%v (data=%v)", err, dataErr.ErrorData())
	}
	return err.Error()
}

// classifySubmitErr maps go-ethereum's string-typed submission errors onto
// the §7 NonceMismatch class so callers can decide to reset+retry.
func classifySubmitErr(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "nonce too low") || strings.Contains(msg, "replacement transaction underpriced") {
		return fmt.Errorf("evm: nonce mismatch: %w", err)
	}
	return fmt.Errorf("evm: submit: %w", err)
}
