// Copyright 2025 Certen Protocol
//
// funds.go implements execution.BalanceSource and execution.Encoder for
// the EVM family: native balance, ERC-20 allowance, gas price reads and
// wrap/approve calldata encoding, grounded on the same ethclient/abi
// idioms as evm.go's Simulate/Submit and pkg/execution/contracts'
// generated bindings (here hand-packed against the four fixed selectors
// this needs rather than a full abigen binding, since no
// wrapped-native/ERC-20 ABI ships in the retrieval pack).
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// erc20ABI covers the four selectors FundPreparer and its adapters need:
// balanceOf/allowance reads and the approve/deposit calldata it encodes.
// deposit() is WETH9-style (no arguments, payable) which every wrapped
// native token on the configured chains implements identically.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[],"name":"deposit","outputs":[],"payable":true,"type":"function"}
]`

var parsedERC20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("evm: parse erc20 abi: %v", err))
	}
	parsedERC20ABI = parsed
}

// Strategies resolves a live *Strategy by chain, so one FundsClient can
// serve every EVM chain the orchestrator is configured for without the
// execution package ever importing ethclient.
type Strategies interface {
	Get(chain ctypes.ChainID) (*Strategy, bool)
}

// StrategyMap is the simplest Strategies implementation: a plain map
// populated once at startup from the dialed per-chain strategies.
type StrategyMap map[ctypes.ChainID]*Strategy

func (m StrategyMap) Get(chain ctypes.ChainID) (*Strategy, bool) {
	s, ok := m[chain]
	return s, ok
}

// FundsClient implements execution.BalanceSource and execution.Encoder
// over a set of dialed EVM strategies.
type FundsClient struct {
	strategies Strategies
}

// NewFundsClient wires a FundsClient.
func NewFundsClient(strategies Strategies) *FundsClient {
	return &FundsClient{strategies: strategies}
}

func (f *FundsClient) strategyFor(chain ctypes.ChainID) (*Strategy, error) {
	s, ok := f.strategies.Get(chain)
	if !ok {
		return nil, fmt.Errorf("evm: no dialed strategy for chain %s", chain)
	}
	return s, nil
}

// NativeBalance reads the wallet's native coin balance at the latest block.
func (f *FundsClient) NativeBalance(ctx context.Context, chain ctypes.ChainID, wallet string) (*big.Int, error) {
	s, err := f.strategyFor(chain)
	if err != nil {
		return nil, err
	}
	return s.client.BalanceAt(ctx, common.HexToAddress(wallet), nil)
}

// Allowance reads ERC-20 allowance(owner, spender) via eth_call.
func (f *FundsClient) Allowance(ctx context.Context, chain ctypes.ChainID, token, owner, spender string) (*big.Int, error) {
	s, err := f.strategyFor(chain)
	if err != nil {
		return nil, err
	}
	data, err := parsedERC20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("evm: pack allowance: %w", err)
	}
	out, err := s.callStatic(ctx, token, data)
	if err != nil {
		return nil, err
	}
	var result *big.Int
	if err := parsedERC20ABI.UnpackIntoInterface(&result, "allowance", out); err != nil {
		return nil, fmt.Errorf("evm: unpack allowance: %w", err)
	}
	return result, nil
}

// GasPriceWei wraps Strategy's suggested-gas-price RPC call in wei, the
// unit FundPreparer's reserve arithmetic needs (GasPriceGwei is in Gwei,
// used only by the gas scheduler's threshold comparison).
func (f *FundsClient) GasPriceWei(ctx context.Context, chain ctypes.ChainID) (*big.Int, error) {
	s, err := f.strategyFor(chain)
	if err != nil {
		return nil, err
	}
	return s.client.SuggestGasPrice(ctx)
}

// EncodeWrapDeposit builds the calldata for a WETH9-style deposit() call
// sending amountWei as msg.value (§4.7 step 1).
func (f *FundsClient) EncodeWrapDeposit(chain ctypes.ChainID, wrappedToken string, amountWei *big.Int) (ctypes.EvmPayload, error) {
	data, err := parsedERC20ABI.Pack("deposit")
	if err != nil {
		return ctypes.EvmPayload{}, fmt.Errorf("evm: pack deposit: %w", err)
	}
	return ctypes.EvmPayload{
		ChainID:  chain,
		To:       wrappedToken,
		Data:     data,
		ValueWei: amountWei,
	}, nil
}

// EncodeApprove builds the calldata for approve(spender, amountWei)
// (§4.7 step 2).
func (f *FundsClient) EncodeApprove(chain ctypes.ChainID, token, spender string, amountWei *big.Int) (ctypes.EvmPayload, error) {
	data, err := parsedERC20ABI.Pack("approve", common.HexToAddress(spender), amountWei)
	if err != nil {
		return ctypes.EvmPayload{}, fmt.Errorf("evm: pack approve: %w", err)
	}
	return ctypes.EvmPayload{
		ChainID:  chain,
		To:       token,
		Data:     data,
		ValueWei: big.NewInt(0),
	}, nil
}

// callStatic performs an eth_call against to with no value transfer,
// shared by Allowance and the ERC-20 balanceOf helper below.
func (s *Strategy) callStatic(ctx context.Context, to string, data []byte) ([]byte, error) {
	addr := common.HexToAddress(to)
	msg := ethereum.CallMsg{To: &addr, Data: data}
	return s.client.CallContract(ctx, msg, nil)
}

// CallStatic performs a raw eth_call for protocol adapters that need to
// read a contract method this package doesn't otherwise expose (e.g. an
// Aave Pool's getUserAccountData).
func (f *FundsClient) CallStatic(ctx context.Context, chain ctypes.ChainID, to string, data []byte) ([]byte, error) {
	s, err := f.strategyFor(chain)
	if err != nil {
		return nil, err
	}
	return s.callStatic(ctx, to, data)
}

// TokenBalance reads ERC-20 balanceOf(owner); exposed for adapters that
// need a position's raw token balance rather than the native coin.
func (f *FundsClient) TokenBalance(ctx context.Context, chain ctypes.ChainID, token, owner string) (*big.Int, error) {
	s, err := f.strategyFor(chain)
	if err != nil {
		return nil, err
	}
	data, err := parsedERC20ABI.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("evm: pack balanceOf: %w", err)
	}
	out, err := s.callStatic(ctx, token, data)
	if err != nil {
		return nil, err
	}
	var result *big.Int
	if err := parsedERC20ABI.UnpackIntoInterface(&result, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("evm: unpack balanceOf: %w", err)
	}
	return result, nil
}
