// Copyright 2025 Certen Protocol
//
// Wrap and approve preparation for EVM fund movement steps.

package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/certen/yield-orchestrator/internal/types"
)

// WrappedNativeSentinels maps each EVM chain to its wrapped-native
// contract address (WETH/WBNB/WMATIC/WAVAX, §4.7 step 1).
var WrappedNativeSentinels = map[types.ChainID]string{
	types.ChainEthereum: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", // WETH
	types.ChainArbitrum: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", // WETH (Arbitrum)
	types.ChainOptimism: "0x4200000000000000000000000000000000000006", // WETH (Optimism)
	types.ChainBase:     "0x4200000000000000000000000000000000000006", // WETH (Base)
	types.ChainPolygon:  "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", // WMATIC
	types.ChainBSC:      "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", // WBNB
}

// BalanceSource reads native and ERC-20 balances/allowances. The EVM chain
// strategy supplies this via eth_call against the wrapped-native contract
// and the ERC-20 balanceOf/allowance selectors.
type BalanceSource interface {
	NativeBalance(ctx context.Context, chain types.ChainID, wallet string) (*big.Int, error)
	Allowance(ctx context.Context, chain types.ChainID, token, owner, spender string) (*big.Int, error)
	GasPriceWei(ctx context.Context, chain types.ChainID) (*big.Int, error)
}

// Encoder builds the wrap/approve calldata; the ProtocolAdapter already
// speaks the target spender address, so FundPreparer only needs a
// chain-neutral way to encode a wrapped-native deposit() call and an
// ERC-20 approve(spender, amount) call.
type Encoder interface {
	EncodeWrapDeposit(chain types.ChainID, wrappedToken string, amountWei *big.Int) (types.EvmPayload, error)
	EncodeApprove(chain types.ChainID, token, spender string, amountWei *big.Int) (types.EvmPayload, error)
}

// MaxUint256 is the "approve the maximum" sentinel (§4.7 step 2).
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// GasReserveMultiplier is the "300,000 gas units" reserve held back from
// the native balance check before wrapping (§4.7 step 1).
const GasReserveMultiplier = 300_000

// FundPreparer implements C7: readying an EVM deposit's pre-conditions
// (wrap native, approve spenders) before the DEPOSIT step itself runs.
// Non-EVM chains skip this component entirely (§4.7).
type FundPreparer struct {
	balances BalanceSource
	encoder  Encoder
}

// NewFundPreparer wires a FundPreparer over the given balance/allowance
// source and calldata encoder.
func NewFundPreparer(balances BalanceSource, encoder Encoder) *FundPreparer {
	return &FundPreparer{balances: balances, encoder: encoder}
}

// Prepare returns the WRAP and APPROVE steps a deposit needs, in the order
// §4.9 expects them, given the tokens/spender the deposit targets. Steps
// for tokens that are neither native-wrapped nor held with insufficient
// allowance are omitted; a plain pass-through token produces no step at
// all (§4.7 step 3) and any shortfall surfaces as a revert the Simulator
// catches upstream.
func (f *FundPreparer) Prepare(ctx context.Context, chain types.ChainID, wallet, spender string, tokens []types.TokenAmount) ([]types.Step, error) {
	if chain == types.ChainSolana || chain == types.ChainAptos {
		return nil, nil
	}

	var steps []types.Step
	wrapped := WrappedNativeSentinels[chain]

	for _, t := range tokens {
		amount, ok := new(big.Int).SetString(t.Amount, 10)
		if !ok {
			return nil, New(KindConfig, fmt.Sprintf("invalid token amount %q", t.Amount), nil)
		}

		if wrapped != "" && sameAddress(t.Address, wrapped) {
			step, err := f.wrapStep(ctx, chain, wallet, wrapped, amount)
			if err != nil {
				return nil, err
			}
			if step != nil {
				steps = append(steps, *step)
			}
			continue
		}

		allowance, err := f.balances.Allowance(ctx, chain, t.Address, wallet, spender)
		if err != nil {
			return nil, New(KindRpcTransient, "allowance query failed", err)
		}
		if allowance.Cmp(amount) >= 0 {
			continue // sufficient allowance already exists
		}

		payload, err := f.encoder.EncodeApprove(chain, t.Address, spender, MaxUint256)
		if err != nil {
			return nil, New(KindConfig, "encode approve failed", err)
		}
		steps = append(steps, types.Step{Payload: payload, Kind: types.StepApprove, UsdValue: 0})
	}

	return steps, nil
}

// wrapStep checks the native-balance precondition and, if the wallet holds
// enough, returns the WRAP step. Approve retries its own submission once
// on failure with a 2s backoff at the Executor level (the retry policy
// lives in TxExecutor, since only it knows how to resubmit a step).
func (f *FundPreparer) wrapStep(ctx context.Context, chain types.ChainID, wallet, wrapped string, amount *big.Int) (*types.Step, error) {
	native, err := f.balances.NativeBalance(ctx, chain, wallet)
	if err != nil {
		return nil, New(KindRpcTransient, "native balance query failed", err)
	}

	gasPrice, err := f.balances.GasPriceWei(ctx, chain)
	if err != nil {
		return nil, New(KindRpcTransient, "gas price query failed", err)
	}
	gasReserve := new(big.Int).Mul(gasPrice, big.NewInt(GasReserveMultiplier))
	required := new(big.Int).Add(amount, gasReserve)

	if native.Cmp(required) < 0 {
		return nil, New(KindInsufficientFunds, fmt.Sprintf(
			"native balance %s below required %s (amount+gas reserve)", native, required), nil)
	}

	payload, err := f.encoder.EncodeWrapDeposit(chain, wrapped, amount)
	if err != nil {
		return nil, New(KindConfig, "encode wrap deposit failed", err)
	}
	return &types.Step{Payload: payload, Kind: types.StepWrap, UsdValue: 0}, nil
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
