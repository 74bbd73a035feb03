// Copyright 2025 Certen Protocol
//
// Package aavev3 implements a concrete adapter.Adapter for Aave v3-style
// lending pools: one Pool contract per chain, one reserve (and its aToken)
// per registered PoolID. Grounded on ChoSanghyuk-blackholedex/blackhole.go's
// approve-then-call sequencing (approve the spender before the state-
// changing call that pulls funds) and pkg/chain/strategy/evm_strategy.go's
// ABI-pack-then-submit shape, adapted from a swap-router call to a
// lending-pool supply/withdraw call.

package aavev3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/yield-orchestrator/internal/adapter"
	"github.com/certen/yield-orchestrator/internal/chain/evm"
	"github.com/certen/yield-orchestrator/internal/types"
)

// poolABI covers the subset of Aave v3's Pool interface this adapter
// drives: supply/withdraw for deposits and exits, getUserAccountData for
// the account-wide health read Initialize performs.
const poolABI = `[
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"name":"supply","outputs":[],"type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"getUserAccountData","outputs":[
		{"name":"totalCollateralBase","type":"uint256"},
		{"name":"totalDebtBase","type":"uint256"},
		{"name":"availableBorrowsBase","type":"uint256"},
		{"name":"currentLiquidationThreshold","type":"uint256"},
		{"name":"ltv","type":"uint256"},
		{"name":"healthFactor","type":"uint256"}
	],"type":"function"}
]`

// rewardsControllerABI covers the one call Harvest needs against Aave's
// separate RewardsController contract: claiming every accrued incentive
// across a set of aTokens to a given address.
const rewardsControllerABI = `[
	{"inputs":[{"name":"assets","type":"address[]"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"name":"claimRewards","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var parsedRewardsABI abi.ABI

var parsedPoolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		panic(fmt.Sprintf("aavev3: parse pool abi: %v", err))
	}
	parsedPoolABI = parsed

	parsedRewards, err := abi.JSON(strings.NewReader(rewardsControllerABI))
	if err != nil {
		panic(fmt.Sprintf("aavev3: parse rewards controller abi: %v", err))
	}
	parsedRewardsABI = parsedRewards
}

// Reserve describes one registered pool's underlying asset and aToken,
// the static data real Aave deployments publish per reserve.
type Reserve struct {
	Asset  string // underlying ERC-20 address
	AToken string // interest-bearing receipt token address
}

// Adapter implements adapter.Adapter and adapter.CanSwap is intentionally
// not implemented: Aave is a money-market, not a DEX.
type Adapter struct {
	chain             types.ChainID
	poolAddress       string
	rewardsController string
	funds             *evm.FundsClient
	reserves          map[string]Reserve // poolID -> reserve
}

// New wires an Aave v3 adapter for one chain's deployed Pool and
// RewardsController contracts.
func New(chain types.ChainID, poolAddress, rewardsController string, funds *evm.FundsClient, reserves map[string]Reserve) *Adapter {
	return &Adapter{chain: chain, poolAddress: poolAddress, rewardsController: rewardsController, funds: funds, reserves: reserves}
}

func (a *Adapter) Chain() types.ChainID    { return a.chain }
func (a *Adapter) ProtocolID() string      { return "aave-v3" }
func (a *Adapter) Category() adapter.Category { return adapter.CategoryLending }

// Initialize confirms the configured Pool contract responds, per §4.3's
// fail-fast-on-unreachable-RPC contract. A zero-address user account-data
// read is cheap and always answers without reverting.
func (a *Adapter) Initialize(ctx context.Context) error {
	data, err := parsedPoolABI.Pack("getUserAccountData", common.Address{})
	if err != nil {
		return fmt.Errorf("aavev3: pack getUserAccountData: %w", err)
	}
	if _, err := a.funds.CallStatic(ctx, a.chain, a.poolAddress, data); err != nil {
		return fmt.Errorf("aavev3: pool unreachable on %s: %w", a.chain, err)
	}
	return nil
}

func (a *Adapter) reserveFor(poolID string) (Reserve, error) {
	r, ok := a.reserves[poolID]
	if !ok {
		return Reserve{}, fmt.Errorf("aavev3: unknown pool id %q", poolID)
	}
	return r, nil
}

// GetPosition reads the wallet's aToken balance for poolID, which accrues
// interest in place and so doubles as the position's current value; the
// raw balance is divided by 1e18 before it is reported.
func (a *Adapter) GetPosition(ctx context.Context, wallet, poolID string) (*types.Position, error) {
	r, err := a.reserveFor(poolID)
	if err != nil {
		return nil, err
	}
	balance, err := a.funds.TokenBalance(ctx, a.chain, r.AToken, wallet)
	if err != nil {
		return nil, fmt.Errorf("aavev3: read aToken balance: %w", err)
	}
	amount := weiToFloat(balance)
	status := types.PositionClosed
	if balance.Sign() > 0 {
		status = types.PositionActive
	}
	return &types.Position{
		PoolID:        poolID,
		WalletAddress: wallet,
		Chain:         a.chain,
		AmountToken0:  amount,
		Status:        status,
	}, nil
}

// GetAllPositions walks every registered reserve; production deployments
// would instead index by wallet in a subgraph, but the adapter has no
// such index available and the reserve set per chain is small and static.
func (a *Adapter) GetAllPositions(ctx context.Context, wallet string) ([]types.Position, error) {
	var out []types.Position
	for poolID := range a.reserves {
		p, err := a.GetPosition(ctx, wallet, poolID)
		if err != nil {
			return nil, err
		}
		if p.Status == types.PositionActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Deposit encodes Pool.supply(asset, amount, onBehalfOf, referralCode=0).
// FundPreparer has already ensured the pool holds sufficient allowance
// over the underlying asset before this step runs (§4.7).
func (a *Adapter) Deposit(ctx context.Context, p adapter.DepositParams) (types.TxPayload, error) {
	r, err := a.reserveFor(p.PoolID)
	if err != nil {
		return nil, err
	}
	amount, err := sumTokenAmounts(p.Tokens, r.Asset)
	if err != nil {
		return nil, err
	}
	data, err := parsedPoolABI.Pack("supply", common.HexToAddress(r.Asset), amount, common.HexToAddress(p.Wallet), uint16(0))
	if err != nil {
		return nil, fmt.Errorf("aavev3: pack supply: %w", err)
	}
	return types.EvmPayload{ChainID: a.chain, To: a.poolAddress, Data: data, ValueWei: big.NewInt(0)}, nil
}

// Withdraw encodes Pool.withdraw(asset, amount, to). Max uses Aave's
// type(uint256).max sentinel, which the Pool contract special-cases as
// "withdraw the caller's entire aToken balance" (§4.9 exit rule).
func (a *Adapter) Withdraw(ctx context.Context, p adapter.WithdrawParams) (types.TxPayload, error) {
	r, err := a.reserveFor(p.PoolID)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Set(maxUint256)
	if !p.Max {
		parsed, ok := new(big.Int).SetString(p.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("aavev3: invalid withdraw amount %q", p.Amount)
		}
		amount = parsed
	}
	data, err := parsedPoolABI.Pack("withdraw", common.HexToAddress(r.Asset), amount, common.HexToAddress(p.Wallet))
	if err != nil {
		return nil, fmt.Errorf("aavev3: pack withdraw: %w", err)
	}
	return types.EvmPayload{ChainID: a.chain, To: a.poolAddress, Data: data, ValueWei: big.NewInt(0)}, nil
}

// Harvest claims every accrued incentive reward (not interest, which
// already compounds into the aToken balance) for the reserve's aToken
// via the separate RewardsController contract.
func (a *Adapter) Harvest(ctx context.Context, p adapter.HarvestParams) (types.TxPayload, error) {
	r, err := a.reserveFor(p.PoolID)
	if err != nil {
		return nil, err
	}
	data, err := parsedRewardsABI.Pack("claimRewards",
		[]common.Address{common.HexToAddress(r.AToken)}, maxUint256, common.HexToAddress(p.Wallet))
	if err != nil {
		return nil, fmt.Errorf("aavev3: pack claimRewards: %w", err)
	}
	return types.EvmPayload{ChainID: a.chain, To: a.rewardsController, Data: data, ValueWei: big.NewInt(0)}, nil
}

// Compound re-invokes Harvest: Aave's own interest already compounds
// continuously into the aToken balance, so the only action a "compound"
// step can take is claim whatever incentive rewards have accrued, same
// as Harvest.
func (a *Adapter) Compound(ctx context.Context, p adapter.HarvestParams) ([]types.TxPayload, error) {
	payload, err := a.Harvest(ctx, p)
	if err != nil {
		return nil, err
	}
	return []types.TxPayload{payload}, nil
}

// QuoteDeposit returns the USD value of the tokens about to be supplied.
// Aave's reserves are 1:1 redeemable for the underlying, so the adapter
// reports the requested deposit's own stated USD amount.
func (a *Adapter) QuoteDeposit(ctx context.Context, p adapter.DepositParams) (float64, error) {
	return p.AmountUsd, nil
}

// QuoteWithdraw estimates the USD value a withdraw step will move by
// reading the current aToken balance and reporting the max-withdraw case;
// partial withdraws scale proportionally to the requested raw amount.
func (a *Adapter) QuoteWithdraw(ctx context.Context, p adapter.WithdrawParams) (float64, error) {
	r, err := a.reserveFor(p.PoolID)
	if err != nil {
		return 0, err
	}
	balance, err := a.funds.TokenBalance(ctx, a.chain, r.AToken, p.Wallet)
	if err != nil {
		return 0, fmt.Errorf("aavev3: read aToken balance: %w", err)
	}
	if p.Max {
		return weiToFloat(balance), nil
	}
	amount, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok {
		return 0, fmt.Errorf("aavev3: invalid withdraw amount %q", p.Amount)
	}
	return weiToFloat(amount), nil
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func sumTokenAmounts(tokens []types.TokenAmount, asset string) (*big.Int, error) {
	total := big.NewInt(0)
	for _, t := range tokens {
		if !strings.EqualFold(t.Address, asset) {
			continue
		}
		amount, ok := new(big.Int).SetString(t.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("aavev3: invalid token amount %q", t.Amount)
		}
		total.Add(total, amount)
	}
	if total.Sign() == 0 {
		return nil, fmt.Errorf("aavev3: no tokens match reserve asset %s", asset)
	}
	return total, nil
}

func weiToFloat(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	scaled := new(big.Float).Quo(f, big.NewFloat(1e18))
	out, _ := scaled.Float64()
	return out
}
