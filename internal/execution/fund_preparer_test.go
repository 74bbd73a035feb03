// Copyright 2025 Certen Protocol
//
// Unit tests for fund preparation.

package execution

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/yield-orchestrator/internal/types"
)

type fakeBalances struct {
	native    *big.Int
	nativeErr error
	allowance *big.Int
	allowErr  error
	gasPrice  *big.Int
	gasErr    error
}

func (f *fakeBalances) NativeBalance(ctx context.Context, chain types.ChainID, wallet string) (*big.Int, error) {
	return f.native, f.nativeErr
}
func (f *fakeBalances) Allowance(ctx context.Context, chain types.ChainID, token, owner, spender string) (*big.Int, error) {
	return f.allowance, f.allowErr
}
func (f *fakeBalances) GasPriceWei(ctx context.Context, chain types.ChainID) (*big.Int, error) {
	return f.gasPrice, f.gasErr
}

type fakeEncoder struct {
	wrapCalls    int
	approveCalls int
}

func (f *fakeEncoder) EncodeWrapDeposit(chain types.ChainID, wrappedToken string, amountWei *big.Int) (types.EvmPayload, error) {
	f.wrapCalls++
	return types.EvmPayload{ChainID: chain, To: wrappedToken, ValueWei: amountWei}, nil
}
func (f *fakeEncoder) EncodeApprove(chain types.ChainID, token, spender string, amountWei *big.Int) (types.EvmPayload, error) {
	f.approveCalls++
	return types.EvmPayload{ChainID: chain, To: token}, nil
}

func TestFundPreparer_SkipsNonEvmChains(t *testing.T) {
	f := NewFundPreparer(&fakeBalances{}, &fakeEncoder{})
	steps, err := f.Prepare(context.Background(), types.ChainSolana, "wallet", "spender", []types.TokenAmount{{Address: "x", Amount: "100"}})
	require.NoError(t, err)
	require.Nil(t, steps)
}

func TestFundPreparer_WrapsNativeWhenBalanceSufficient(t *testing.T) {
	balances := &fakeBalances{
		native:   big.NewInt(10_000_000_000_000_000), // 0.01 ETH
		gasPrice: big.NewInt(1_000_000_000),           // 1 gwei
	}
	enc := &fakeEncoder{}
	f := NewFundPreparer(balances, enc)

	weth := WrappedNativeSentinels[types.ChainEthereum]
	steps, err := f.Prepare(context.Background(), types.ChainEthereum, "wallet", "spender",
		[]types.TokenAmount{{Address: weth, Amount: "1000000000000000"}}) // 0.001 ETH
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, types.StepWrap, steps[0].Kind)
	require.Equal(t, 1, enc.wrapCalls)
}

func TestFundPreparer_WrapFailsWhenNativeBalanceTooLow(t *testing.T) {
	balances := &fakeBalances{
		native:   big.NewInt(1), // essentially nothing
		gasPrice: big.NewInt(1_000_000_000),
	}
	f := NewFundPreparer(balances, &fakeEncoder{})

	weth := WrappedNativeSentinels[types.ChainEthereum]
	_, err := f.Prepare(context.Background(), types.ChainEthereum, "wallet", "spender",
		[]types.TokenAmount{{Address: weth, Amount: "1000000000000000"}})
	require.Error(t, err)
	require.Equal(t, KindInsufficientFunds, KindOf(err))
}

func TestFundPreparer_SkipsApproveWhenAllowanceSufficient(t *testing.T) {
	balances := &fakeBalances{allowance: big.NewInt(1_000_000)}
	enc := &fakeEncoder{}
	f := NewFundPreparer(balances, enc)

	steps, err := f.Prepare(context.Background(), types.ChainEthereum, "wallet", "spender",
		[]types.TokenAmount{{Address: "0xusdc", Amount: "500000"}})
	require.NoError(t, err)
	require.Empty(t, steps)
	require.Equal(t, 0, enc.approveCalls)
}

func TestFundPreparer_ApprovesMaxWhenAllowanceInsufficient(t *testing.T) {
	balances := &fakeBalances{allowance: big.NewInt(100)}
	enc := &fakeEncoder{}
	f := NewFundPreparer(balances, enc)

	steps, err := f.Prepare(context.Background(), types.ChainEthereum, "wallet", "spender",
		[]types.TokenAmount{{Address: "0xusdc", Amount: "500000"}})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, types.StepApprove, steps[0].Kind)
	require.Equal(t, 1, enc.approveCalls)
}

func TestFundPreparer_RejectsMalformedAmount(t *testing.T) {
	f := NewFundPreparer(&fakeBalances{}, &fakeEncoder{})
	_, err := f.Prepare(context.Background(), types.ChainEthereum, "wallet", "spender",
		[]types.TokenAmount{{Address: "0xusdc", Amount: "not-a-number"}})
	require.Error(t, err)
	require.Equal(t, KindConfig, KindOf(err))
}
