package txbuilder_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/pkg/clients/evm"
	"github.com/scalarorg/xtransfer/pkg/txbuilder"
	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/stretchr/testify/require"
)

const (
	WAN_HTLC    = "0x1111111111111111111111111111111111111111"
	ETH_HTLC    = "0x2222222222222222222222222222222222222222"
	SENDER      = "0x6E5D0a6b35b8c8B8d02D3b2a1B7f1c3D9a2E4F10"
	SECRET_HASH = "0x9f4c1e3e2f2b0d7f1a0c5e6b7d8a9c0b1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b"
)

type fakeQuery struct {
	nonceErr    error
	priceErr    error
	estimate    uint64
	estimateErr error
	calls       atomic.Int32
}

func (f *fakeQuery) GetNonce(ctx context.Context, chain types.Chain, address common.Address) (uint64, error) {
	f.calls.Add(1)
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return 7, nil
}

func (f *fakeQuery) GetGasPrice(ctx context.Context, chain types.Chain) (*big.Int, error) {
	f.calls.Add(1)
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeQuery) GetChainID(ctx context.Context, chain types.Chain) (*big.Int, error) {
	f.calls.Add(1)
	if chain == "ETH" {
		return big.NewInt(1), nil
	}
	return big.NewInt(999), nil
}

func (f *fakeQuery) EstimateGas(ctx context.Context, tx *types.UnsignedTx) (uint64, error) {
	return f.estimate, f.estimateErr
}

func newContracts(t *testing.T, gasLimit uint64) *evm.ContractData {
	data, err := evm.NewContractData([]config.EvmNetworkConfig{
		{Chain: "WAN", ChainID: 999, HtlcContract: WAN_HTLC, GasLimit: gasLimit},
		{Chain: "ETH", ChainID: 1, HtlcContract: ETH_HTLC},
	})
	require.NoError(t, err)
	return data
}

func coinTransfer() *types.Transfer {
	return &types.Transfer{
		SecretHash:   SECRET_HASH,
		Secret:       "0x" + strings.Repeat("ab", 32),
		FromChain:    "WAN",
		ToChain:      "ETH",
		FromAddr:     SENDER,
		ToAddr:       "0x00000000000000000000000000000000000000aa",
		StoremanAddr: "0x0000000000000000000000000000000000000001",
		Value:        big.NewInt(5000),
	}
}

func TestBuildLock(t *testing.T) {
	query := &fakeQuery{}
	builder := txbuilder.NewBuilder(query, newContracts(t, 300000), txbuilder.Options{GasCeiling: 200000})

	tx, err := builder.Build(context.Background(), types.ActionLock, coinTransfer(), common.HexToAddress(SENDER))
	require.NoError(t, err)
	require.Equal(t, types.Chain("WAN"), tx.Chain)
	require.Equal(t, common.HexToAddress(WAN_HTLC), tx.To)
	require.EqualValues(t, 7, tx.Nonce)
	require.EqualValues(t, 999, tx.ChainID.Int64())
	require.EqualValues(t, 5000, tx.Value.Int64())
	require.EqualValues(t, 300000, tx.GasLimit)
	require.EqualValues(t, 3, query.calls.Load())
}

func TestBuildRedeemTargetsDestination(t *testing.T) {
	builder := txbuilder.NewBuilder(&fakeQuery{}, newContracts(t, 0), txbuilder.Options{GasCeiling: 200000})

	tx, err := builder.Build(context.Background(), types.ActionRedeem, coinTransfer(), common.HexToAddress(SENDER))
	require.NoError(t, err)
	require.Equal(t, types.Chain("ETH"), tx.Chain)
	require.Equal(t, common.HexToAddress(ETH_HTLC), tx.To)
	require.EqualValues(t, 1, tx.ChainID.Int64())
	require.EqualValues(t, 200000, tx.GasLimit)
}

func TestBuildChainQueryFailure(t *testing.T) {
	query := &fakeQuery{priceErr: errors.New("connection refused")}
	builder := txbuilder.NewBuilder(query, newContracts(t, 0), txbuilder.Options{GasCeiling: 200000})

	tx, err := builder.Build(context.Background(), types.ActionLock, coinTransfer(), common.HexToAddress(SENDER))
	require.Nil(t, tx)
	require.ErrorIs(t, err, types.ErrChainQuery)
	require.True(t, types.IsSubmissionFailure(err))
}

func TestBuildGasEstimate(t *testing.T) {
	query := &fakeQuery{estimate: 50000}
	builder := txbuilder.NewBuilder(query, newContracts(t, 0), txbuilder.Options{GasCeiling: 200000, Estimate: true})

	tx, err := builder.Build(context.Background(), types.ActionRevoke, coinTransfer(), common.HexToAddress(SENDER))
	require.NoError(t, err)
	require.EqualValues(t, 60000, tx.GasLimit)

	query.estimate = 190000
	tx, err = builder.Build(context.Background(), types.ActionRevoke, coinTransfer(), common.HexToAddress(SENDER))
	require.NoError(t, err)
	require.EqualValues(t, 200000, tx.GasLimit)

	query.estimateErr = errors.New("execution reverted")
	tx, err = builder.Build(context.Background(), types.ActionRevoke, coinTransfer(), common.HexToAddress(SENDER))
	require.NoError(t, err)
	require.EqualValues(t, 200000, tx.GasLimit)
}

func TestBuildInvalidTransfer(t *testing.T) {
	query := &fakeQuery{}
	builder := txbuilder.NewBuilder(query, newContracts(t, 0), txbuilder.Options{GasCeiling: 200000})
	transfer := coinTransfer()
	transfer.Secret = ""

	_, err := builder.Build(context.Background(), types.ActionRedeem, transfer, common.HexToAddress(SENDER))
	require.ErrorIs(t, err, types.ErrValidation)
	require.EqualValues(t, 0, query.calls.Load())
}
