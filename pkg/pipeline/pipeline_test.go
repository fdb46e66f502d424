package pipeline_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/internal/testkit"
	"github.com/scalarorg/xtransfer/pkg/clients/evm"
	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/scalarorg/xtransfer/pkg/pipeline"
	"github.com/scalarorg/xtransfer/pkg/signer"
	"github.com/scalarorg/xtransfer/pkg/txbuilder"
	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/stretchr/testify/require"
)

const (
	WAN_HTLC = "0x1111111111111111111111111111111111111111"
	ETH_HTLC = "0x2222222222222222222222222222222222222222"
	STOREMAN = "0x0000000000000000000000000000000000000001"
)

var localCreds = signer.Credentials{Kind: types.WalletLocal, Path: "0x0000000000000000000000000000000000000abc"}

type fixture struct {
	chain    *testkit.FakeChain
	signer   *testkit.KeySigner
	store    *db.MemoryStore
	pipeline *pipeline.Pipeline
	from     common.Address
	to       common.Address
}

func newFixture(t *testing.T, minValue string) *fixture {
	contracts, err := evm.NewContractData([]config.EvmNetworkConfig{
		{Chain: "WAN", ChainID: 999, HtlcContract: WAN_HTLC},
		{Chain: "ETH", ChainID: 1, HtlcContract: ETH_HTLC},
	})
	require.NoError(t, err)
	chain := testkit.NewFakeChain()
	keys := testkit.NewKeySigner()
	store := db.NewMemoryStore()
	builder := txbuilder.NewBuilder(chain, contracts, txbuilder.Options{GasCeiling: 200000})
	p, err := pipeline.NewPipeline(builder, keys, chain, store, pipeline.Options{MinValue: minValue})
	require.NoError(t, err)
	return &fixture{
		chain:    chain,
		signer:   keys,
		store:    store,
		pipeline: p,
		from:     keys.NewAccount(),
		to:       keys.NewAccount(),
	}
}

func (f *fixture) transfer() *types.Transfer {
	secret, secretHash, _ := types.NewSecret()
	return &types.Transfer{
		SecretHash:   secretHash,
		Secret:       secret,
		FromChain:    "WAN",
		ToChain:      "ETH",
		FromAddr:     f.from.Hex(),
		ToAddr:       f.to.Hex(),
		StoremanAddr: STOREMAN,
		Value:        big.NewInt(1000),
		Status:       types.StatusWaitingCross,
	}
}

func TestSubmitLock(t *testing.T) {
	f := newFixture(t, "")
	transfer := f.transfer()
	var hooked string
	result, err := f.pipeline.Submit(context.Background(), pipeline.Request{
		Action:      types.ActionLock,
		Transfer:    transfer,
		Credentials: localCreds,
		BeforeBroadcast: func(_ context.Context, tx *types.UnsignedTx, txHash string) error {
			hooked = txHash
			require.Empty(t, f.chain.Submitted())
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, hooked, result.TxHash)

	submitted := f.chain.Submitted()
	require.Len(t, submitted, 1)
	require.Equal(t, result.TxHash, submitted[0].Hash().Hex())
	require.EqualValues(t, 1000, submitted[0].Value().Int64())

	records, err := f.store.ListTxRecords(context.Background(), transfer.SecretHash)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, types.ActionLock, records[0].Action)
	require.Equal(t, types.TxRecordPending, records[0].Status)
	require.Equal(t, f.from.Hex(), records[0].From)
}

func TestSubmitRedeemSignsWithRecipient(t *testing.T) {
	f := newFixture(t, "")
	result, err := f.pipeline.Submit(context.Background(), pipeline.Request{
		Action:      types.ActionRedeem,
		Transfer:    f.transfer(),
		Credentials: localCreds,
	})
	require.NoError(t, err)
	require.Equal(t, f.to, result.Tx.From)
	require.Equal(t, types.Chain("ETH"), result.Tx.Chain)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, "500")
	cases := []struct {
		name   string
		mutate func(*types.Transfer)
	}{
		{"bad recipient", func(tr *types.Transfer) { tr.ToAddr = "0x1234" }},
		{"bad storeman", func(tr *types.Transfer) { tr.StoremanAddr = "storeman" }},
		{"zero value", func(tr *types.Transfer) { tr.Value = big.NewInt(0) }},
		{"below minimum", func(tr *types.Transfer) { tr.Value = big.NewInt(499) }},
		{"bad sender", func(tr *types.Transfer) { tr.FromAddr = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transfer := f.transfer()
			tc.mutate(transfer)
			_, err := f.pipeline.Submit(context.Background(), pipeline.Request{
				Action:      types.ActionLock,
				Transfer:    transfer,
				Credentials: localCreds,
			})
			require.ErrorIs(t, err, types.ErrValidation)
		})
	}
	require.Zero(t, f.signer.Calls())
	require.Empty(t, f.chain.Submitted())
}

func TestSubmitInsufficientBalance(t *testing.T) {
	f := newFixture(t, "")
	f.chain.SetBalance(big.NewInt(10))
	_, err := f.pipeline.Submit(context.Background(), pipeline.Request{
		Action:      types.ActionLock,
		Transfer:    f.transfer(),
		Credentials: localCreds,
	})
	require.ErrorIs(t, err, types.ErrValidation)
	require.Zero(t, f.signer.Calls())
}

func TestSubmitMissingCredentials(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.pipeline.Submit(context.Background(), pipeline.Request{
		Action:   types.ActionLock,
		Transfer: f.transfer(),
	})
	require.ErrorIs(t, err, types.ErrValidation)
}

func TestSubmitSigningFailureSkipsHookAndBroadcast(t *testing.T) {
	f := newFixture(t, "")
	f.signer.Fail(types.Errorf(types.ErrDeviceDisconnected, "ledger"))
	hookCalled := false
	_, err := f.pipeline.Submit(context.Background(), pipeline.Request{
		Action:      types.ActionLock,
		Transfer:    f.transfer(),
		Credentials: localCreds,
		BeforeBroadcast: func(context.Context, *types.UnsignedTx, string) error {
			hookCalled = true
			return nil
		},
	})
	require.ErrorIs(t, err, types.ErrDeviceDisconnected)
	require.False(t, hookCalled)
	require.Empty(t, f.chain.Submitted())
}

func TestSubmitHookErrorAbortsBroadcast(t *testing.T) {
	f := newFixture(t, "")
	hookErr := errors.New("store unavailable")
	_, err := f.pipeline.Submit(context.Background(), pipeline.Request{
		Action:      types.ActionLock,
		Transfer:    f.transfer(),
		Credentials: localCreds,
		BeforeBroadcast: func(context.Context, *types.UnsignedTx, string) error {
			return hookErr
		},
	})
	require.ErrorIs(t, err, hookErr)
	require.Empty(t, f.chain.Submitted())
}

func TestSubmitBroadcastFailures(t *testing.T) {
	f := newFixture(t, "")
	f.chain.FailSubmits(errors.New("dial tcp: connection refused"), errors.New("nonce too low"))

	_, err := f.pipeline.Submit(context.Background(), pipeline.Request{Action: types.ActionLock, Transfer: f.transfer(), Credentials: localCreds})
	require.ErrorIs(t, err, types.ErrNetwork)
	_, err = f.pipeline.Submit(context.Background(), pipeline.Request{Action: types.ActionLock, Transfer: f.transfer(), Credentials: localCreds})
	require.ErrorIs(t, err, types.ErrBroadcastRejected)
	require.True(t, types.IsSubmissionFailure(err))
}

func TestSubmitChainQueryFailure(t *testing.T) {
	f := newFixture(t, "")
	f.chain.FailQueries(errors.New("connection reset"))
	_, err := f.pipeline.Submit(context.Background(), pipeline.Request{Action: types.ActionLock, Transfer: f.transfer(), Credentials: localCreds})
	require.ErrorIs(t, err, types.ErrChainQuery)
	require.Zero(t, f.signer.Calls())
}

func TestSubmitStandaloneDelegateClaim(t *testing.T) {
	f := newFixture(t, "")
	result, err := f.pipeline.SubmitStandalone(context.Background(), pipeline.StandaloneRequest{
		Action:       types.ActionDelegateClaim,
		Chain:        "wan",
		From:         f.from.Hex(),
		StoremanAddr: STOREMAN,
		Credentials:  localCreds,
	})
	require.NoError(t, err)
	require.Equal(t, pipeline.ANNOTATE_DELEGATE_CLAIM, result.Record.Annotate)
	require.Empty(t, result.Record.SecretHash)
	require.Equal(t, common.HexToAddress(WAN_HTLC), result.Tx.To)
}

func TestParseAmount(t *testing.T) {
	value, err := pipeline.ParseAmount("1.5", 18)
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", value.String())

	value, err = pipeline.ParseAmount("2.50", 1)
	require.NoError(t, err)
	require.EqualValues(t, 25, value.Int64())

	_, err = pipeline.ParseAmount("0.123", 2)
	require.ErrorIs(t, err, types.ErrValidation)
	_, err = pipeline.ParseAmount("-1", 6)
	require.ErrorIs(t, err, types.ErrValidation)
	_, err = pipeline.ParseAmount("abc", 6)
	require.ErrorIs(t, err, types.ErrValidation)

	require.Equal(t, "1.5", pipeline.FormatAmount(big.NewInt(1500000), 6))
}
