package evm_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

type testKey struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// fakeBackend answers from canned values; calls it does not expect fail.
type fakeBackend struct {
	head    uint64
	logs    []ethTypes.Log
	query   ethereum.FilterQuery
	sendErr error
	slow    bool
}

func (f *fakeBackend) wait(ctx context.Context) error {
	if f.slow {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, _ common.Address) (uint64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return nil, errors.New("connection refused")
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(999), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("execution reverted")
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeBackend) SendTransaction(context.Context, *ethTypes.Transaction) error {
	return f.sendErr
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*ethTypes.Receipt, error) {
	return &ethTypes.Receipt{Status: ethTypes.ReceiptStatusFailed, BlockNumber: big.NewInt(10)}, nil
}

func (f *fakeBackend) TransactionByHash(context.Context, common.Hash) (*ethTypes.Transaction, bool, error) {
	return nil, false, ethereum.NotFound
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]ethTypes.Log, error) {
	f.query = q
	return f.logs, nil
}
