package evm

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	COMPONENT_NAME = "EvmClient"
	//Gas estimate headroom in percent
	GAS_ESTIMATE_MARGIN = 120
)

// EthBackend is the subset of the node API the client needs. Both
// *ethclient.Client and the simulated backend client satisfy it.
type EthBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethTypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethTypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethTypes.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethTypes.Log, error)
}

type ClientOptions struct {
	Timeout time.Duration
	//Blocks scanned backwards when looking for the storeman counter-lock
	LogRange uint64
}
