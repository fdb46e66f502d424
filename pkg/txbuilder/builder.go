package txbuilder

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/clients/evm"
	"github.com/scalarorg/xtransfer/pkg/types"
	"golang.org/x/sync/errgroup"
)

type ChainQuery interface {
	GetNonce(ctx context.Context, chain types.Chain, address common.Address) (uint64, error)
	GetGasPrice(ctx context.Context, chain types.Chain) (*big.Int, error)
	GetChainID(ctx context.Context, chain types.Chain) (*big.Int, error)
	EstimateGas(ctx context.Context, tx *types.UnsignedTx) (uint64, error)
}

type ContractDataBuilder interface {
	CallFor(action types.Action, transfer *types.Transfer) (*evm.Call, error)
	GasLimit(chain types.Chain) uint64
}

type Options struct {
	//Used when the chain has no own gas limit and no estimate is available
	GasCeiling uint64
	Timeout    time.Duration
	//Ask the node for an estimate; the limit never exceeds the ceiling
	Estimate bool
}

type Builder struct {
	query     ChainQuery
	contracts ContractDataBuilder
	opts      Options
}

func NewBuilder(query ChainQuery, contracts ContractDataBuilder, opts Options) *Builder {
	return &Builder{query: query, contracts: contracts, opts: opts}
}

// Build assembles the unsigned transaction for action. Nonce, gas price and
// chain id are fetched concurrently; if any of them fails no transaction is
// returned and the error wraps ErrChainQuery.
func (b *Builder) Build(ctx context.Context, action types.Action, transfer *types.Transfer, from common.Address) (*types.UnsignedTx, error) {
	call, err := b.contracts.CallFor(action, transfer)
	if err != nil {
		return nil, err
	}
	queryCtx := ctx
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}
	var (
		nonce    uint64
		gasPrice *big.Int
		chainID  *big.Int
	)
	group, groupCtx := errgroup.WithContext(queryCtx)
	group.Go(func() error {
		var err error
		nonce, err = b.query.GetNonce(groupCtx, call.Chain, from)
		return err
	})
	group.Go(func() error {
		var err error
		gasPrice, err = b.query.GetGasPrice(groupCtx, call.Chain)
		return err
	})
	group.Go(func() error {
		var err error
		chainID, err = b.query.GetChainID(groupCtx, call.Chain)
		return err
	})
	if err := group.Wait(); err != nil {
		log.Warn().Err(err).Str("secretHash", transfer.SecretHash).Str("action", string(action)).
			Msg("[TxBuilder] [Build] chain query failed")
		return nil, fmt.Errorf("%w: %w", types.ErrChainQuery, err)
	}
	tx := &types.UnsignedTx{
		Chain:    call.Chain,
		To:       call.To,
		From:     from,
		Data:     call.Data,
		Value:    call.Value,
		Nonce:    nonce,
		GasPrice: gasPrice,
		ChainID:  chainID,
	}
	tx.GasLimit = b.gasLimit(queryCtx, tx)
	return tx, nil
}

func (b *Builder) gasLimit(ctx context.Context, tx *types.UnsignedTx) uint64 {
	ceiling := b.contracts.GasLimit(tx.Chain)
	if ceiling == 0 {
		ceiling = b.opts.GasCeiling
	}
	if !b.opts.Estimate {
		return ceiling
	}
	estimate, err := b.query.EstimateGas(ctx, tx)
	if err != nil || estimate == 0 {
		log.Debug().Err(err).Str("chain", string(tx.Chain)).Uint64("ceiling", ceiling).
			Msg("[TxBuilder] [gasLimit] estimate unavailable, using ceiling")
		return ceiling
	}
	limit := estimate * evm.GAS_ESTIMATE_MARGIN / 100
	if limit > ceiling {
		return ceiling
	}
	return limit
}
