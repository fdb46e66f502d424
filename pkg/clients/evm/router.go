package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// Router dispatches chain calls to the client of the named ledger.
type Router struct {
	clients map[types.Chain]*Client
}

func NewRouter(clients ...*Client) *Router {
	router := &Router{clients: make(map[types.Chain]*Client, len(clients))}
	for _, client := range clients {
		router.clients[client.Chain] = client
	}
	return router
}

// NewEvmClients dials every configured network. A network that cannot be
// reached is logged and skipped.
func NewEvmClients(ctx context.Context, cfg *config.Config) (*Router, error) {
	clients := make([]*Client, 0, len(cfg.EvmNetworks))
	for i := range cfg.EvmNetworks {
		evmConfig := &cfg.EvmNetworks[i]
		client, err := NewClient(ctx, evmConfig, ClientOptions{Timeout: cfg.Engine.RPCTimeout})
		if err != nil {
			log.Warn().Err(err).Str("chain", evmConfig.Chain).Msg("[EvmClient] [NewEvmClients] failed to create evm client")
			continue
		}
		clients = append(clients, client)
	}
	if len(clients) == 0 && len(cfg.EvmNetworks) > 0 {
		return nil, fmt.Errorf("no evm network reachable")
	}
	return NewRouter(clients...), nil
}

func (r *Router) Client(chain types.Chain) (*Client, error) {
	client, ok := r.clients[types.NormalizeChain(string(chain))]
	if !ok {
		return nil, types.Errorf(types.ErrValidation, "chain %s is not configured", chain)
	}
	return client, nil
}

func (r *Router) Chains() []types.Chain {
	chains := make([]types.Chain, 0, len(r.clients))
	for chain := range r.clients {
		chains = append(chains, chain)
	}
	return chains
}

func (r *Router) GetNonce(ctx context.Context, chain types.Chain, address common.Address) (uint64, error) {
	client, err := r.Client(chain)
	if err != nil {
		return 0, err
	}
	return client.GetNonce(ctx, address)
}

func (r *Router) GetGasPrice(ctx context.Context, chain types.Chain) (*big.Int, error) {
	client, err := r.Client(chain)
	if err != nil {
		return nil, err
	}
	return client.GetGasPrice(ctx)
}

func (r *Router) GetChainID(ctx context.Context, chain types.Chain) (*big.Int, error) {
	client, err := r.Client(chain)
	if err != nil {
		return nil, err
	}
	return client.GetChainID(ctx)
}

func (r *Router) EstimateGas(ctx context.Context, tx *types.UnsignedTx) (uint64, error) {
	client, err := r.Client(tx.Chain)
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, tx)
}

func (r *Router) GetBalance(ctx context.Context, chain types.Chain, address common.Address) (*big.Int, error) {
	client, err := r.Client(chain)
	if err != nil {
		return nil, err
	}
	return client.GetBalance(ctx, address)
}

func (r *Router) Submit(ctx context.Context, chain types.Chain, raw []byte) (string, error) {
	client, err := r.Client(chain)
	if err != nil {
		return "", err
	}
	return client.SendRawTransaction(ctx, raw)
}

func (r *Router) GetTxStatus(ctx context.Context, chain types.Chain, txHash string) (types.TxObservation, error) {
	client, err := r.Client(chain)
	if err != nil {
		return types.TxObservation{}, err
	}
	return client.GetTxStatus(ctx, txHash)
}

func (r *Router) FindBuddyLock(ctx context.Context, chain types.Chain, secretHash string) (types.BuddyLock, error) {
	client, err := r.Client(chain)
	if err != nil {
		return types.BuddyLock{}, err
	}
	return client.FindBuddyLock(ctx, secretHash)
}
