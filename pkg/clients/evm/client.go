package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/config"
	contracts_abi "github.com/scalarorg/xtransfer/pkg/clients/evm/abi"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// Client talks to one EVM ledger. Every call is bounded by the client timeout.
type Client struct {
	Chain       types.Chain
	EvmConfig   *config.EvmNetworkConfig
	Backend     EthBackend
	HtlcAddress common.Address
	htlcAbi     abi.ABI
	timeout     time.Duration
	logRange    uint64
}

func NewClient(ctx context.Context, evmConfig *config.EvmNetworkConfig, opts ClientOptions) (*Client, error) {
	log.Info().Str("chain", evmConfig.Chain).Str("rpc", evmConfig.RPCUrl).Msg("[EvmClient] [NewClient] connecting to EVM network")
	dialCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()
	rpcClient, err := rpc.DialContext(dialCtx, evmConfig.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM network %s: %w", evmConfig.Chain, err)
	}
	return NewClientWithBackend(evmConfig, ethclient.NewClient(rpcClient), opts)
}

func NewClientWithBackend(evmConfig *config.EvmNetworkConfig, backend EthBackend, opts ClientOptions) (*Client, error) {
	htlcAbi, err := abi.JSON(strings.NewReader(contracts_abi.GetContractABI(contracts_abi.HTLC)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse htlc abi: %w", err)
	}
	if !common.IsHexAddress(evmConfig.HtlcContract) {
		return nil, fmt.Errorf("htlc contract is not set for network %s", evmConfig.Chain)
	}
	logRange := opts.LogRange
	if logRange == 0 {
		logRange = 5000
	}
	return &Client{
		Chain:       types.NormalizeChain(evmConfig.Chain),
		EvmConfig:   evmConfig,
		Backend:     backend,
		HtlcAddress: common.HexToAddress(evmConfig.HtlcContract),
		htlcAbi:     htlcAbi,
		timeout:     opts.timeout(),
		logRange:    logRange,
	}, nil
}

func (o ClientOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return config.DEFAULT_RPC_TIMEOUT
	}
	return o.Timeout
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) GetNonce(ctx context.Context, address common.Address) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	nonce, err := c.Backend.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	return nonce, nil
}

func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	gasPrice, err := c.Backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	return gasPrice, nil
}

func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	chainID, err := c.Backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	return chainID, nil
}

func (c *Client) EstimateGas(ctx context.Context, tx *types.UnsignedTx) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	to := tx.To
	gas, err := c.Backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  tx.From,
		To:    &to,
		Value: tx.Value,
		Data:  tx.Data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	return gas, nil
}

func (c *Client) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	balance, err := c.Backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	return balance, nil
}

// SendRawTransaction submits a signed transaction. A node that already holds
// the same transaction counts as success.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	tx := new(ethTypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", types.Errorf(types.ErrBroadcastRejected, "malformed raw transaction: %v", err)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	err := c.Backend.SendTransaction(ctx, tx)
	if err != nil && !types.IsAlreadyKnown(err) {
		log.Error().Err(err).Str("chain", string(c.Chain)).Str("txHash", tx.Hash().Hex()).
			Msg("[EvmClient] [SendRawTransaction] failed to send transaction")
		return "", fmt.Errorf("failed to send transaction on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	log.Info().Str("chain", string(c.Chain)).Str("txHash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).
		Msg("[EvmClient] [SendRawTransaction] transaction accepted")
	return tx.Hash().Hex(), nil
}

// GetTxStatus reports where a transaction stands relative to the chain's finality.
func (c *Client) GetTxStatus(ctx context.Context, txHash string) (types.TxObservation, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	hash := common.HexToHash(txHash)
	observation := types.TxObservation{TxHash: txHash}
	receipt, err := c.Backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			return observation, fmt.Errorf("failed to get receipt on %s: %w", c.Chain, types.ClassifyRPCError(err))
		}
		_, isPending, err := c.Backend.TransactionByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				observation.State = types.TxUnknown
				return observation, nil
			}
			return observation, fmt.Errorf("failed to get transaction on %s: %w", c.Chain, types.ClassifyRPCError(err))
		}
		if isPending {
			observation.State = types.TxPending
		} else {
			observation.State = types.TxUnknown
		}
		return observation, nil
	}
	observation.BlockNumber = receipt.BlockNumber.Uint64()
	if receipt.Status == ethTypes.ReceiptStatusFailed {
		observation.State = types.TxReverted
		return observation, nil
	}
	head, err := c.Backend.BlockNumber(ctx)
	if err != nil {
		return observation, fmt.Errorf("failed to get block number on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	observation.Confirmations = confirmations(head, observation.BlockNumber)
	if observation.Confirmations >= c.EvmConfig.Finality {
		observation.State = types.TxConfirmed
	} else {
		observation.State = types.TxMined
	}
	return observation, nil
}

func confirmations(head, block uint64) uint64 {
	if head < block {
		return 0
	}
	return head - block + 1
}

// FindBuddyLock looks for the storeman's lock of secretHash on this chain's HTLC contract.
func (c *Client) FindBuddyLock(ctx context.Context, secretHash string) (types.BuddyLock, error) {
	xHash, err := types.DecodeBytes32(secretHash)
	if err != nil {
		return types.BuddyLock{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	head, err := c.Backend.BlockNumber(ctx)
	if err != nil {
		return types.BuddyLock{}, fmt.Errorf("failed to get block number on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	from := uint64(0)
	if head > c.logRange {
		from = head - c.logRange
	}
	logs, err := c.Backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{c.HtlcAddress},
		Topics:    [][]common.Hash{{c.htlcAbi.Events[contracts_abi.EVENT_STOREMAN_LOCK].ID}, {common.Hash(xHash)}},
	})
	if err != nil {
		return types.BuddyLock{}, fmt.Errorf("failed to filter logs on %s: %w", c.Chain, types.ClassifyRPCError(err))
	}
	for _, entry := range logs {
		if entry.Removed {
			continue
		}
		return types.BuddyLock{
			Found:     true,
			TxHash:    entry.TxHash.Hex(),
			Confirmed: confirmations(head, entry.BlockNumber) >= c.EvmConfig.Finality,
		}, nil
	}
	return types.BuddyLock{}, nil
}
