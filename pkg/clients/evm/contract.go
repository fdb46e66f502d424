package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/scalarorg/xtransfer/config"
	contracts_abi "github.com/scalarorg/xtransfer/pkg/clients/evm/abi"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// Call is the target, payload and attached value of one contract invocation.
type Call struct {
	Chain types.Chain
	To    common.Address
	Data  []byte
	Value *big.Int
}

// ContractData encodes HTLC and token calls for every configured chain.
type ContractData struct {
	htlcAbi  abi.ABI
	erc20Abi abi.ABI
	networks map[types.Chain]config.EvmNetworkConfig
}

func NewContractData(networks []config.EvmNetworkConfig) (*ContractData, error) {
	htlcAbi, err := abi.JSON(strings.NewReader(contracts_abi.GetContractABI(contracts_abi.HTLC)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse htlc abi: %w", err)
	}
	erc20Abi, err := abi.JSON(strings.NewReader(contracts_abi.GetContractABI(contracts_abi.ERC20)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	byChain := make(map[types.Chain]config.EvmNetworkConfig, len(networks))
	for _, network := range networks {
		byChain[types.NormalizeChain(network.Chain)] = network
	}
	return &ContractData{htlcAbi: htlcAbi, erc20Abi: erc20Abi, networks: byChain}, nil
}

// Encode packs the call data of action with positional args.
func (b *ContractData) Encode(action types.Action, args ...any) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch action {
	case types.ActionApprove:
		data, err = b.erc20Abi.Pack("approve", args...)
	case types.ActionLock, types.ActionRedeem, types.ActionRevoke, types.ActionDelegateClaim:
		data, err = b.htlcAbi.Pack(string(action), args...)
	default:
		return nil, types.Errorf(types.ErrValidation, "unsupported action %s", action)
	}
	if err != nil {
		return nil, types.Errorf(types.ErrValidation, "failed to encode %s: %v", action, err)
	}
	return data, nil
}

// CallFor resolves the contract call that performs action for transfer.
func (b *ContractData) CallFor(action types.Action, transfer *types.Transfer) (*Call, error) {
	chain := transfer.ChainOf(action.Phase())
	network, ok := b.networks[types.NormalizeChain(string(chain))]
	if !ok {
		return nil, types.Errorf(types.ErrValidation, "chain %s is not configured", chain)
	}
	htlc := common.HexToAddress(network.HtlcContract)
	value := transfer.Value
	if value == nil {
		value = big.NewInt(0)
	}
	call := &Call{Chain: chain, To: htlc, Value: big.NewInt(0)}
	var err error
	switch action {
	case types.ActionApprove:
		token := transfer.TokenAddr
		if token == "" {
			token = network.TokenContract
		}
		if !common.IsHexAddress(token) {
			return nil, types.Errorf(types.ErrValidation, "transfer %s has no token to approve", transfer.SecretHash)
		}
		call.To = common.HexToAddress(token)
		call.Data, err = b.Encode(action, htlc, value)
	case types.ActionLock:
		xHash, decodeErr := types.DecodeBytes32(transfer.SecretHash)
		if decodeErr != nil {
			return nil, decodeErr
		}
		if !transfer.NeedsApprove() {
			call.Value = new(big.Int).Set(value)
		}
		call.Data, err = b.Encode(action, xHash, common.HexToAddress(transfer.StoremanAddr), common.HexToAddress(transfer.ToAddr), value)
	case types.ActionRedeem:
		if transfer.Secret == "" {
			return nil, types.Errorf(types.ErrValidation, "secret of %s is unknown", transfer.SecretHash)
		}
		x, decodeErr := types.DecodeBytes32(transfer.Secret)
		if decodeErr != nil {
			return nil, decodeErr
		}
		call.Data, err = b.Encode(action, x)
	case types.ActionRevoke:
		xHash, decodeErr := types.DecodeBytes32(transfer.SecretHash)
		if decodeErr != nil {
			return nil, decodeErr
		}
		call.Data, err = b.Encode(action, xHash)
	case types.ActionDelegateClaim:
		call.Data, err = b.Encode(action, common.HexToAddress(transfer.StoremanAddr))
	default:
		return nil, types.Errorf(types.ErrValidation, "unsupported action %s", action)
	}
	if err != nil {
		return nil, err
	}
	return call, nil
}

// Decimals of the asset moved on chain.
func (b *ContractData) Decimals(chain types.Chain) int32 {
	if network, ok := b.networks[types.NormalizeChain(string(chain))]; ok && network.Decimals > 0 {
		return network.Decimals
	}
	return config.DEFAULT_DECIMALS
}

func (b *ContractData) GasLimit(chain types.Chain) uint64 {
	if network, ok := b.networks[types.NormalizeChain(string(chain))]; ok {
		return network.GasLimit
	}
	return 0
}

// Token returns the token contract configured for chain, empty for coin transfers.
func (b *ContractData) Token(chain types.Chain) string {
	return b.networks[types.NormalizeChain(string(chain))].TokenContract
}
