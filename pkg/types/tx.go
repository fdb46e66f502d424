package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

type UnsignedTx struct {
	Chain    Chain
	To       common.Address
	From     common.Address
	Data     []byte
	Value    *big.Int
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
	ChainID  *big.Int
}

func (u *UnsignedTx) ToLegacyTx() *ethTypes.Transaction {
	value := u.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := u.To
	return ethTypes.NewTx(&ethTypes.LegacyTx{
		Nonce:    u.Nonce,
		GasPrice: u.GasPrice,
		Gas:      u.GasLimit,
		To:       &to,
		Value:    value,
		Data:     u.Data,
	})
}

// Fee is the maximum amount the sender pays for gas.
func (u *UnsignedTx) Fee() *big.Int {
	if u.GasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(u.GasPrice, new(big.Int).SetUint64(u.GasLimit))
}

type TxRecordStatus string

const (
	TxRecordPending   TxRecordStatus = "pending"
	TxRecordConfirmed TxRecordStatus = "confirmed"
	TxRecordFailed    TxRecordStatus = "failed"
	//Result arrived after the transfer became terminal through another phase
	TxRecordStale TxRecordStatus = "stale"
)

// TxRecord is one append-only entry per accepted broadcast.
type TxRecord struct {
	ID         string         `json:"id"`
	SecretHash string         `json:"secretHash,omitempty"`
	Action     Action         `json:"action"`
	Chain      Chain          `json:"chain"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	TxHash     string         `json:"txHash"`
	Nonce      uint64         `json:"nonce"`
	Status     TxRecordStatus `json:"status"`
	Annotate   string         `json:"annotate,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type TransferFilter struct {
	//Only transfers whose status is not terminal
	NonTerminal bool
	Statuses    []Status
	FromAddr    string
	FromChain   Chain
	Limit       int
}

func (f TransferFilter) Match(t *Transfer) bool {
	if f.NonTerminal && t.Status.IsTerminal() {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == t.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.FromAddr != "" && !equalAddr(f.FromAddr, t.FromAddr) {
		return false
	}
	if f.FromChain != "" && f.FromChain != t.FromChain {
		return false
	}
	return true
}

func equalAddr(a, b string) bool {
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return a == b
}
