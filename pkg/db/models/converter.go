package models

import (
	"math/big"

	"github.com/scalarorg/xtransfer/pkg/types"
)

func TransferFromDomain(t *types.Transfer) Transfer {
	value := "0"
	if t.Value != nil {
		value = t.Value.String()
	}
	return Transfer{
		SecretHash:    t.SecretHash,
		Secret:        t.Secret,
		FromChain:     string(t.FromChain),
		ToChain:       string(t.ToChain),
		FromAddr:      t.FromAddr,
		ToAddr:        t.ToAddr,
		StoremanAddr:  t.StoremanAddr,
		TokenAddr:     t.TokenAddr,
		Value:         value,
		Status:        string(t.Status),
		Phase:         string(t.Phase),
		WalletKind:    string(t.WalletKind),
		Path:          t.Path,
		ApproveTxHash: t.ApproveTxHash,
		LockTxHash:    t.LockTxHash,
		NoticeTxHash:  t.NoticeTxHash,
		RedeemTxHash:  t.RedeemTxHash,
		RevokeTxHash:  t.RevokeTxHash,
		LatestTxHash:  t.LatestTxHash,
		RetryCount:    t.RetryCount,
		Message:       t.Message,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (m *Transfer) ToDomain() *types.Transfer {
	value, ok := new(big.Int).SetString(m.Value, 10)
	if !ok {
		value = big.NewInt(0)
	}
	return &types.Transfer{
		SecretHash:    m.SecretHash,
		Secret:        m.Secret,
		FromChain:     types.Chain(m.FromChain),
		ToChain:       types.Chain(m.ToChain),
		FromAddr:      m.FromAddr,
		ToAddr:        m.ToAddr,
		StoremanAddr:  m.StoremanAddr,
		TokenAddr:     m.TokenAddr,
		Value:         value,
		Status:        types.Status(m.Status),
		Phase:         types.Phase(m.Phase),
		WalletKind:    types.WalletKind(m.WalletKind),
		Path:          m.Path,
		ApproveTxHash: m.ApproveTxHash,
		LockTxHash:    m.LockTxHash,
		NoticeTxHash:  m.NoticeTxHash,
		RedeemTxHash:  m.RedeemTxHash,
		RevokeTxHash:  m.RevokeTxHash,
		LatestTxHash:  m.LatestTxHash,
		RetryCount:    m.RetryCount,
		Message:       m.Message,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func TxRecordFromDomain(r *types.TxRecord) TxRecord {
	return TxRecord{
		ID:         r.ID,
		SecretHash: r.SecretHash,
		Action:     string(r.Action),
		Chain:      string(r.Chain),
		From:       r.From,
		To:         r.To,
		TxHash:     r.TxHash,
		Nonce:      r.Nonce,
		Status:     string(r.Status),
		Annotate:   r.Annotate,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (m *TxRecord) ToDomain() *types.TxRecord {
	return &types.TxRecord{
		ID:         m.ID,
		SecretHash: m.SecretHash,
		Action:     types.Action(m.Action),
		Chain:      types.Chain(m.Chain),
		From:       m.From,
		To:         m.To,
		TxHash:     m.TxHash,
		Nonce:      m.Nonce,
		Status:     types.TxRecordStatus(m.Status),
		Annotate:   m.Annotate,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
