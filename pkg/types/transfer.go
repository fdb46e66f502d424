package types

import (
	"math/big"
	"time"
)

// Transfer is one cross-chain movement of value correlated by SecretHash.
type Transfer struct {
	SecretHash string `json:"secretHash"`
	//Hash-lock preimage, only known to the initiating wallet
	Secret       string     `json:"-"`
	FromChain    Chain      `json:"fromChain"`
	ToChain      Chain      `json:"toChain"`
	FromAddr     string     `json:"fromAddr"`
	ToAddr       string     `json:"toAddr"`
	StoremanAddr string     `json:"storemanAddr"`
	TokenAddr    string     `json:"tokenAddr,omitempty"`
	Value        *big.Int   `json:"value"`
	Status       Status     `json:"status"`
	Phase        Phase      `json:"phase"`
	WalletKind   WalletKind `json:"walletKind"`
	Path         string     `json:"path,omitempty"`

	ApproveTxHash string `json:"approveTxHash,omitempty"`
	LockTxHash    string `json:"lockTxHash,omitempty"`
	NoticeTxHash  string `json:"noticeTxHash,omitempty"`
	RedeemTxHash  string `json:"redeemTxHash,omitempty"`
	RevokeTxHash  string `json:"revokeTxHash,omitempty"`
	//Hash of the most recent submission of the current phase
	LatestTxHash string `json:"latestTxHash,omitempty"`

	RetryCount int       `json:"retryCount"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NeedsApprove reports whether the source asset is a token that must be
// approved to the HTLC contract before locking.
func (t *Transfer) NeedsApprove() bool {
	return t.TokenAddr != ""
}

func (t *Transfer) PhaseTxHash(p Phase) string {
	switch p {
	case PhaseApprove:
		return t.ApproveTxHash
	case PhaseLock:
		return t.LockTxHash
	case PhaseRedeem:
		return t.RedeemTxHash
	case PhaseRevoke:
		return t.RevokeTxHash
	}
	return ""
}

// SubmittedTxHash is the hash the reconciler should observe for the current phase.
func (t *Transfer) SubmittedTxHash() string {
	if t.LatestTxHash != "" {
		return t.LatestTxHash
	}
	return t.PhaseTxHash(t.Phase)
}

// ChainOf returns the ledger on which a phase's transaction is submitted.
// Approve, Lock and Revoke run on the source chain, Redeem on the destination.
func (t *Transfer) ChainOf(p Phase) Chain {
	if p == PhaseRedeem {
		return t.ToChain
	}
	return t.FromChain
}

func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Value != nil {
		cp.Value = new(big.Int).Set(t.Value)
	}
	return &cp
}
