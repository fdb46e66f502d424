package types

type TxState int

const (
	//Neither mined nor known to the node's pool
	TxUnknown TxState = iota
	TxPending
	//Mined, below the chain's finality depth
	TxMined
	TxConfirmed
	TxReverted
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxMined:
		return "mined"
	case TxConfirmed:
		return "confirmed"
	case TxReverted:
		return "reverted"
	}
	return "unknown"
}

// TxObservation is what a chain reports about one submitted transaction.
type TxObservation struct {
	TxHash        string
	State         TxState
	BlockNumber   uint64
	Confirmations uint64
}

// BuddyLock is the storeman's counter-lock on the destination chain.
type BuddyLock struct {
	Found     bool
	TxHash    string
	Confirmed bool
}
