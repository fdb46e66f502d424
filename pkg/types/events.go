package types

import "time"

// TransferChanged carries a snapshot of a transfer after a store mutation.
type TransferChanged struct {
	Event      string
	SecretHash string
	Transfer   *Transfer
	TxRecord   *TxRecord
	At         time.Time
}
