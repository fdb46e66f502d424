package db

import (
	"context"

	"github.com/scalarorg/xtransfer/pkg/types"
)

// UpdateFunc computes a patch from the current persisted transfer. It runs
// while the store holds the transfer's write lock, so the read and the write
// are one atomic step per secretHash.
type UpdateFunc func(current *types.Transfer) (types.TransferPatch, error)

// HistoryStore persists transfers and their append-only tx records.
type HistoryStore interface {
	InsertTransfer(ctx context.Context, transfer *types.Transfer) error
	GetTransfer(ctx context.Context, secretHash string) (*types.Transfer, error)
	QueryTransfers(ctx context.Context, filter types.TransferFilter) ([]*types.Transfer, error)
	// UpdateTransfer returns the transfer after the update and whether anything changed.
	UpdateTransfer(ctx context.Context, secretHash string, fn UpdateFunc) (*types.Transfer, bool, error)

	InsertTxRecord(ctx context.Context, record *types.TxRecord) error
	UpdateTxRecordStatus(ctx context.Context, txHash string, status types.TxRecordStatus) error
	ListTxRecords(ctx context.Context, secretHash string) ([]*types.TxRecord, error)

	Close() error
}

// PatchTransfer applies a fixed patch through the store's serialized update path.
func PatchTransfer(ctx context.Context, store HistoryStore, secretHash string, patch types.TransferPatch) (*types.Transfer, bool, error) {
	return store.UpdateTransfer(ctx, secretHash, func(*types.Transfer) (types.TransferPatch, error) {
		return patch, nil
	})
}
