package db

import (
	"context"
	"time"

	"github.com/scalarorg/xtransfer/pkg/events"
	"github.com/scalarorg/xtransfer/pkg/types"
)

// NotifyingStore publishes a snapshot on the event bus after every successful mutation.
type NotifyingStore struct {
	HistoryStore
	bus *events.EventBus
}

func NewNotifyingStore(store HistoryStore, bus *events.EventBus) *NotifyingStore {
	return &NotifyingStore{HistoryStore: store, bus: bus}
}

func (s *NotifyingStore) InsertTransfer(ctx context.Context, transfer *types.Transfer) error {
	if err := s.HistoryStore.InsertTransfer(ctx, transfer); err != nil {
		return err
	}
	stored, err := s.HistoryStore.GetTransfer(ctx, transfer.SecretHash)
	if err != nil {
		stored = transfer.Clone()
	}
	s.bus.Publish(&types.TransferChanged{
		Event:      events.EVENT_TRANSFER_CREATED,
		SecretHash: transfer.SecretHash,
		Transfer:   stored,
		At:         time.Now(),
	})
	return nil
}

func (s *NotifyingStore) UpdateTransfer(ctx context.Context, secretHash string, fn UpdateFunc) (*types.Transfer, bool, error) {
	updated, changed, err := s.HistoryStore.UpdateTransfer(ctx, secretHash, fn)
	if err == nil && changed {
		s.bus.Publish(&types.TransferChanged{
			Event:      events.EVENT_TRANSFER_PATCHED,
			SecretHash: secretHash,
			Transfer:   updated.Clone(),
			At:         time.Now(),
		})
	}
	return updated, changed, err
}

func (s *NotifyingStore) InsertTxRecord(ctx context.Context, record *types.TxRecord) error {
	if err := s.HistoryStore.InsertTxRecord(ctx, record); err != nil {
		return err
	}
	cp := *record
	s.bus.Publish(&types.TransferChanged{
		Event:      events.EVENT_TX_RECORD_INSERTED,
		SecretHash: record.SecretHash,
		TxRecord:   &cp,
		At:         time.Now(),
	})
	return nil
}

func (s *NotifyingStore) UpdateTxRecordStatus(ctx context.Context, txHash string, status types.TxRecordStatus) error {
	if err := s.HistoryStore.UpdateTxRecordStatus(ctx, txHash, status); err != nil {
		return err
	}
	if status == types.TxRecordStale {
		s.bus.Publish(&types.TransferChanged{
			Event:    events.EVENT_TX_RECORD_STALE,
			TxRecord: &types.TxRecord{TxHash: txHash, Status: status},
			At:       time.Now(),
		})
	}
	return nil
}
