package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/scalarorg/xtransfer/pkg/utils"
)

var _ HistoryStore = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. Used by tests and the
// "memory" database driver.
type MemoryStore struct {
	mu        sync.RWMutex
	keyLock   *utils.KeyedMutex
	transfers map[string]*types.Transfer
	records   []*types.TxRecord
	byTxHash  map[string]*types.TxRecord
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keyLock:   utils.NewKeyedMutex(),
		transfers: make(map[string]*types.Transfer),
		byTxHash:  make(map[string]*types.TxRecord),
		now:       time.Now,
	}
}

func (s *MemoryStore) InsertTransfer(_ context.Context, transfer *types.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[transfer.SecretHash]; ok {
		return types.Errorf(types.ErrTransferExists, "%s", transfer.SecretHash)
	}
	cp := transfer.Clone()
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.transfers[cp.SecretHash] = cp
	return nil
}

func (s *MemoryStore) GetTransfer(_ context.Context, secretHash string) (*types.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[secretHash]
	if !ok {
		return nil, types.Errorf(types.ErrTransferNotFound, "%s", secretHash)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) QueryTransfers(_ context.Context, filter types.TransferFilter) ([]*types.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*types.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		if filter.Match(t) {
			result = append(result, t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *MemoryStore) UpdateTransfer(ctx context.Context, secretHash string, fn UpdateFunc) (*types.Transfer, bool, error) {
	unlock := s.keyLock.Lock(secretHash)
	defer unlock()
	current, err := s.GetTransfer(ctx, secretHash)
	if err != nil {
		return nil, false, err
	}
	patch, err := fn(current.Clone())
	if err != nil {
		return current, false, err
	}
	changed, err := patch.Apply(current, s.now())
	if err != nil || !changed {
		return current, false, err
	}
	s.mu.Lock()
	s.transfers[secretHash] = current.Clone()
	s.mu.Unlock()
	return current, true, nil
}

func (s *MemoryStore) InsertTxRecord(_ context.Context, record *types.TxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byTxHash[record.TxHash]; ok {
		return nil
	}
	cp := *record
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.records = append(s.records, &cp)
	s.byTxHash[cp.TxHash] = &cp
	return nil
}

func (s *MemoryStore) UpdateTxRecordStatus(_ context.Context, txHash string, status types.TxRecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byTxHash[txHash]
	if !ok {
		return types.Errorf(types.ErrTransferNotFound, "tx record %s", txHash)
	}
	record.Status = status
	record.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListTxRecords(_ context.Context, secretHash string) ([]*types.TxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*types.TxRecord
	for _, record := range s.records {
		if secretHash == "" || record.SecretHash == secretHash {
			cp := *record
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
