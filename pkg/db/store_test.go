package db_test

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	SECRET_HASH_1 = "0x8d1c1b4d2e6a2f0a1b5f7c3e9d4a6b8c0e2f4a6b8c0d2e4f6a8b0c2d4e6f8a0b"
	SECRET_HASH_2 = "0x1f0e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0"
	LOCK_TX_HASH  = "0x5c2c0b3f2a3b8ad2a9a6e30fcb8f5e2c1c8a4d3b2a1908f7e6d5c4b3a2918070"
	FROM_ADDR     = "0x6E5D0a6b35b8c8B8d02D3b2a1B7f1c3D9a2E4F10"
)

func newTransfer(secretHash string) *types.Transfer {
	return &types.Transfer{
		SecretHash:   secretHash,
		FromChain:    "WAN",
		ToChain:      "ETH",
		FromAddr:     FROM_ADDR,
		ToAddr:       "0x2b5AD5c4795c026514f8317c7a215E218DcCD6cF",
		StoremanAddr: "0x0000000000000000000000000000000000000001",
		Value:        big.NewInt(100),
		Status:       types.StatusWaitingCross,
		WalletKind:   types.WalletLocal,
	}
}

// runStoreSuite exercises the HistoryStore contract against any backend.
func runStoreSuite(t *testing.T, store db.HistoryStore) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		require.NoError(t, store.InsertTransfer(ctx, newTransfer(SECRET_HASH_1)))
		got, err := store.GetTransfer(ctx, SECRET_HASH_1)
		require.NoError(t, err)
		require.Equal(t, types.StatusWaitingCross, got.Status)
		require.Equal(t, 0, got.Value.Cmp(big.NewInt(100)))
		require.False(t, got.CreatedAt.IsZero())

		err = store.InsertTransfer(ctx, newTransfer(SECRET_HASH_1))
		require.ErrorIs(t, err, types.ErrTransferExists)

		_, err = store.GetTransfer(ctx, "0xmissing")
		require.ErrorIs(t, err, types.ErrTransferNotFound)
	})

	t.Run("patch is idempotent for tx hashes", func(t *testing.T) {
		patch := types.TransferPatch{}.WithStatus(types.StatusLockSent).WithPhase(types.PhaseLock).WithPhaseTxHash(types.PhaseLock, LOCK_TX_HASH)
		updated, changed, err := db.PatchTransfer(ctx, store, SECRET_HASH_1, patch)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, LOCK_TX_HASH, updated.LockTxHash)

		again, changed, err := db.PatchTransfer(ctx, store, SECRET_HASH_1, patch)
		require.NoError(t, err)
		require.False(t, changed)
		require.Equal(t, LOCK_TX_HASH, again.LockTxHash)

		_, _, err = db.PatchTransfer(ctx, store, SECRET_HASH_1, types.TransferPatch{}.WithPhaseTxHash(types.PhaseLock, "0xother"))
		require.ErrorIs(t, err, types.ErrTxHashAlreadySet)
		got, err := store.GetTransfer(ctx, SECRET_HASH_1)
		require.NoError(t, err)
		require.Equal(t, LOCK_TX_HASH, got.LockTxHash)
	})

	t.Run("concurrent read-modify-write", func(t *testing.T) {
		require.NoError(t, store.InsertTransfer(ctx, newTransfer(SECRET_HASH_2)))
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := store.UpdateTransfer(ctx, SECRET_HASH_2, func(current *types.Transfer) (types.TransferPatch, error) {
					return types.TransferPatch{}.WithRetryCount(current.RetryCount + 1), nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		got, err := store.GetTransfer(ctx, SECRET_HASH_2)
		require.NoError(t, err)
		require.Equal(t, 10, got.RetryCount)
	})

	t.Run("query non terminal", func(t *testing.T) {
		_, _, err := db.PatchTransfer(ctx, store, SECRET_HASH_2, types.TransferPatch{}.WithStatus(types.StatusRevoked))
		require.NoError(t, err)
		pending, err := store.QueryTransfers(ctx, types.TransferFilter{NonTerminal: true})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, SECRET_HASH_1, pending[0].SecretHash)

		settled, err := store.QueryTransfers(ctx, types.TransferFilter{NonTerminal: true, Statuses: []types.Status{types.StatusRevoked}})
		require.NoError(t, err)
		require.Empty(t, settled)

		byAddr, err := store.QueryTransfers(ctx, types.TransferFilter{FromAddr: FROM_ADDR})
		require.NoError(t, err)
		require.Len(t, byAddr, 2)

		_, _, err = db.PatchTransfer(ctx, store, SECRET_HASH_2, types.TransferPatch{}.WithStatus(types.StatusRedeemed))
		require.ErrorIs(t, err, types.ErrTerminal)
	})

	t.Run("tx records", func(t *testing.T) {
		record := &types.TxRecord{
			SecretHash: SECRET_HASH_1,
			Action:     types.ActionLock,
			Chain:      "WAN",
			From:       FROM_ADDR,
			TxHash:     LOCK_TX_HASH,
			Status:     types.TxRecordPending,
		}
		require.NoError(t, store.InsertTxRecord(ctx, record))
		require.NoError(t, store.InsertTxRecord(ctx, record))
		require.NoError(t, store.UpdateTxRecordStatus(ctx, LOCK_TX_HASH, types.TxRecordConfirmed))

		records, err := store.ListTxRecords(ctx, SECRET_HASH_1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, types.TxRecordConfirmed, records[0].Status)
		require.NotEmpty(t, records[0].ID)

		err = store.UpdateTxRecordStatus(ctx, "0xunknown", types.TxRecordFailed)
		require.Error(t, err)
	})
}
