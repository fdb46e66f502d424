package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/scalarorg/xtransfer/pkg/db/models"
	"github.com/scalarorg/xtransfer/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var terminalStatuses = []string{
	string(types.StatusRedeemed),
	string(types.StatusRevoked),
	string(types.StatusApproveSendFailAfterRetries),
	string(types.StatusLockSendFailAfterRetries),
	string(types.StatusRedeemSendFailAfterRetries),
	string(types.StatusRevokeSendFailAfterRetries),
}

func (db *DatabaseAdapter) InsertTransfer(ctx context.Context, transfer *types.Transfer) error {
	model := models.TransferFromDomain(transfer)
	now := db.now()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now
	return db.Client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Transfer{}).Where("secret_hash = ?", model.SecretHash).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check transfer: %w", err)
		}
		if count > 0 {
			return types.Errorf(types.ErrTransferExists, "%s", model.SecretHash)
		}
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return types.Errorf(types.ErrTransferExists, "%s", model.SecretHash)
			}
			return fmt.Errorf("failed to create transfer: %w", err)
		}
		return nil
	})
}

func (db *DatabaseAdapter) GetTransfer(ctx context.Context, secretHash string) (*types.Transfer, error) {
	var model models.Transfer
	err := db.Client.WithContext(ctx).Where("secret_hash = ?", secretHash).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Errorf(types.ErrTransferNotFound, "%s", secretHash)
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return model.ToDomain(), nil
}

func (db *DatabaseAdapter) QueryTransfers(ctx context.Context, filter types.TransferFilter) ([]*types.Transfer, error) {
	query := db.Client.WithContext(ctx).Model(&models.Transfer{})
	if filter.NonTerminal {
		query = query.Where("status NOT IN ?", terminalStatuses)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.FromAddr != "" {
		query = query.Where("LOWER(from_addr) = LOWER(?)", filter.FromAddr)
	}
	if filter.FromChain != "" {
		query = query.Where("from_chain = ?", string(filter.FromChain))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []models.Transfer
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	result := make([]*types.Transfer, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].ToDomain())
	}
	return result, nil
}

// UpdateTransfer serializes writers per secretHash in process and, on postgres,
// across processes with a row lock.
func (db *DatabaseAdapter) UpdateTransfer(ctx context.Context, secretHash string, fn UpdateFunc) (*types.Transfer, bool, error) {
	unlock := db.keyLock.Lock(secretHash)
	defer unlock()
	var (
		result  *types.Transfer
		changed bool
	)
	err := db.Client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var model models.Transfer
		if err := query.Where("secret_hash = ?", secretHash).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.Errorf(types.ErrTransferNotFound, "%s", secretHash)
			}
			return fmt.Errorf("failed to load transfer: %w", err)
		}
		current := model.ToDomain()
		result = current
		patch, err := fn(current.Clone())
		if err != nil {
			return err
		}
		changed, err = patch.Apply(current, db.now())
		if err != nil || !changed {
			return err
		}
		updated := models.TransferFromDomain(current)
		if err := tx.Save(&updated).Error; err != nil {
			changed = false
			return fmt.Errorf("failed to save transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return result, false, err
	}
	return result, changed, nil
}
