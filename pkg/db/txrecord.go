package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/scalarorg/xtransfer/pkg/db/models"
	"github.com/scalarorg/xtransfer/pkg/types"
	"gorm.io/gorm/clause"
)

func (db *DatabaseAdapter) InsertTxRecord(ctx context.Context, record *types.TxRecord) error {
	model := models.TxRecordFromDomain(record)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	now := db.now()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now
	err := db.Client.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to create tx record: %w", err)
	}
	return nil
}

func (db *DatabaseAdapter) UpdateTxRecordStatus(ctx context.Context, txHash string, status types.TxRecordStatus) error {
	result := db.Client.WithContext(ctx).Model(&models.TxRecord{}).
		Where("tx_hash = ?", txHash).
		Updates(map[string]any{"status": string(status), "updated_at": db.now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update tx record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.Errorf(types.ErrTransferNotFound, "tx record %s", txHash)
	}
	return nil
}

func (db *DatabaseAdapter) ListTxRecords(ctx context.Context, secretHash string) ([]*types.TxRecord, error) {
	query := db.Client.WithContext(ctx).Model(&models.TxRecord{})
	if secretHash != "" {
		query = query.Where("secret_hash = ?", secretHash)
	}
	var rows []models.TxRecord
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tx records: %w", err)
	}
	result := make([]*types.TxRecord, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].ToDomain())
	}
	return result, nil
}
