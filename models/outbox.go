package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryChangeRecord is a transactional outbox row: it is written inside
// the same transaction as the inventory mutation, so a committed mutation is
// never observed without its change record. A dispatcher (or an operator
// command) can drain unprocessed rows later.
type InventoryChangeRecord struct {
	ID              int              `gorm:"primary_key" json:"id"`
	InventoryItemId int              `gorm:"index;not null" json:"inventory_item_id"`
	InventoryLogId  int              `gorm:"index;not null" json:"inventory_log_id"`
	Type            InventoryLogType `gorm:"type:enum('InitialStock','Restock','Adjustment','Reduction');not null" json:"type"`
	Change          int              `gorm:"not null" json:"change"`
	FinalQty        int              `gorm:"not null" json:"final_qty"`
	CorrelationId   string           `gorm:"size:64;index" json:"correlation_id"`
	IsProcessed     bool             `gorm:"not null;default:false;index" json:"is_processed"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func publishInventoryChange(ctx context.Context, tx *gorm.DB, logEntry *InventoryLog) error {
	record := InventoryChangeRecord{
		InventoryItemId: logEntry.InventoryItemId,
		InventoryLogId:  logEntry.ID,
		Type:            logEntry.Type,
		Change:          logEntry.Change,
		FinalQty:        logEntry.FinalQty,
		CorrelationId:   correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// MarkInventoryChangesProcessed acknowledges drained outbox rows.
func (s *Store) MarkInventoryChangesProcessed(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&InventoryChangeRecord{}).
		Where("id IN ?", ids).Update("is_processed", true).Error
}

// ListUnprocessedInventoryChanges returns pending outbox rows oldest first.
func (s *Store) ListUnprocessedInventoryChanges(ctx context.Context, limit int) ([]*InventoryChangeRecord, error) {
	var records []*InventoryChangeRecord
	dbCtx := s.db.WithContext(ctx).Where("is_processed = ?", false).Order("id ASC")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	if err := dbCtx.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
