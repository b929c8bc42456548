package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryItem is a stockable unit. PartnerId nil means the item belongs to
// the shared factory reserve pool rather than a wholesale partner.
//
// Quantity is only ever mutated through AdjustInventory so that every change
// is paired with exactly one InventoryLog row. Version backs the optimistic
// compare-and-swap that keeps concurrent adjustments from losing updates.
type InventoryItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PartnerId     *int            `gorm:"index" json:"partner_id"`
	Partner       *Partner        `gorm:"foreignKey:PartnerId" json:"partner,omitempty"`
	ProductName   string          `gorm:"size:100;not null" json:"product_name" binding:"required"`
	Category      ProductCategory `gorm:"type:enum('Roller','PackingBag');not null" json:"category" binding:"required"`
	Qty           int             `gorm:"not null;default:0" json:"qty"`
	TotalWeightKg decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_weight_kg"`
	UnitLabel     string          `gorm:"size:20" json:"unit_label"`
	Version       int             `gorm:"not null;default:0" json:"version"`
	LastRestocked time.Time       `json:"last_restocked"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Logs          []InventoryLog  `gorm:"foreignKey:InventoryItemId" json:"logs,omitempty"`
}

type NewInventoryItem struct {
	PartnerId       *int            `json:"partner_id"`
	ProductName     string          `json:"product_name" binding:"required"`
	Category        ProductCategory `json:"category" binding:"required"`
	InitialQuantity int             `json:"initial_quantity"`
	TotalWeightKg   decimal.Decimal `json:"total_weight_kg"`
	UnitLabel       string          `json:"unit_label"`
	Notes           string          `json:"notes"`
}

func (input *NewInventoryItem) validate(ctx context.Context, s *Store) error {
	if input.ProductName == "" {
		return fmt.Errorf("%w: product name is required", utils.ErrValidation)
	}
	if input.Category != ProductCategoryRoller && input.Category != ProductCategoryPackingBag {
		return fmt.Errorf("%w: product category is required", utils.ErrValidation)
	}
	if input.InitialQuantity < 0 {
		return fmt.Errorf("%w: initial quantity cannot be negative", utils.ErrValidation)
	}
	if input.PartnerId != nil {
		if err := s.validatePartnerId(ctx, *input.PartnerId); err != nil {
			return err
		}
	}
	return nil
}

// CreateInventoryItem registers a new stockable unit with its opening
// quantity and appends the InitialStock audit row in the same transaction.
func (s *Store) CreateInventoryItem(ctx context.Context, input *NewInventoryItem) (*InventoryItem, error) {
	if err := input.validate(ctx, s); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := InventoryItem{
		PartnerId:     input.PartnerId,
		ProductName:   input.ProductName,
		Category:      input.Category,
		Qty:           input.InitialQuantity,
		TotalWeightKg: input.TotalWeightKg,
		UnitLabel:     input.UnitLabel,
		LastRestocked: now,
	}
	if item.Category != ProductCategoryRoller {
		item.TotalWeightKg = decimal.Zero
	}

	var logEntry InventoryLog
	tx := s.db.Begin()
	if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	logEntry = InventoryLog{
		InventoryItemId: item.ID,
		Type:            InventoryLogTypeInitialStock,
		Change:          input.InitialQuantity,
		FinalQty:        item.Qty,
		ActorName:       actorName(ctx),
		Notes:           input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&logEntry).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := publishInventoryChange(ctx, tx.WithContext(ctx), &logEntry); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	s.notifyInventoryChanged(InventoryChange{
		InventoryItemId: item.ID,
		Change:          logEntry.Change,
		FinalQty:        logEntry.FinalQty,
		Type:            logEntry.Type,
	})
	return &item, nil
}

// AdjustInventory applies a signed quantity change of the given type. By
// convention reductions are supplied as a negative change. An adjustment that
// would drive the quantity below zero is rejected before any write.
func (s *Store) AdjustInventory(ctx context.Context, itemId int, change int, logType InventoryLogType, notes string) error {
	switch logType {
	case InventoryLogTypeRestock, InventoryLogTypeAdjustment, InventoryLogTypeReduction:
	default:
		return fmt.Errorf("%w: invalid adjustment type", utils.ErrValidation)
	}

	release, err := s.itemLock(ctx, itemId, "AdjustInventory")
	if err != nil {
		return err
	}
	defer release()

	_, err = s.adjustInventoryOnce(ctx, s.db, itemId, change, decimal.Zero, logType, notes)
	return err
}

// adjustInventoryOnce runs one locked adjust attempt inside its own
// transaction. weightChangeKg only applies to Roller items.
func (s *Store) adjustInventoryOnce(ctx context.Context, db *gorm.DB, itemId int, change int, weightChangeKg decimal.Decimal, logType InventoryLogType, notes string) (*InventoryLog, error) {
	tx := db.Begin()
	logEntry, err := adjustInventoryTx(ctx, tx.WithContext(ctx), itemId, change, weightChangeKg, logType, notes)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	s.notifyInventoryChanged(InventoryChange{
		InventoryItemId: itemId,
		Change:          logEntry.Change,
		FinalQty:        logEntry.FinalQty,
		Type:            logEntry.Type,
	})
	return logEntry, nil
}

// adjustInventoryTx is the single mutation path for stock quantities. It must
// run inside a transaction so the quantity update, the audit row and the
// outbox record commit or fail as one unit.
func adjustInventoryTx(ctx context.Context, tx *gorm.DB, itemId int, change int, weightChangeKg decimal.Decimal, logType InventoryLogType, notes string) (*InventoryLog, error) {
	var item InventoryItem
	if err := tx.First(&item, itemId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: inventory item %d", utils.ErrNotFound, itemId)
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	newQty := item.Qty + change
	if newQty < 0 {
		return nil, fmt.Errorf("%w: adjustment would drive stock below zero (current %d, change %d)", utils.ErrValidation, item.Qty, change)
	}
	newWeight := item.TotalWeightKg
	if item.Category == ProductCategoryRoller && !weightChangeKg.IsZero() {
		newWeight = newWeight.Add(weightChangeKg)
		if newWeight.IsNegative() {
			return nil, fmt.Errorf("%w: adjustment would drive stock weight below zero", utils.ErrValidation)
		}
	}

	now := time.Now().UTC()
	res := tx.Model(&InventoryItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]interface{}{
			"qty":             newQty,
			"total_weight_kg": newWeight,
			"last_restocked":  now,
			"version":         item.Version + 1,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: concurrent inventory update detected, retry the adjustment", utils.ErrStorage)
	}

	logEntry := InventoryLog{
		InventoryItemId: item.ID,
		Type:            logType,
		Change:          change,
		FinalQty:        newQty,
		ActorName:       actorName(ctx),
		Notes:           notes,
	}
	if err := tx.Create(&logEntry).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := publishInventoryChange(ctx, tx, &logEntry); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &logEntry, nil
}

// GetInventoryLogs returns the complete audit trail for one item, oldest
// first. Presentation layers reverse it as needed.
func (s *Store) GetInventoryLogs(ctx context.Context, itemId int) ([]*InventoryLog, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&InventoryItem{}).Where("id = ?", itemId).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: inventory item %d", utils.ErrNotFound, itemId)
	}
	var logs []*InventoryLog
	if err := s.db.WithContext(ctx).
		Where("inventory_item_id = ?", itemId).
		Order("created_at ASC, id ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return logs, nil
}

func (s *Store) GetInventoryItem(ctx context.Context, itemId int) (*InventoryItem, error) {
	var item InventoryItem
	if err := s.db.WithContext(ctx).Preload("Partner").First(&item, itemId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: inventory item %d", utils.ErrNotFound, itemId)
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &item, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]*InventoryItem, error) {
	var items []*InventoryItem
	if err := s.db.WithContext(ctx).Preload("Partner").Order("product_name ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return items, nil
}

// DeleteInventoryItem removes the item and its entire audit trail. This is a
// destructive administrative action; intent confirmation is the caller's job.
func (s *Store) DeleteInventoryItem(ctx context.Context, itemId int) error {
	if err := s.ActorCan(ctx, PermDeleteInventory); err != nil {
		return err
	}
	item, err := s.GetInventoryItem(ctx, itemId)
	if err != nil {
		return err
	}

	tx := s.db.Begin()
	if err := tx.WithContext(ctx).Where("inventory_item_id = ?", itemId).Delete(&InventoryLog{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := tx.WithContext(ctx).Where("inventory_item_id = ?", itemId).Delete(&InventoryChangeRecord{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := tx.WithContext(ctx).Delete(item).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return nil
}

// findOrCreateItemForProduction locates the inventory item a completed work
// order line lands in: the partner's item for that product, or the reserve
// pool item for guest orders. Created empty on first production.
func findOrCreateItemForProduction(tx *gorm.DB, partnerId *int, productName string, category ProductCategory) (*InventoryItem, error) {
	var item InventoryItem
	dbCtx := tx.Where("product_name = ? AND category = ?", productName, category)
	if partnerId != nil {
		dbCtx = dbCtx.Where("partner_id = ?", *partnerId)
	} else {
		dbCtx = dbCtx.Where("partner_id IS NULL")
	}
	err := dbCtx.First(&item).Error
	if err == nil {
		return &item, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}

	item = InventoryItem{
		PartnerId:     partnerId,
		ProductName:   productName,
		Category:      category,
		Qty:           0,
		LastRestocked: time.Now().UTC(),
	}
	if category == ProductCategoryPackingBag {
		item.UnitLabel = "pcs"
	} else {
		item.UnitLabel = "kg"
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return &item, nil
}
