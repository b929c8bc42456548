package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
)

// Sale is the immutable record of stock actually released and revenue
// recognized. Exactly one row per committed dispatch; never updated.
// AgentId 0 is the system sentinel for unattributed sales.
type Sale struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OrderId         int             `gorm:"index;not null" json:"order_id"`
	AgentId         int             `gorm:"index;not null;default:0" json:"agent_id"`
	PartnerId       *int            `gorm:"index" json:"partner_id"`
	InventoryItemId int             `gorm:"index;not null" json:"inventory_item_id"`
	WeightKg        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight_kg"`
	UnitQty         int             `gorm:"not null;default:0" json:"unit_qty"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

// Value is the recognized revenue: weight x price for rollers is already
// captured by WeightKg when UnitQty is zero, otherwise unit count applies.
func (sale Sale) Value() decimal.Decimal {
	if sale.WeightKg.IsPositive() {
		return sale.WeightKg.Mul(sale.UnitPrice)
	}
	return decimal.NewFromInt(int64(sale.UnitQty)).Mul(sale.UnitPrice)
}

func (s *Store) ListSales(ctx context.Context) ([]*Sale, error) {
	var sales []*Sale
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return sales, nil
}
