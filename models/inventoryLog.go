package models

import (
	"time"
)

// InventoryLog is one immutable row of the stock audit trail. Rows are only
// ever appended; FinalQty snapshots the item quantity after applying Change,
// so the column replays to the item's running total.
type InventoryLog struct {
	ID              int              `gorm:"primary_key" json:"id"`
	InventoryItemId int              `gorm:"index;not null" json:"inventory_item_id"`
	Type            InventoryLogType `gorm:"type:enum('InitialStock','Restock','Adjustment','Reduction');not null" json:"type"`
	Change          int              `gorm:"not null" json:"change"`
	FinalQty        int              `gorm:"not null" json:"final_qty"`
	ActorName       string           `gorm:"size:100" json:"actor_name"`
	Notes           string           `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}
