package models

import "gorm.io/gorm"

func MigrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Partner{},
		&Agent{},
		&CallReport{},
		&InventoryItem{},
		&InventoryLog{},
		&InventoryChangeRecord{},
		&Order{},
		&OrderDetail{},
		&WorkOrder{},
		&DispatchDraft{},
		&Sale{},
		&Commission{},
		&BusinessSettings{},
	)
}
