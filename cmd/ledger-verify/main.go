// ledger-verify replays every inventory item's audit log and compares the
// final running quantity against the item row. A divergence means a write
// bypassed the ledger; the command reports it, it never repairs.
//
// Usage:
//
//	go run ./cmd/ledger-verify [--item-id N]
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/plastics_backend/config"
	"bitbucket.org/mmdatafocus/plastics_backend/models"
	"github.com/joho/godotenv"
)

func main() {
	itemID := flag.Int("item-id", 0, "Optional: verify a single inventory item")
	flag.Parse()

	_ = godotenv.Load()
	db := config.ConnectDatabaseWithRetry()

	var items []models.InventoryItem
	query := db.Order("id ASC")
	if *itemID > 0 {
		query = query.Where("id = ?", *itemID)
	}
	if err := query.Find(&items).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to load inventory: %v\n", err)
		os.Exit(1)
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "no inventory items matched")
		os.Exit(2)
	}

	divergent := 0
	for _, item := range items {
		var logs []models.InventoryLog
		if err := db.Where("inventory_item_id = ?", item.ID).Order("id ASC").Find(&logs).Error; err != nil {
			fmt.Fprintf(os.Stderr, "item %d: failed to load logs: %v\n", item.ID, err)
			os.Exit(1)
		}

		replayed := 0
		ok := true
		for _, logEntry := range logs {
			replayed += logEntry.Change
			if logEntry.FinalQty != replayed {
				fmt.Printf("item %d (%s): log %d snapshot %d != replayed %d\n",
					item.ID, item.ProductName, logEntry.ID, logEntry.FinalQty, replayed)
				ok = false
			}
		}
		if replayed != item.Qty {
			fmt.Printf("item %d (%s): ledger replays to %d but item holds %d\n",
				item.ID, item.ProductName, replayed, item.Qty)
			ok = false
		}
		if !ok {
			divergent++
		}
	}

	if divergent > 0 {
		fmt.Printf("%d of %d items diverged\n", divergent, len(items))
		os.Exit(3)
	}
	fmt.Printf("%d items verified, ledger consistent\n", len(items))
}
