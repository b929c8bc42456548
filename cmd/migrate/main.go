// migrate runs the schema migrations as a standalone job. The server skips
// AutoMigrate when SKIP_MIGRATIONS=true; deployments run this first.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/migrate
package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/plastics_backend/config"
	"bitbucket.org/mmdatafocus/plastics_backend/models"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	db := config.ConnectDatabaseWithRetry()
	if err := models.MigrateDatabase(db); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}
