package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/config"
	"bitbucket.org/mmdatafocus/plastics_backend/models"
	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/sirupsen/logrus"
)

// setupIntegrationStore boots MySQL and Redis in docker, migrates a fresh
// schema and returns a ready Store. Tests are skipped unless
// INTEGRATION_TESTS=1 is set.
func setupIntegrationStore(t *testing.T) *models.Store {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "plastics_test")

	db := config.ConnectDatabaseWithRetry()
	if err := models.MigrateDatabase(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rdb, locker := config.ConnectRedis()
	if rdb != nil {
		t.Cleanup(func() { _ = rdb.Close() })
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return models.NewStore(db, rdb, locker, logger)
}

func ownerContext() context.Context {
	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Owner")
	ctx = utils.SetUsernameInContext(ctx, "owner@test.local")
	ctx = utils.SetUserRoleInContext(ctx, string(models.UserRoleOwner))
	return ctx
}

func officerContext() context.Context {
	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 2)
	ctx = utils.SetUserNameInContext(ctx, "Test Officer")
	ctx = utils.SetUsernameInContext(ctx, "officer@test.local")
	ctx = utils.SetUserRoleInContext(ctx, string(models.UserRoleAccountOfficer))
	return ctx
}

func clerkContext() context.Context {
	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 3)
	ctx = utils.SetUserNameInContext(ctx, "Test Clerk")
	ctx = utils.SetUsernameInContext(ctx, "clerk@test.local")
	ctx = utils.SetUserRoleInContext(ctx, string(models.UserRoleClerk))
	return ctx
}

func TestInventoryLedgerQuantityLogConsistency(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := ownerContext()

	item, err := store.CreateInventoryItem(ctx, &models.NewInventoryItem{
		ProductName:     "Shopping Bag Medium",
		Category:        models.ProductCategoryPackingBag,
		InitialQuantity: 100,
		UnitLabel:       "bag",
	})
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}

	if err := store.AdjustInventory(ctx, item.ID, 50, models.InventoryLogTypeRestock, "weekly production"); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if err := store.AdjustInventory(ctx, item.ID, -30, models.InventoryLogTypeReduction, "damaged batch"); err != nil {
		t.Fatalf("reduction: %v", err)
	}

	got, err := store.GetInventoryItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryItem: %v", err)
	}
	if got.Qty != 120 {
		t.Fatalf("quantity = %d, want 120", got.Qty)
	}
	if got.LastRestocked.IsZero() {
		t.Fatal("LastRestocked not stamped after restock")
	}

	logs, err := store.GetInventoryLogs(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("log count = %d, want 3 (initial + restock + reduction)", len(logs))
	}
	if logs[0].Type != models.InventoryLogTypeInitialStock || logs[0].Change != 100 || logs[0].FinalQty != 100 {
		t.Fatalf("initial log = %+v", logs[0])
	}

	// Replaying the change column must reproduce every snapshot and land on
	// the item's current quantity.
	running := 0
	for _, logEntry := range logs {
		running += logEntry.Change
		if logEntry.FinalQty != running {
			t.Fatalf("log %d snapshot %d != replayed %d", logEntry.ID, logEntry.FinalQty, running)
		}
		if logEntry.ActorName == "" {
			t.Fatalf("log %d has no actor", logEntry.ID)
		}
	}
	if running != got.Qty {
		t.Fatalf("ledger replays to %d, item holds %d", running, got.Qty)
	}
}

func TestInventoryRejectsNegativeStock(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := ownerContext()

	item, err := store.CreateInventoryItem(ctx, &models.NewInventoryItem{
		ProductName:     "Clear Roller 40in",
		Category:        models.ProductCategoryRoller,
		InitialQuantity: 5,
		UnitLabel:       "roll",
	})
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}

	err = store.AdjustInventory(ctx, item.ID, -6, models.InventoryLogTypeReduction, "over-release")
	if err == nil {
		t.Fatal("adjustment below zero accepted")
	}
	if !utils.IsValidation(err) {
		t.Fatalf("negative stock returned %v, want validation error", err)
	}

	// The failed adjustment must leave no trace in the ledger.
	logs, err := store.GetInventoryLogs(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("log count after rejected adjustment = %d, want 1", len(logs))
	}
	got, err := store.GetInventoryItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryItem: %v", err)
	}
	if got.Qty != 5 {
		t.Fatalf("quantity after rejected adjustment = %d, want 5", got.Qty)
	}
}

func TestInventoryUnknownItemAndDelete(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := ownerContext()

	if err := store.AdjustInventory(ctx, 9999, 5, models.InventoryLogTypeRestock, ""); !utils.IsNotFound(err) {
		t.Fatalf("adjust unknown item returned %v, want not-found", err)
	}
	if _, err := store.GetInventoryLogs(ctx, 9999); !utils.IsNotFound(err) {
		t.Fatalf("logs of unknown item returned %v, want not-found", err)
	}

	item, err := store.CreateInventoryItem(ctx, &models.NewInventoryItem{
		ProductName:     "Garbage Bag Large",
		Category:        models.ProductCategoryPackingBag,
		InitialQuantity: 10,
	})
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}
	if err := store.DeleteInventoryItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteInventoryItem: %v", err)
	}
	if _, err := store.GetInventoryItem(ctx, item.ID); !utils.IsNotFound(err) {
		t.Fatalf("deleted item lookup returned %v, want not-found", err)
	}
}

func TestInventoryChangeOutboxAndSubscribers(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := ownerContext()

	var notified []models.InventoryChange
	store.Subscribe(func(change models.InventoryChange) {
		notified = append(notified, change)
	})

	item, err := store.CreateInventoryItem(ctx, &models.NewInventoryItem{
		ProductName:     "Shopping Bag Small",
		Category:        models.ProductCategoryPackingBag,
		InitialQuantity: 40,
	})
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}
	if err := store.AdjustInventory(ctx, item.ID, 10, models.InventoryLogTypeRestock, ""); err != nil {
		t.Fatalf("restock: %v", err)
	}

	if len(notified) != 2 {
		t.Fatalf("subscriber saw %d changes, want 2", len(notified))
	}
	if notified[1].FinalQty != 50 {
		t.Fatalf("subscriber FinalQty = %d, want 50", notified[1].FinalQty)
	}

	records, err := store.ListUnprocessedInventoryChanges(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnprocessedInventoryChanges: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("outbox rows = %d, want 2", len(records))
	}
	ids := []int{records[0].ID, records[1].ID}
	if err := store.MarkInventoryChangesProcessed(ctx, ids); err != nil {
		t.Fatalf("MarkInventoryChangesProcessed: %v", err)
	}
	records, err = store.ListUnprocessedInventoryChanges(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnprocessedInventoryChanges: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("outbox rows after drain = %d, want 0", len(records))
	}
}

var errContainerNotReady = errors.New("container not ready")

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("plastics-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis: %v", errContainerNotReady)
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("plastics-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=plastics_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql: %v", errContainerNotReady)
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
