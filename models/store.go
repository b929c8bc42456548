package models

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/plastics_backend/config"
	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InventoryChange is delivered to subscribers after an inventory mutation
// commits. UI layers use it to refresh stock views.
type InventoryChange struct {
	InventoryItemId int
	Change          int
	FinalQty        int
	Type            InventoryLogType
}

// Store is the local implementation of the data-access gateway. It is built
// once at process start and injected into every caller; there is no ambient
// global database handle.
type Store struct {
	db     *gorm.DB
	rdb    *redis.Client
	locker *redislock.Client
	logger *logrus.Logger

	mu          sync.Mutex
	subscribers []func(InventoryChange)
}

func NewStore(db *gorm.DB, rdb *redis.Client, locker *redislock.Client, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		rdb:    rdb,
		locker: locker,
		logger: logger,
	}
}

// DB exposes the raw handle for migrations and maintenance commands only.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Subscribe registers a callback invoked after every committed inventory
// mutation. Callbacks run synchronously; keep them cheap.
func (s *Store) Subscribe(fn func(InventoryChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notifyInventoryChanged(change InventoryChange) {
	s.mu.Lock()
	subs := make([]func(InventoryChange), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

// itemLock serializes adjustments per inventory item when redis is available.
// It is best effort: correctness is guaranteed by the version CAS on
// inventory_items, the lock just avoids burning retries under contention.
func (s *Store) itemLock(ctx context.Context, itemId int, funcName string) (release func(), err error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("itemLock:%d", itemId)
	lock, err := s.locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(s.logger, "store.go", funcName, "could not obtain item lock", itemId, err)
		return nil, fmt.Errorf("%w: could not obtain inventory item lock", utils.ErrStorage)
	} else if err != nil {
		config.LogError(s.logger, "store.go", funcName, "error obtaining item lock", itemId, err)
		return nil, fmt.Errorf("%w: %v", utils.ErrStorage, err)
	}
	return func() { _ = lock.Release(ctx) }, nil
}

// actorName resolves the acting user's display name for audit rows.
func actorName(ctx context.Context) string {
	if name, ok := utils.GetUserNameFromContext(ctx); ok && name != "" {
		return name
	}
	if username, ok := utils.GetUsernameFromContext(ctx); ok && username != "" {
		return username
	}
	return "system"
}
