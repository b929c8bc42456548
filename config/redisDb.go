package config

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds the redis client and the distributed-lock client.
// Redis is an optimization layer (settings cache, best-effort locks); callers
// must tolerate nil clients when REDIS_ADDRESS is unset or unreachable.
func ConnectRedis() (*redis.Client, *redislock.Client) {
	address := os.Getenv("REDIS_ADDRESS")
	if address == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis cache/locks")
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis ping failed (%v); running without redis cache/locks", err)
		return nil, nil
	}
	return rdb, redislock.New(rdb)
}

func GetRedisObject(rdb *redis.Client, key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(context.Background(), key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), &dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(rdb *redis.Client, key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(context.Background(), key, objInByte, exp).Err()
}

func RemoveRedisKey(rdb *redis.Client, keys ...string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(context.Background(), keys...).Err()
}
