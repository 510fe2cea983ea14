package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "relayguard:otp:"

	// recordSafetyTTL caps how long abandoned records linger in Redis.
	// Expiry itself is always checked lazily against the injected clock;
	// this is only hygiene for records nobody ever submits a code for.
	recordSafetyTTL = 24 * time.Hour
)

// RedisRecordStore keeps outstanding codes in Redis, one hash per principal
// with one field per application.
type RedisRecordStore struct {
	client *redis.Client
}

// NewRedisRecordStore builds a Redis-backed code store.
func NewRedisRecordStore(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

func recordStoreKey(principal string) string {
	return recordKeyPrefix + principal
}

// Put stores or overwrites the record for its (principal, application) key.
func (s *RedisRecordStore) Put(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode otp record: %w", err)
	}
	key := recordStoreKey(record.Principal)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, record.AppName, payload)
	pipe.Expire(ctx, key, recordSafetyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store otp record: %w", err)
	}
	return nil
}

// Get fetches the record or ErrNotFound.
func (s *RedisRecordStore) Get(ctx context.Context, principal, appName string) (Record, error) {
	payload, err := s.client.HGet(ctx, recordStoreKey(principal), appName).Result()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load otp record: %w", err)
	}
	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return Record{}, fmt.Errorf("decode otp record: %w", err)
	}
	return record, nil
}

// Delete removes the record if present.
func (s *RedisRecordStore) Delete(ctx context.Context, principal, appName string) error {
	if err := s.client.HDel(ctx, recordStoreKey(principal), appName).Err(); err != nil {
		return fmt.Errorf("delete otp record: %w", err)
	}
	return nil
}

// AnyForPrincipal reports whether any application has a code outstanding for
// the principal.
func (s *RedisRecordStore) AnyForPrincipal(ctx context.Context, principal string) (bool, error) {
	n, err := s.client.HLen(ctx, recordStoreKey(principal)).Result()
	if err != nil {
		return false, fmt.Errorf("count otp records: %w", err)
	}
	return n > 0, nil
}

// Count totals outstanding records across all principals.
func (s *RedisRecordStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, recordKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scan otp records: %w", err)
		}
		for _, key := range keys {
			n, err := s.client.HLen(ctx, key).Result()
			if err != nil {
				return 0, fmt.Errorf("count otp records: %w", err)
			}
			total += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return int(total), nil
}
