// Package idempotency 记录带 Idempotency-Key 的请求结果，重复请求直接回放
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatePending = "PENDING"
	StateDone    = "DONE"
)

// Record 已保存的请求结果；State 为 PENDING 时请求仍在处理中
type Record struct {
	State      string `json:"state"`
	StatusCode int    `json:"statusCode,omitempty"`
	Body       []byte `json:"body,omitempty"`
}

type Store interface {
	// Reserve 占用 key。返回 reserved=false 时 existing 为已有记录
	Reserve(ctx context.Context, key string, ttl time.Duration) (existing *Record, reserved bool, err error)
	Complete(ctx context.Context, key string, statusCode int, body []byte, ttl time.Duration) error
	// Release 请求失败时释放，允许客户端用同一个 key 重试
	Release(ctx context.Context, key string) error
}

// Key 按用户隔离
func Key(userID int64, key string) string {
	return fmt.Sprintf("billsplit:idem:%d:%s", userID, key)
}

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (*Record, bool, error) {
	pending, _ := json.Marshal(Record{State: StatePending})
	ok, err := s.client.SetNX(ctx, key, pending, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// 在 SETNX 和 GET 之间过期，按处理中对待，由客户端重试
			return &Record{State: StatePending}, false, nil
		}
		return nil, false, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("解析幂等记录失败: %w", err)
	}
	return &rec, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, statusCode int, body []byte, ttl time.Duration) error {
	data, err := json.Marshal(Record{State: StateDone, StatusCode: statusCode, Body: body})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// MemoryStore 单进程使用，测试和未配置 Redis 时的替代
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	if e, ok := s.records[key]; ok {
		rec := e.record
		return &rec, false, nil
	}
	s.records[key] = memoryEntry{record: Record{State: StatePending}, expiresAt: now.Add(ttl)}
	return nil, true, nil
}

// sweep 删除已过期的记录，调用方持有 mu
func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.records {
		if !now.Before(e.expiresAt) {
			delete(s.records, k)
		}
	}
}

// Len 当前保存的记录数
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) Complete(_ context.Context, key string, statusCode int, body []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = memoryEntry{
		record:    Record{State: StateDone, StatusCode: statusCode, Body: append([]byte(nil), body...)},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}
