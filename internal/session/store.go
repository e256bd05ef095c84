package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/store"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "session:"

// Store 按本地令牌保存会话（BFF 使用）
type Store interface {
	Get(ctx context.Context, token string) (*domain.Session, error)
	Put(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, token string) error
}

// KVStore 基于 store.KV 的会话存储，值为 JSON
type KVStore struct {
	kv  store.KV
	ttl time.Duration
}

var _ Store = (*KVStore)(nil)

// NewKVStore ttl<=0 表示不过期
func NewKVStore(kv store.KV, ttl time.Duration) *KVStore {
	return &KVStore{kv: kv, ttl: ttl}
}

// NewMemoryStore 进程内会话存储
func NewMemoryStore(ttl time.Duration) *KVStore {
	return NewKVStore(store.NewMemoryKV(), ttl)
}

// NewRedisStore Redis 会话存储，多实例部署共享
func NewRedisStore(client *redis.Client, ttl time.Duration) *KVStore {
	return NewKVStore(store.NewRedisKV(client), ttl)
}

// Get 不存在或已过期返回 domain.ErrNotAuthenticated
func (s *KVStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrNotAuthenticated
	}
	raw, err := s.kv.Get(ctx, keyPrefix+token)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, domain.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *KVStore) Put(ctx context.Context, sess *domain.Session) error {
	if sess == nil || sess.Token == "" {
		return errors.New("session token is empty")
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.kv.Set(ctx, keyPrefix+sess.Token, string(b), s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.kv.Del(ctx, keyPrefix+token)
}
