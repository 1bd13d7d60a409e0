package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"registrar/internal/registration"
)

// RedisStore keeps each registration as a JSON document and indexes ids in
// a sorted set scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to redis with short timeouts.
func NewRedisStore(addr, password string, db int, prefix string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return newRedisStore(client, prefix)
}

func newRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "registrations"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) docKey(id string) string { return s.prefix + ":doc:" + id }
func (s *RedisStore) indexKey() string        { return s.prefix + ":by_created" }

// Init has nothing to provision: keys are created on first insert.
func (s *RedisStore) Init(ctx context.Context) error {
	return s.Ping(ctx)
}

// Reset deletes every document and the index.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.docKey("*"), 200).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan documents: %w", err)
	}
	return s.client.Del(ctx, s.indexKey()).Err()
}

// Insert stores the document and its index entry in one MULTI/EXEC.
func (s *RedisStore) Insert(ctx context.Context, r registration.Registration) (registration.Registration, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = s.now().UTC().Truncate(time.Microsecond)

	doc, err := json.Marshal(r)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("encode registration: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.docKey(r.ID), doc, 0)
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(r.CreatedAt.UnixMicro()), Member: r.ID})
		return nil
	})
	if err != nil {
		return registration.Registration{}, err
	}
	return r, nil
}

// ListAll returns every registration, newest first.
func (s *RedisStore) ListAll(ctx context.Context) ([]registration.Registration, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]registration.Registration, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r registration.Registration
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		res = append(res, r)
	}
	return res, nil
}

// Ping verifies redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
