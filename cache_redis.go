package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmptyRedisAddress is returned when the Redis address is not configured
var ErrEmptyRedisAddress = errors.New("redis address is required")

const redisPingTimeout = 5 * time.Second

// addAndTrimScript adds ARGV[3..] with score ARGV[1] to the sorted set KEYS[1]
// and pops the lowest scores until at most ARGV[2] members remain.
var addAndTrimScript = redis.NewScript(`
local score = ARGV[1]
local capacity = tonumber(ARGV[2])
for i = 3, #ARGV do
	redis.call('ZADD', KEYS[1], score, ARGV[i])
end
local excess = redis.call('ZCARD', KEYS[1]) - capacity
if excess > 0 then
	redis.call('ZPOPMIN', KEYS[1], excess)
end
return redis.call('ZCARD', KEYS[1])
`)

// RedisStore is a CacheStore backed by Redis sorted sets scored by insert time
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	if address == "" {
		return nil, ErrEmptyRedisAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a store over an existing client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// AddAndTrim implements CacheStore. All entries of one call share a score;
// members carry their batch position so ties evict in batch order.
func (s *RedisStore) AddAndTrim(ctx context.Context, key string, entries []CacheEntry, capacity int) error {
	if len(entries) == 0 {
		return nil
	}

	args := make([]any, 0, len(entries)+2)
	args = append(args, entries[0].InsertedAt.UnixMicro(), capacity)
	for i, entry := range entries {
		member, err := encodeMember(i, entry.Article)
		if err != nil {
			return fmt.Errorf("encoding cache member: %w", err)
		}
		args = append(args, member)
	}

	if err := addAndTrimScript.Run(ctx, s.client, []string{key}, args...).Err(); err != nil {
		return fmt.Errorf("redis add and trim %s: %w", key, err)
	}
	return nil
}

// Range implements CacheStore
func (s *RedisStore) Range(ctx context.Context, key string) ([]CacheEntry, error) {
	members, err := s.client.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range %s: %w", key, err)
	}

	entries := make([]CacheEntry, 0, len(members))
	for _, z := range members {
		raw, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("redis range %s: unexpected member type %T", key, z.Member)
		}
		article, err := decodeMember(raw)
		if err != nil {
			return nil, fmt.Errorf("redis range %s: %w", key, err)
		}
		entries = append(entries, CacheEntry{
			Article:    article,
			InsertedAt: time.UnixMicro(int64(z.Score)),
		})
	}
	return entries, nil
}

// encodeMember makes every member unique so identical articles occupy separate slots
func encodeMember(position int, article Article) (string, error) {
	payload, err := json.Marshal(article)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d|%s|%s", position, uuid.NewString(), payload), nil
}

func decodeMember(member string) (Article, error) {
	parts := strings.SplitN(member, "|", 3)
	if len(parts) != 3 {
		return Article{}, fmt.Errorf("malformed cache member")
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return Article{}, fmt.Errorf("malformed cache member position: %w", err)
	}

	var article Article
	if err := json.Unmarshal([]byte(parts[2]), &article); err != nil {
		return Article{}, fmt.Errorf("decoding cache member: %w", err)
	}
	return article, nil
}
