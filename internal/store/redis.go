package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/go-redis/redis/v8"
)

const (
	defaultRedisPrefix = "gorules:"
	maxTxRetries       = 5
)

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key; defaults to "gorules:".
	Prefix string
}

// RedisStore keeps each rule as one JSON value, so the rule string and AST
// are always written together, plus a list of ids in insertion order.
// Multi-key writes run in MULTI/EXEC guarded by WATCH.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return newRedisStoreWithClient(client, opts.Prefix), nil
}

func newRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *RedisStore) ruleKey(id string) string { return r.prefix + "rule:" + id }
func (r *RedisStore) orderKey() string         { return r.prefix + "rules" }

// Create stores the rule and appends its id to the order list atomically.
func (r *RedisStore) Create(ctx context.Context, rule Rule) (*Rule, error) {
	if err := validateForWrite(rule); err != nil {
		return nil, err
	}
	now := r.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	data, err := rules.EncodeJSON(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule: %w", err)
	}

	key := r.ruleKey(rule.ID)
	err = r.withRetry(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateID
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.RPush(ctx, r.orderKey(), rule.ID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Get retrieves a single rule by id.
func (r *RedisStore) Get(ctx context.Context, id string) (*Rule, error) {
	data, err := r.client.Get(ctx, r.ruleKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return decodeRedisRule(id, data)
}

// List reads the id list and fetches every rule in one pipeline.
// Ids whose value vanished between the two reads are skipped.
func (r *RedisStore) List(ctx context.Context) ([]Rule, error) {
	ids, err := r.client.LRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	result := make([]Rule, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Get(ctx, r.ruleKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rule, err := decodeRedisRule(ids[i], data)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, nil
}

// Update replaces the stored value under WATCH so a concurrent delete or
// update of the same id forces a retry.
func (r *RedisStore) Update(ctx context.Context, rule Rule) (*Rule, error) {
	if err := validateForWrite(rule); err != nil {
		return nil, err
	}
	key := r.ruleKey(rule.ID)

	var updated *Rule
	err := r.withRetry(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrRuleNotFound
			}
			return err
		}
		existing, err := decodeRedisRule(rule.ID, data)
		if err != nil {
			return err
		}
		next := Rule{
			ID:         existing.ID,
			RuleString: rule.RuleString,
			AST:        rule.AST,
			CreatedAt:  existing.CreatedAt,
			UpdatedAt:  r.now(),
		}
		encoded, err := rules.EncodeJSON(next)
		if err != nil {
			return fmt.Errorf("failed to encode rule: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err == nil {
			updated = &next
		}
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the rule value and its id from the order list.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	key := r.ruleKey(id)
	return r.withRetry(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRuleNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.LRem(ctx, r.orderKey(), 1, id)
			return nil
		})
		return err
	}, key)
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// withRetry runs fn under WATCH on keys, retrying when another client
// modified a watched key before EXEC.
func (r *RedisStore) withRetry(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %v failed after %d attempts", keys, maxTxRetries)
}

func decodeRedisRule(id string, data []byte) (*Rule, error) {
	var rule Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("rule %s: stored value is invalid: %w", id, err)
	}
	return &rule, nil
}
