package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go-marketplace-backend/internal/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	flowKeyPrefix = "signup:flow:"
	lockKeyPrefix = "signup:lock:"
	// flowIndexKey is a sorted set of flow ids scored by expiry, used by
	// PurgeExpired.
	flowIndexKey = "signup:flows"
)

// unlockScript deletes the lock only if this holder still owns it.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

type redisRepository struct {
	client *goredis.Client
	unlock *goredis.Script
}

func NewRedisRepository(client *goredis.Client) domain.SignupFlowRepository {
	return &redisRepository{client: client, unlock: goredis.NewScript(unlockScript)}
}

func (r *redisRepository) Save(ctx context.Context, flow *domain.SignupFlow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	ttl := time.Until(flow.ExpiresAt)
	if ttl <= 0 {
		return domain.ErrFlowExpired
	}

	_, err = r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, flowKeyPrefix+flow.ID, data, ttl)
		p.ZAdd(ctx, flowIndexKey, goredis.Z{Score: float64(flow.ExpiresAt.Unix()), Member: flow.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("flowstore: save: %w", err)
	}
	return nil
}

func (r *redisRepository) Get(ctx context.Context, id string) (*domain.SignupFlow, error) {
	data, err := r.client.Get(ctx, flowKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flowstore: get: %w", err)
	}
	var flow domain.SignupFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("flowstore: decode: %w", err)
	}
	return &flow, nil
}

func (r *redisRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, flowKeyPrefix+id)
		p.ZRem(ctx, flowIndexKey, id)
		return nil
	})
	return err
}

// Lock takes a SET NX lock owned by a random token.
func (r *redisRepository) Lock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	key := lockKeyPrefix + id
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("flowstore: lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrFlowBusy
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.unlock.Run(ctx, r.client, []string{key}, token).Err()
	}, nil
}

// PurgeExpired drops index entries whose flows expired. The flow keys
// themselves expire through their TTL.
func (r *redisRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	upper := strconv.FormatInt(now.Unix(), 10)
	ids, err := r.client.ZRangeByScore(ctx, flowIndexKey, &goredis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, fmt.Errorf("flowstore: purge: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = flowKeyPrefix + id
		members[i] = id
	}
	_, err = r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRem(ctx, flowIndexKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("flowstore: purge: %w", err)
	}
	return len(ids), nil
}
