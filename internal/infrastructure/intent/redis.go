package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/utils"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "storefront:intent:"
	lockPrefix = "storefront:intent-lock:"
)

// unlockScript deletes the lock only while it still holds the caller's owner id.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps payment intents in Redis as JSON under a TTL. A session
// that never calls back simply expires.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	lockWait time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, lockWait: lockWait}
}

// NewRedisClient connects to addr and pings it once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) Save(ctx context.Context, intent *domain.PaymentIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal payment intent: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+intent.Token, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store payment intent %s: %w", intent.Token, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*domain.PaymentIntent, error) {
	data, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load payment intent %s: %v", domain.ErrPersistence, token, err)
	}

	var intent domain.PaymentIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent %s: %w", token, err)
	}
	return &intent, nil
}

// Lock takes a SETNX lock on the token so that callbacks settling the same
// session across instances run one at a time.
func (s *RedisStore) Lock(ctx context.Context, token string) (func(), error) {
	key := lockPrefix + token
	owner := utils.GenerateUUID()
	err := acquire(ctx, token, s.lockWait, func() (bool, error) {
		ok, err := s.client.SetNX(ctx, key, owner, lockTTL).Result()
		if err != nil {
			return false, fmt.Errorf("%w: lock payment intent %s: %v", domain.ErrPersistence, token, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return func() {
		// The request context may already be cancelled; release regardless.
		if err := unlockScript.Run(context.Background(), s.client, []string{key}, owner).Err(); err != nil {
			logger.WithContext(ctx).Warn().Err(err).Str("token", token).Msg("failed to release payment intent lock")
		}
	}, nil
}
