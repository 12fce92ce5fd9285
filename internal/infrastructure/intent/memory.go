package intent

import (
	"context"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/cache"
	"storefront-core/pkg/utils"
)

// CacheStore keeps intents in the process cache. Intents do not survive a
// restart, which is acceptable for local runs only.
type CacheStore struct {
	cache    cache.CacheService
	ttl      time.Duration
	lockWait time.Duration
}

func NewCacheStore(c cache.CacheService, ttl time.Duration) *CacheStore {
	return &CacheStore{cache: c, ttl: ttl, lockWait: lockWait}
}

func (s *CacheStore) Save(_ context.Context, intent *domain.PaymentIntent) error {
	s.cache.Set(cache.Key("intent", intent.Token), clone(intent), s.ttl)
	return nil
}

func (s *CacheStore) Get(_ context.Context, token string) (*domain.PaymentIntent, error) {
	v, ok := s.cache.Get(cache.Key("intent", token))
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	intent, ok := v.(*domain.PaymentIntent)
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	return clone(intent), nil
}

func (s *CacheStore) Lock(ctx context.Context, token string) (func(), error) {
	key := cache.Key("intent-lock", token)
	owner := utils.GenerateUUID()
	err := acquire(ctx, token, s.lockWait, func() (bool, error) {
		return s.cache.Add(key, owner, lockTTL), nil
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if v, ok := s.cache.Get(key); ok && v == owner {
			s.cache.Delete(key)
		}
	}, nil
}

func clone(in *domain.PaymentIntent) *domain.PaymentIntent {
	out := *in
	out.Lines = append([]domain.CartLine(nil), in.Lines...)
	if in.Contact.UserID != nil {
		id := *in.Contact.UserID
		out.Contact.UserID = &id
	}
	return &out
}
