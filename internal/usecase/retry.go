package usecase

import (
	"context"
	"fmt"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
)

// Three attempts in total. Only idempotent writes go through here.
var persistenceRetryDelays = []time.Duration{500 * time.Millisecond, 2 * time.Second}

func withPersistenceRetry(ctx context.Context, delays []time.Duration, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || domain.KindOf(err) != domain.KindPersistence {
			return err
		}
		if attempt >= len(delays) {
			break
		}

		logger.WithContext(ctx).Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Msg("transient persistence failure, retrying")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delays[attempt]):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, len(delays)+1, err)
}
