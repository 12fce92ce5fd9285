package intent

import (
	"context"
	"time"

	"storefront-core/internal/domain"
)

const (
	lockTTL  = 30 * time.Second
	lockWait = 5 * time.Second
	lockPoll = 50 * time.Millisecond
)

// acquire polls try until it takes the lock, the wait elapses or ctx ends.
// The TTL on the lock key releases it if the holder dies.
func acquire(ctx context.Context, token string, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return domain.ErrSettlementBusy.WithMessage("payment session %s is being settled", token)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}
