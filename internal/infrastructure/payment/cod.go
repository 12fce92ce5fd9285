package payment

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"storefront-core/internal/domain"
)

// COD settles synchronously: nothing is collected until delivery.
type COD struct {
	now func() time.Time
	seq atomic.Uint32
}

func NewCOD(now func() time.Time) *COD {
	if now == nil {
		now = time.Now
	}
	return &COD{now: now}
}

func (c *COD) Method() domain.PaymentMethod {
	return domain.PaymentMethodCOD
}

// Initiate succeeds immediately with a local reference COD<unix-nano><seq>.
// The sequence suffix keeps references unique when the clock does not move.
func (c *COD) Initiate(_ context.Context, req domain.SettlementRequest) (*domain.Initiation, error) {
	ref := fmt.Sprintf("COD%d%03d", c.now().UnixNano(), c.seq.Add(1)%1000)
	return &domain.Initiation{
		Token:  req.Token,
		Result: &domain.SettlementResult{Succeeded: true, Reference: &ref},
	}, nil
}
