package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront-core/internal/domain"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"serialization failure", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, true},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, true},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, true},
		{"refused socket", errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), true},
		{"syntax error", &pgconn.PgError{Code: pgerrcode.SyntaxError}, false},
		{"check violation", &pgconn.PgError{Code: pgerrcode.CheckViolation}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.transient, errors.Is(err, domain.ErrPersistence), err)
			assert.Contains(t, err.Error(), "op")
		})
	}

	assert.NoError(t, classify("op", nil))

	cancelled := classify("op", fmt.Errorf("query: %w", context.Canceled))
	assert.ErrorIs(t, cancelled, context.Canceled)
	assert.NotErrorIs(t, cancelled, domain.ErrPersistence)

	notFound := classify("op", domain.ErrOrderNotFound)
	assert.Same(t, domain.ErrOrderNotFound, notFound)
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "coupons_code_key"})

	assert.True(t, isUniqueViolation(err, "coupons_code_key"))
	assert.True(t, isUniqueViolation(err, ""))
	assert.False(t, isUniqueViolation(err, "orders_tracking_id_key"))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, ""))
	assert.False(t, isUniqueViolation(nil, ""))
}

func TestParseOrderID(t *testing.T) {
	_, err := parseOrderID("RF-7K2M9QXD4T")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	id, err := parseOrderID(" 0b7e4c9a-3f52-4c1e-9d8a-1f0c2b3a4d5e ")
	assert.NoError(t, err)
	assert.Equal(t, "0b7e4c9a-3f52-4c1e-9d8a-1f0c2b3a4d5e", id.String())
}
