package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")

	id, err := FromRequestIDContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "req-123", id)

	_, err = FromRequestIDContext(context.Background())
	assert.ErrorIs(t, err, ErrNoRequestIDInContext)

	_, err = FromRequestIDContext(WithRequestID(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNoRequestIDInContext)
}

func TestOperatorRoundTrip(t *testing.T) {
	ctx := WithOperator(context.Background(), "ops-alice")

	op, err := OperatorFromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "ops-alice", op)

	_, err = OperatorFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoOperatorInContext)
}
