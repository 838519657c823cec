package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/timkado/api/waitlist-ops/internal/reqctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize_FallsBackToInfo(t *testing.T) {
	original := Log
	defer func() { Log = original }()

	require.NoError(t, Initialize("not-a-level", "json"))
	assert.True(t, Log.Core().Enabled(zap.InfoLevel))
	assert.False(t, Log.Core().Enabled(zap.DebugLevel))
}

func TestFromContext_AddsRequestFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = reqctx.WithRequestID(ctx, "req-1")
	ctx = reqctx.WithOperator(ctx, "ops")

	FromContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "ops", fields["operator"])
}

func TestFromContext_NilContextReturnsGlobal(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	assert.Same(t, Log, FromContext(nil))
}
