package reqctx

import (
	"context"
	"errors"
)

// Key for request scoped values in context
type contextKey string

const (
	requestIDKey contextKey = "requestID"
	operatorKey  contextKey = "operator"
)

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// ErrNoOperatorInContext is returned when no authenticated operator is found in context
var ErrNoOperatorInContext = errors.New("no operator found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}

// WithOperator records the authenticated ops user on the context.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}

// OperatorFromContext extracts the ops user set by the basic-auth gate.
func OperatorFromContext(ctx context.Context) (string, error) {
	operator, ok := ctx.Value(operatorKey).(string)
	if !ok || operator == "" {
		return "", ErrNoOperatorInContext
	}
	return operator, nil
}
