package osext

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyRunID ctxKey = iota
)

// NewRunID returns a new random run ID.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID saves the current run ID to the context.
func WithRunID(ctx context.Context, rID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, rID)
}

// GetRunID returns the current run ID from the context.
func GetRunID(ctx context.Context) string {
	rID, _ := ctx.Value(ctxKeyRunID).(string)
	return rID
}
