package logging

import (
	"context"

	"github.com/google/uuid"
)

func NewRequestID() string {
	return uuid.New().String()
}

func GetRequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// MakeContextWithRequestID tags ctx with requestID, generating a fresh one
// when it is empty.
func MakeContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = NewRequestID()
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}
