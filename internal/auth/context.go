package auth

import (
	"context"
	"errors"
	"time"
)

// ErrNoOperator means the request never passed RequireAccessToken.
var ErrNoOperator = errors.New("auth: no operator in context")

// Operator is the verified caller of the operator API. Role is whatever the
// operator-key exchange granted and a refresh carried forward.
type Operator struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenID   string    `json:"token_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OperatorFromClaims reads an Operator off verified access-token claims.
func OperatorFromClaims(c Claims) Operator {
	op := Operator{UserID: c.UserID, Role: c.Role, TokenID: c.ID}
	if c.ExpiresAt != nil {
		op.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return op
}

type ctxKey struct{}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, ctxKey{}, op)
}

func OperatorFrom(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(ctxKey{}).(Operator)
	return op, ok && op.UserID != ""
}

func UserID(ctx context.Context) (string, error) {
	op, ok := OperatorFrom(ctx)
	if !ok {
		return "", ErrNoOperator
	}
	return op.UserID, nil
}

func Role(ctx context.Context) (string, error) {
	op, ok := OperatorFrom(ctx)
	if !ok || op.Role == "" {
		return "", errors.New("auth: role not in context")
	}
	return op.Role, nil
}
