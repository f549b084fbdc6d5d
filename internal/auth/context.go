package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxTenantID ctxKey = iota
	ctxUserID
	ctxRole
)

var ErrNoTenant = errors.New("tenant_id not in context")

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, ctxTenantID, id.TenantID)
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	return ctx
}

func TenantID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxTenantID).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoTenant
}

func UserID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxUserID).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func Role(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxRole).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}
