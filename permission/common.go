package permission

import (
	"context"

	"github.com/ts4z/tote/pool"
)

func requireUserAdminReturning[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	u := UserFromContext(ctx)
	if u == nil || !u.IsAdmin {
		return zero, pool.ErrPermissionDenied
	}
	return fn()
}

func requireOperatorReturning[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	u := UserFromContext(ctx)
	if u == nil || !u.IsOperator {
		return zero, pool.ErrPermissionDenied
	}
	return fn()
}

func requireUserAdmin(ctx context.Context, fn func() error) error {
	_, err := requireUserAdminReturning(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func requireOperator(ctx context.Context, fn func() error) error {
	_, err := requireOperatorReturning(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
