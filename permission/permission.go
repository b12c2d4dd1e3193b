package permission

import (
	"context"

	"github.com/ts4z/tote/model"
)

type contextKeyType struct{}

var contextKeyTypeValue = contextKeyType{}

func IsAdmin(context context.Context) bool {
	u := UserFromContext(context)
	if u == nil {
		return false
	}
	return u.IsAdmin
}

func IsOperator(context context.Context) bool {
	u := UserFromContext(context)
	if u == nil {
		return false
	}
	return u.IsOperator
}

func UserIdentityInContext(ctx context.Context, a *model.UserIdentity) context.Context {
	return context.WithValue(ctx, contextKeyType{}, a)
}

func UserFromContext(ctx context.Context) *model.UserIdentity {
	v := ctx.Value(contextKeyTypeValue)
	if a, ok := v.(*model.UserIdentity); ok {
		return a
	} else {
		return nil
	}
}
