package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/domain"
)

type userIDKey struct{}
type roleKey struct{}

func ContextWithUser(ctx context.Context, id uuid.UUID, role domain.UserRole) context.Context {
	ctx = context.WithValue(ctx, userIDKey{}, id)
	return context.WithValue(ctx, roleKey{}, role)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

func RoleFromContext(ctx context.Context) (domain.UserRole, bool) {
	role, ok := ctx.Value(roleKey{}).(domain.UserRole)
	return role, ok
}
