package repository

import (
	"context"

	"campusmarket/internal/domain/entity"
)

// UserRepository is the read-only contract against the identity provider's
// profile store.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}
