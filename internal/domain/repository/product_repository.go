package repository

import (
	"context"

	"campusmarket/internal/domain/entity"
)

// ProductRepository is the read-only contract against the product catalog.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
}
