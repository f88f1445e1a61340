package port

import (
	"context"

	"github.com/spotcore/exchange/internal/domain"
)

type Cache interface {
	SetDepth(ctx context.Context, symbol string, snap *domain.DepthSnapshot) error
	GetDepth(ctx context.Context, symbol string) (*domain.DepthSnapshot, error)
	Invalidate(ctx context.Context, symbol string) error
}
