package ports

import (
	"context"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// Notifier presenta el estado de la sesión al usuario.
type Notifier interface {
	NotifyPositions(ctx context.Context, legs []domain.LegStatus) error
	NotifyPayoff(ctx context.Context, curve domain.PayoffCurve) error
	NotifyChain(ctx context.Context, chain domain.ChainSnapshot) error
	NotifyDivergences(ctx context.Context, divs []domain.Divergence) error
}
