package ports

import (
	"context"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// SyncJournal registra los comandos remotos y las curvas recibidas para auditoría.
// No se usa para restaurar posiciones.
type SyncJournal interface {
	RecordSync(ctx context.Context, ev domain.SyncEvent) error
	RecordPayoff(ctx context.Context, curve domain.PayoffCurve) error

	// RecentSyncEvents devuelve los últimos eventos, más recientes primero.
	RecentSyncEvents(ctx context.Context, limit int) ([]domain.SyncEvent, error)

	Close() error
}
