package ports

import (
	"time"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// Metrics recibe los eventos observables del feed y de la sesión.
type Metrics interface {
	PriceUpdate(instruments int)
	SnapshotDropped()
	StreamError()
	RemoteCommand(cmd domain.CommandType, ok bool, d time.Duration)
	PayoffRefresh(ok bool, d time.Duration)
	Legs(total, degraded int)
}

// NopMetrics descarta todo. Es el valor por defecto cuando no hay métricas.
type NopMetrics struct{}

func (NopMetrics) PriceUpdate(int) {}
func (NopMetrics) SnapshotDropped() {}
func (NopMetrics) StreamError() {}
func (NopMetrics) RemoteCommand(domain.CommandType, bool, time.Duration) {}
func (NopMetrics) PayoffRefresh(bool, time.Duration) {}
func (NopMetrics) Legs(int, int) {}
