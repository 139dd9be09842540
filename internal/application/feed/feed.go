package feed

// feed.go — MarketFeed: última foto de la cadena de opciones.
//
// Cada mensaje "prices" produce una ChainSnapshot nueva que reemplaza a la
// anterior. Los suscriptores reciben por un canal de capacidad 1 que se
// conflaciona: si el consumidor va lento se descarta la foto vieja y se deja
// la más reciente, nunca se bloquea al stream.

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/alejandrodnm/legbook/internal/ports"
)

const updateBuffer = 16

// Feed mantiene la última foto del mercado y la publica a sus suscriptores.
type Feed struct {
	mu       sync.RWMutex
	snapshot domain.ChainSnapshot
	symbol   string
	subs     []chan domain.ChainSnapshot
	closed   bool
	metrics  ports.Metrics
}

// New crea un Feed vacío. metrics puede ser nil.
func New(metrics ports.Metrics) *Feed {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Feed{metrics: metrics}
}

// Subscribe devuelve un canal que recibe cada foto nueva. Si ya hay una foto
// la entrega de inmediato. El canal se cierra con Close.
func (f *Feed) Subscribe() <-chan domain.ChainSnapshot {
	ch := make(chan domain.ChainSnapshot, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	if !f.snapshot.IsEmpty() {
		ch <- f.snapshot
	}
	f.subs = append(f.subs, ch)
	return ch
}

// Apply construye la foto a partir de una actualización y la publica.
func (f *Feed) Apply(u domain.PriceUpdate) domain.ChainSnapshot {
	snap := domain.BuildChain(u.Instruments, u.ReceivedAt)
	f.metrics.PriceUpdate(len(u.Instruments))

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return snap
	}

	f.snapshot = snap
	if sym := snap.CurrentSymbol(); sym != "" && sym != f.symbol {
		slog.Info("current underlying symbol", "symbol", sym)
		f.symbol = sym
	}

	for _, ch := range f.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Canal lleno: descartar la foto vieja y dejar la nueva.
		select {
		case <-ch:
			f.metrics.SnapshotDropped()
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}

	slog.Debug("chain snapshot applied",
		"rows", len(snap.Rows),
		"futures", snap.CurrentSymbol(),
	)
	return snap
}

// Snapshot devuelve la última foto publicada.
func (f *Feed) Snapshot() domain.ChainSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot
}

// CurrentSymbol devuelve el símbolo del primer perpetuo visto. Se mantiene
// aunque un tick posterior no traiga futuro.
func (f *Feed) CurrentSymbol() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.symbol
}

// Run consume el stream hasta que se cierra o el contexto se cancela.
// Un error de transporte se loguea y se devuelve; la última foto sigue visible.
// Un cierre limpio deja la foto congelada y devuelve nil. No hay reconexión.
func (f *Feed) Run(ctx context.Context, stream ports.PriceStream) error {
	updates := make(chan domain.PriceUpdate, updateBuffer)
	errCh := make(chan error, 1)

	go func() {
		errCh <- stream.Stream(ctx, updates)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			f.Apply(u)
		case err := <-errCh:
			f.drain(updates)
			if err != nil {
				f.metrics.StreamError()
				slog.Error("market stream failed, keeping last snapshot", "err", err)
				return err
			}
			if ctx.Err() == nil {
				slog.Warn("market stream closed, snapshot frozen",
					"rows", len(f.Snapshot().Rows),
				)
			}
			return nil
		}
	}
}

// drain aplica lo que quedó en el buffer después de que el stream terminó.
func (f *Feed) drain(updates <-chan domain.PriceUpdate) {
	for {
		select {
		case u := <-updates:
			f.Apply(u)
		default:
			return
		}
	}
}

// Close cierra los canales de los suscriptores. La última foto sigue consultable.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
