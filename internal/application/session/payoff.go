package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/alejandrodnm/legbook/internal/ports"
)

// PayoffSession fetches the payoff curve of the mirrored position and keeps
// the last good one. Safe for concurrent use.
type PayoffSession struct {
	provider ports.PayoffProvider
	journal  ports.SyncJournal
	metrics  ports.Metrics
	now      func() time.Time

	mu      sync.Mutex
	curve   domain.PayoffCurve
	seq     uint64 // last request issued
	applied uint64 // request that produced curve
	subs    []chan domain.PayoffCurve
	closed  bool
}

// NewPayoffSession wires a payoff session. journal and metrics may be nil.
func NewPayoffSession(provider ports.PayoffProvider, journal ports.SyncJournal, metrics ports.Metrics) *PayoffSession {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &PayoffSession{
		provider: provider,
		journal:  journal,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Refresh requests a new curve and publishes it. Transport errors and
// unexpected shapes are logged and the previous curve is kept. A response
// older than the curve already published is discarded. Returns whether a
// new curve was published.
func (p *PayoffSession) Refresh(ctx context.Context) bool {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	start := p.now()
	msg, err := p.provider.FetchPayoff(ctx)
	elapsed := p.now().Sub(start)
	if err != nil {
		p.metrics.PayoffRefresh(false, elapsed)
		slog.Warn("payoff refresh failed, keeping previous curve", "err", err)
		return false
	}

	curve, err := domain.NewPayoffCurve(msg, p.now())
	if err != nil {
		p.metrics.PayoffRefresh(false, elapsed)
		slog.Warn("unexpected payoff response, keeping previous curve",
			"type", msg.Type,
			"err", err,
		)
		return false
	}
	p.metrics.PayoffRefresh(true, elapsed)

	p.mu.Lock()
	if seq < p.applied {
		p.mu.Unlock()
		slog.Debug("stale payoff response discarded", "seq", seq, "applied", p.applied)
		return false
	}
	p.curve = curve
	p.applied = seq
	p.publish(curve)
	p.mu.Unlock()

	slog.Debug("payoff curve updated", "points", len(curve.Points))
	if p.journal != nil {
		if err := p.journal.RecordPayoff(context.WithoutCancel(ctx), curve); err != nil {
			slog.Warn("journal payoff failed", "err", err)
		}
	}
	return true
}

// publish must be called with mu held.
func (p *PayoffSession) publish(curve domain.PayoffCurve) {
	if p.closed {
		return
	}
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- curve:
		default:
		}
	}
}

// Curve returns the last published curve. Empty until the first success.
func (p *PayoffSession) Curve() domain.PayoffCurve {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curve
}

// Subscribe returns a channel holding only the newest curve.
func (p *PayoffSession) Subscribe() <-chan domain.PayoffCurve {
	ch := make(chan domain.PayoffCurve, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch
	}
	p.subs = append(p.subs, ch)
	return ch
}

// Close closes subscriber channels.
func (p *PayoffSession) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}
