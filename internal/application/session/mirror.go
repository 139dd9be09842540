package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/alejandrodnm/legbook/internal/ports"
)

// maxConcurrentSends caps requests in flight against the pricing service.
const maxConcurrentSends = 8

// Mirror sends select/deselect commands for legs to the pricing service.
// Each command is a single attempt; failures come back in the outcome.
//
// Commands for the same remote key are sent in submission order, each one
// after the previous has completed: the service drops a key on any deselect,
// so a select overtaken by the deselect before it would be lost.
type Mirror struct {
	selector ports.ContractSelector
	keys     domain.LegKeyFormatter
	journal  ports.SyncJournal
	metrics  ports.Metrics
	now      func() time.Time

	lanes *lanes
	sends *semaphore.Weighted
}

// NewMirror wires a mirror. journal and metrics may be nil.
func NewMirror(selector ports.ContractSelector, keys domain.LegKeyFormatter, journal ports.SyncJournal, metrics ports.Metrics) *Mirror {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Mirror{
		selector: selector,
		keys:     keys,
		journal:  journal,
		metrics:  metrics,
		now:      time.Now,
		lanes:    newLanes(),
		sends:    semaphore.NewWeighted(maxConcurrentSends),
	}
}

// Key returns the remote key of a leg.
func (m *Mirror) Key(sel domain.Selection) string {
	return m.keys.FormatSelection(sel)
}

// Command builds the message for pos with the given action.
func (m *Mirror) Command(typ domain.CommandType, pos domain.LivePosition, action domain.Action) domain.SelectionCommand {
	return domain.SelectionCommand{
		Type:     typ,
		Symbol:   m.Key(pos.Selection),
		Position: action,
	}
}

// Submit queues cmd behind earlier commands for the same key and returns
// immediately. The channel receives the outcome once the command was sent.
func (m *Mirror) Submit(ctx context.Context, legID string, gen uint64, cmd domain.SelectionCommand) <-chan domain.SyncOutcome {
	done := make(chan domain.SyncOutcome, 1)
	m.lanes.submit(cmd.Symbol, func() {
		if err := m.sends.Acquire(ctx, 1); err != nil {
			out := domain.SyncOutcome{
				LegID:      legID,
				Generation: gen,
				Command:    cmd,
				Err:        fmt.Errorf("session.Submit: %s %s: %w", cmd.Type, cmd.Symbol, err),
				At:         m.now(),
			}
			m.metrics.RemoteCommand(cmd.Type, false, 0)
			m.record(ctx, out)
			done <- out
			return
		}
		defer m.sends.Release(1)
		done <- m.Send(ctx, legID, gen, cmd)
	})
	return done
}

// Send delivers cmd once and records the outcome in the journal and metrics.
func (m *Mirror) Send(ctx context.Context, legID string, gen uint64, cmd domain.SelectionCommand) domain.SyncOutcome {
	start := m.now()
	conf, err := m.selector.SendSelection(ctx, cmd)
	out := domain.SyncOutcome{
		LegID:      legID,
		Generation: gen,
		Command:    cmd,
		Duration:   m.now().Sub(start),
		At:         start,
	}
	if err != nil {
		out.Err = fmt.Errorf("session.Send: %s %s: %w", cmd.Type, cmd.Symbol, err)
		slog.Warn("remote command failed",
			"command", cmd.Type,
			"symbol", cmd.Symbol,
			"position", cmd.Position,
			"err", err,
		)
	} else {
		slog.Debug("remote command confirmed",
			"command", cmd.Type,
			"symbol", cmd.Symbol,
			"position", cmd.Position,
			"remote_selected", len(conf.SelectedContracts),
		)
	}

	m.metrics.RemoteCommand(cmd.Type, out.OK(), out.Duration)
	m.record(ctx, out)
	return out
}

// Batch is a set of submitted commands.
type Batch struct {
	pending []<-chan domain.SyncOutcome
}

// Wait blocks until every command of the batch has completed. Outcomes keep
// the submission order; err is the first failure, if any.
func (b *Batch) Wait() ([]domain.SyncOutcome, error) {
	outcomes := make([]domain.SyncOutcome, len(b.pending))
	var g errgroup.Group
	for i, ch := range b.pending {
		i, ch := i, ch
		g.Go(func() error {
			outcomes[i] = <-ch
			return outcomes[i].Err
		})
	}
	err := g.Wait()
	return outcomes, err
}

// ClearAll submits one deselect per position, each with its own action.
// Deselects for different legs run concurrently.
func (m *Mirror) ClearAll(ctx context.Context, positions []domain.LivePosition) *Batch {
	b := &Batch{pending: make([]<-chan domain.SyncOutcome, 0, len(positions))}
	for _, pos := range positions {
		cmd := m.Command(domain.CommandDeselect, pos, pos.Action)
		b.pending = append(b.pending, m.Submit(ctx, pos.ID, 0, cmd))
	}
	return b
}

// RemoteSelection returns the set the service believes is selected.
func (m *Mirror) RemoteSelection(ctx context.Context) (map[string]domain.Action, error) {
	remote, err := m.selector.SelectedContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("session.RemoteSelection: %w", err)
	}
	return remote, nil
}

func (m *Mirror) record(ctx context.Context, out domain.SyncOutcome) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordSync(context.WithoutCancel(ctx), domain.EventFromOutcome(out)); err != nil {
		slog.Warn("journal sync event failed", "symbol", out.Command.Symbol, "err", err)
	}
}
