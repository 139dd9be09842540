package session

// session.go — the loop that owns the position set.
//
// Every local mutation runs on the Run goroutine: the store, the latest chain
// snapshot and the per-leg sync table have a single writer. Remote commands
// run on their own goroutines and post their outcome back to the loop, so a
// slow pricing service never blocks a mutation.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/alejandrodnm/legbook/internal/ports"
)

// ErrStopped is returned by operations once Run has returned.
var ErrStopped = errors.New("session stopped")

// Config holds the values used when the chain does not provide them.
type Config struct {
	Underlying string // used when an instrument symbol has no underlying field
	Expiry     string // YYYY-MM-DD, used when an instrument symbol has no expiry
}

// legSync tracks the remote commands issued for the current intent of a leg.
// gen increases on every intent change; outcomes for an older gen are ignored.
type legSync struct {
	gen     uint64
	pending int
	failed  bool
	lastErr string
}

func (l *legSync) state() domain.SyncState {
	switch {
	case l.failed:
		return domain.SyncDegraded
	case l.pending > 0:
		return domain.SyncPending
	}
	return domain.SyncOK
}

// Session serialises position changes and keeps the remote mirror and the
// payoff curve following them.
type Session struct {
	cfg      Config
	mirror   *Mirror
	payoff   *PayoffSession
	scenario ports.ScenarioManager
	metrics  ports.Metrics

	cmds     chan func()
	outcomes chan domain.SyncOutcome
	done     chan struct{}
	inflight sync.WaitGroup

	// Owned by the Run goroutine.
	runCtx context.Context
	store  *Store
	chain  domain.ChainSnapshot
	legs   map[string]*legSync
}

// New builds a session. scenario and metrics may be nil.
func New(cfg Config, mirror *Mirror, payoff *PayoffSession, scenario ports.ScenarioManager, metrics ports.Metrics) *Session {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Session{
		cfg:      cfg,
		mirror:   mirror,
		payoff:   payoff,
		scenario: scenario,
		metrics:  metrics,
		cmds:     make(chan func()),
		outcomes: make(chan domain.SyncOutcome, 64),
		done:     make(chan struct{}),
		store:    NewStore(),
		legs:     make(map[string]*legSync),
	}
}

// Run processes chain snapshots, operations and remote outcomes until ctx is
// cancelled. It waits for in-flight remote calls before returning. Run must
// be called once; operations block until it starts.
func (s *Session) Run(ctx context.Context, snapshots <-chan domain.ChainSnapshot) error {
	s.runCtx = ctx
	defer close(s.done)

	slog.Info("session started")
	for {
		select {
		case <-ctx.Done():
			s.inflight.Wait()
			slog.Info("session stopped", "legs", s.store.Len())
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			s.chain = snap
		case fn := <-s.cmds:
			fn()
		case out := <-s.outcomes:
			s.handleOutcome(out)
		}
	}
}

// exec runs fn on the loop goroutine and waits for it.
func (s *Session) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Add creates a buy leg for req unless a leg with the same (kind, strike,
// underlying) exists, in which case the existing leg is returned and nothing
// is sent.
func (s *Session) Add(ctx context.Context, req domain.LegRequest) (domain.Selection, error) {
	if err := req.Validate(); err != nil {
		return domain.Selection{}, fmt.Errorf("session.Add: %w", err)
	}
	var sel domain.Selection
	err := s.exec(ctx, func() { sel = s.add(req) })
	return sel, err
}

// AddFromChain adds the leg for (kind, strike) taking symbol, underlying and
// expiry from the current chain. Returns domain.ErrUnknownStrike when that
// side of the strike is not quoted.
func (s *Session) AddFromChain(ctx context.Context, kind domain.LegKind, strike int64) (domain.Selection, error) {
	var (
		sel    domain.Selection
		addErr error
	)
	err := s.exec(ctx, func() {
		inst := s.chain.Quote(kind, strike)
		if inst == nil {
			addErr = fmt.Errorf("session.AddFromChain: %s %d: %w", kind, strike, domain.ErrUnknownStrike)
			return
		}
		req := s.requestFor(kind, inst)
		if err := req.Validate(); err != nil {
			addErr = fmt.Errorf("session.AddFromChain: %w", err)
			return
		}
		sel = s.add(req)
	})
	if err != nil {
		return domain.Selection{}, err
	}
	return sel, addErr
}

func (s *Session) requestFor(kind domain.LegKind, inst *domain.Instrument) domain.LegRequest {
	req := domain.LegRequest{
		Kind:       kind,
		Strike:     inst.Strike,
		Symbol:     inst.Symbol,
		Underlying: s.cfg.Underlying,
		Expiry:     inst.ExpiryString(),
	}
	if strings.Contains(inst.Symbol, "-") {
		req.Underlying = domain.UnderlyingFromSymbol(inst.Symbol)
	} else if req.Underlying == "" {
		req.Underlying = domain.UnderlyingFromSymbol(s.chain.CurrentSymbol())
	}
	if req.Expiry == "" {
		req.Expiry = s.cfg.Expiry
	}
	return req
}

func (s *Session) add(req domain.LegRequest) domain.Selection {
	sel, added := s.store.Add(req)
	if !added {
		slog.Debug("leg already selected", "key", req.Key().String(), "id", sel.ID)
		return sel
	}

	ls := &legSync{gen: 1}
	s.legs[sel.ID] = ls
	pos := joinOne(sel, s.chain)
	slog.Info("leg added",
		"id", sel.ID,
		"key", s.mirror.Key(sel),
		"action", sel.Action,
	)
	s.dispatch(ls, sel.ID, s.mirror.Command(domain.CommandSelect, pos, sel.Action))
	s.reportLegs()
	return sel
}

// UpdateAction changes the action of leg id. An unknown id or an unchanged
// action does nothing. A change queues deselect(old) then select(new); the
// mirror sends the select once the deselect has completed.
func (s *Session) UpdateAction(ctx context.Context, id string, action domain.Action) error {
	if _, err := domain.ParseAction(string(action)); err != nil {
		return fmt.Errorf("session.UpdateAction: %w", err)
	}
	return s.exec(ctx, func() {
		prev, changed, ok := s.store.UpdateAction(id, action)
		if !ok || !changed {
			return
		}
		sel, _ := s.store.Get(id)
		pos := joinOne(sel, s.chain)

		ls := s.legs[id]
		ls.gen++
		ls.pending = 0
		ls.failed = false
		ls.lastErr = ""

		slog.Info("leg action changed",
			"id", id,
			"key", s.mirror.Key(sel),
			"from", prev,
			"to", action,
		)
		s.dispatch(ls, id, s.mirror.Command(domain.CommandDeselect, pos, prev))
		s.dispatch(ls, id, s.mirror.Command(domain.CommandSelect, pos, action))
		s.reportLegs()
	})
}

// Remove deselects leg id with its current action and drops it. Unknown ids
// are ignored.
func (s *Session) Remove(ctx context.Context, id string) error {
	return s.exec(ctx, func() {
		sel, ok := s.store.Get(id)
		if !ok {
			return
		}
		pos := joinOne(sel, s.chain)
		cmd := s.mirror.Command(domain.CommandDeselect, pos, sel.Action)

		s.store.Remove(id)
		delete(s.legs, id)

		slog.Info("leg removed", "id", id, "key", cmd.Symbol)
		// The leg no longer has a sync entry; the outcome only refreshes the payoff.
		s.dispatch(&legSync{}, id, cmd)
		s.reportLegs()
	})
}

// ClearAll drops every leg locally and deselects them all. The deselects are
// queued before ClearAll returns and run concurrently across legs. The
// payoff is refreshed once after every deselect has completed, whatever the
// result. Returns how many legs were cleared.
func (s *Session) ClearAll(ctx context.Context) (int, error) {
	var n int
	err := s.exec(ctx, func() {
		positions := Join(s.store.Clear(), s.chain)
		clear(s.legs)
		s.reportLegs()
		n = len(positions)
		if n == 0 {
			return
		}

		slog.Info("clearing all legs", "legs", n)
		runCtx := s.runCtx
		batch := s.mirror.ClearAll(runCtx, positions)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			outcomes, err := batch.Wait()
			if err != nil {
				failed := 0
				for _, out := range outcomes {
					if !out.OK() {
						failed++
					}
				}
				slog.Warn("clear finished with failed deselects, remote mirror may diverge",
					"legs", n,
					"failed", failed,
					"err", err,
				)
			}
			s.payoff.Refresh(runCtx)
		}()
	})
	return n, err
}

// dispatch queues cmd on the mirror in program order and posts the outcome
// to the loop when it completes. It does not wait for the send.
func (s *Session) dispatch(ls *legSync, legID string, cmd domain.SelectionCommand) {
	ls.pending++
	runCtx := s.runCtx
	done := s.mirror.Submit(runCtx, legID, ls.gen, cmd)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		out := <-done
		select {
		case s.outcomes <- out:
		case <-runCtx.Done():
		}
	}()
}

func (s *Session) handleOutcome(out domain.SyncOutcome) {
	if out.OK() {
		s.refreshAsync()
	}

	ls, ok := s.legs[out.LegID]
	if !ok {
		if !out.OK() && out.Command.Type == domain.CommandDeselect {
			slog.Warn("deselect failed for removed leg, remote mirror may still hold it",
				"symbol", out.Command.Symbol,
				"position", out.Command.Position,
			)
		}
		return
	}
	if out.Generation != ls.gen {
		slog.Debug("superseded outcome ignored",
			"id", out.LegID,
			"gen", out.Generation,
			"current", ls.gen,
		)
		return
	}

	ls.pending--
	if !out.OK() {
		ls.failed = true
		ls.lastErr = out.Err.Error()
		slog.Warn("leg degraded", "id", out.LegID, "symbol", out.Command.Symbol)
	}
	s.reportLegs()
}

func (s *Session) refreshAsync() {
	runCtx := s.runCtx
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.payoff.Refresh(runCtx)
	}()
}

func (s *Session) reportLegs() {
	degraded := 0
	for _, ls := range s.legs {
		if ls.failed {
			degraded++
		}
	}
	s.metrics.Legs(s.store.Len(), degraded)
}

// Positions returns every leg with its live quote, remote key and sync state.
func (s *Session) Positions(ctx context.Context) ([]domain.LegStatus, error) {
	var out []domain.LegStatus
	err := s.exec(ctx, func() {
		positions := Join(s.store.List(), s.chain)
		out = make([]domain.LegStatus, len(positions))
		for i, pos := range positions {
			st := domain.LegStatus{
				LivePosition: pos,
				RemoteKey:    s.mirror.Key(pos.Selection),
				Sync:         domain.SyncOK,
			}
			if ls, ok := s.legs[pos.ID]; ok {
				st.Sync = ls.state()
				st.LastError = ls.lastErr
			}
			out[i] = st
		}
	})
	return out, err
}

// Chain returns the snapshot the session is joining against.
func (s *Session) Chain(ctx context.Context) (domain.ChainSnapshot, error) {
	var chain domain.ChainSnapshot
	err := s.exec(ctx, func() { chain = s.chain })
	return chain, err
}

// Reconcile compares the locally expected remote set with what the service
// reports. Divergences are logged and returned; nothing is repaired.
func (s *Session) Reconcile(ctx context.Context) ([]domain.Divergence, error) {
	expected := make(map[string]domain.Action)
	err := s.exec(ctx, func() {
		for _, sel := range s.store.List() {
			expected[s.mirror.Key(sel)] = sel.Action
		}
	})
	if err != nil {
		return nil, err
	}

	remote, err := s.mirror.RemoteSelection(ctx)
	if err != nil {
		return nil, fmt.Errorf("session.Reconcile: %w", err)
	}

	divs := domain.Diff(expected, remote)
	for _, d := range divs {
		slog.Warn("remote mirror divergence",
			"symbol", d.Symbol,
			"kind", d.Kind,
			"expected", d.Expected,
			"remote", d.Remote,
		)
	}
	if len(divs) == 0 {
		slog.Info("remote mirror in sync", "legs", len(expected))
	}
	return divs, nil
}

// RefreshPayoff requests a new curve now. Returns whether it was published.
func (s *Session) RefreshPayoff(ctx context.Context) bool {
	return s.payoff.Refresh(ctx)
}

// Curve returns the last published payoff curve.
func (s *Session) Curve() domain.PayoffCurve {
	return s.payoff.Curve()
}

// SetLotSize updates the lot size on the pricing service and refreshes the
// payoff on success.
func (s *Session) SetLotSize(ctx context.Context, size float64) error {
	if s.scenario == nil {
		return errors.New("session.SetLotSize: no scenario manager")
	}
	if err := s.scenario.UpdateLotSize(ctx, size); err != nil {
		slog.Warn("lot size update failed", "lot_size", size, "err", err)
		return fmt.Errorf("session.SetLotSize: %w", err)
	}
	slog.Info("lot size updated", "lot_size", size)
	s.payoff.Refresh(ctx)
	return nil
}

// ClearScenario clears the simulated scenario and refreshes the payoff on success.
func (s *Session) ClearScenario(ctx context.Context) error {
	if s.scenario == nil {
		return errors.New("session.ClearScenario: no scenario manager")
	}
	if err := s.scenario.ClearScenario(ctx); err != nil {
		slog.Warn("scenario clear failed", "err", err)
		return fmt.Errorf("session.ClearScenario: %w", err)
	}
	slog.Info("scenario cleared")
	s.payoff.Refresh(ctx)
	return nil
}
