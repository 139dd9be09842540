package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/legbook/internal/domain"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	s        *Session
	sel      *fakeSelector
	prov     *fakeProvider
	journal  *fakeJournal
	scenario *fakeScenario
	snaps    chan domain.ChainSnapshot
	stop     func()
}

func newHarness(t *testing.T, sel *fakeSelector) *harness {
	t.Helper()
	if sel == nil {
		sel = &fakeSelector{}
	}
	h := &harness{
		sel:      sel,
		prov:     &fakeProvider{},
		journal:  &fakeJournal{},
		scenario: &fakeScenario{},
		snaps:    make(chan domain.ChainSnapshot),
	}
	mirror := NewMirror(sel, testKeys, h.journal, nil)
	payoff := NewPayoffSession(h.prov, h.journal, nil)
	h.s = New(Config{Underlying: "BTC", Expiry: "2025-04-16"}, mirror, payoff, h.scenario, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.s.Run(ctx, h.snaps) }()

	var stopped atomic.Bool
	h.stop = func() {
		if stopped.CompareAndSwap(false, true) {
			cancel()
			<-errCh
		}
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) positions(t *testing.T) []domain.LegStatus {
	t.Helper()
	legs, err := h.s.Positions(context.Background())
	require.NoError(t, err)
	return legs
}

func TestSession_AddSendsOneSelectBuy(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	sel, err := h.s.Add(ctx, callReq(86200))
	require.NoError(t, err)
	again, err := h.s.Add(ctx, callReq(86200))
	require.NoError(t, err)
	assert.Equal(t, sel.ID, again.ID)

	require.Eventually(t, func() bool { return h.prov.calls.Load() == 1 }, waitFor, tick)
	assert.Equal(t, []domain.SelectionCommand{{
		Type: domain.CommandSelect, Symbol: "C-BTC-86200-160425", Position: domain.ActionBuy,
	}}, h.sel.sent())

	legs := h.positions(t)
	require.Len(t, legs, 1)
	assert.Equal(t, domain.SyncOK, legs[0].Sync)
	assert.Equal(t, "C-BTC-86200-160425", legs[0].RemoteKey)
}

func TestSession_AddRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.s.Add(context.Background(), domain.LegRequest{Kind: domain.LegCall, Strike: 0, Underlying: "BTC"})
	assert.Error(t, err)
	assert.Empty(t, h.sel.sent())
}

func TestSession_AddFromChain(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.snaps <- btcChain(86200, 90000)

	sel, err := h.s.AddFromChain(ctx, domain.LegPut, 90000)
	require.NoError(t, err)
	assert.Equal(t, "P-BTC-90000-160425", sel.Symbol)
	assert.Equal(t, "BTC", sel.Underlying)
	assert.Equal(t, "2025-04-16", sel.Expiry)

	_, err = h.s.AddFromChain(ctx, domain.LegCall, 1)
	assert.ErrorIs(t, err, domain.ErrUnknownStrike)

	legs := h.positions(t)
	require.Len(t, legs, 1)
	assert.Equal(t, "900", legs[0].BestBid.Decimal.String())
}

func TestSession_UpdateActionSendsDeselectThenSelect(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sel, _ := h.s.Add(ctx, callReq(86200))
	require.Eventually(t, func() bool { return len(h.sel.sent()) == 1 }, waitFor, tick)

	require.NoError(t, h.s.UpdateAction(ctx, sel.ID, domain.ActionSell))
	require.Eventually(t, func() bool { return len(h.sel.sent()) == 3 }, waitFor, tick)

	assert.Equal(t, []domain.SelectionCommand{
		{Type: domain.CommandDeselect, Symbol: "C-BTC-86200-160425", Position: domain.ActionBuy},
		{Type: domain.CommandSelect, Symbol: "C-BTC-86200-160425", Position: domain.ActionSell},
	}, h.sel.sent()[1:])

	// Unchanged action: nothing sent.
	require.NoError(t, h.s.UpdateAction(ctx, sel.ID, domain.ActionSell))
	require.NoError(t, h.s.UpdateAction(ctx, "unknown", domain.ActionSell))
	assert.Len(t, h.sel.sent(), 3)

	assert.Error(t, h.s.UpdateAction(ctx, sel.ID, domain.Action("hold")))
}

func TestSession_BuySellBuyRestoresAction(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sel, _ := h.s.Add(ctx, callReq(86200))

	require.NoError(t, h.s.UpdateAction(ctx, sel.ID, domain.ActionSell))
	require.NoError(t, h.s.UpdateAction(ctx, sel.ID, domain.ActionBuy))

	legs := h.positions(t)
	require.Len(t, legs, 1)
	assert.Equal(t, sel, legs[0].Selection)
}

func TestSession_RemoveDeselectsCurrentAction(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a, _ := h.s.Add(ctx, callReq(1))
	b, _ := h.s.Add(ctx, callReq(2))
	require.NoError(t, h.s.UpdateAction(ctx, a.ID, domain.ActionSell))
	require.Eventually(t, func() bool { return len(h.sel.sent()) == 4 }, waitFor, tick)

	require.NoError(t, h.s.Remove(ctx, a.ID))
	require.Eventually(t, func() bool { return h.sel.count(domain.CommandDeselect) == 2 }, waitFor, tick)

	sent := h.sel.sent()
	assert.Equal(t, domain.SelectionCommand{
		Type: domain.CommandDeselect, Symbol: "C-BTC-1-160425", Position: domain.ActionSell,
	}, sent[len(sent)-1])

	legs := h.positions(t)
	require.Len(t, legs, 1)
	assert.Equal(t, b.ID, legs[0].ID)

	before := h.positions(t)
	require.NoError(t, h.s.Remove(ctx, "unknown"))
	assert.Equal(t, before, h.positions(t))
	assert.Len(t, h.sel.sent(), 5)
}

func TestSession_ClearAllEmptyMakesNoCalls(t *testing.T) {
	h := newHarness(t, nil)

	n, err := h.s.ClearAll(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	h.stop()
	assert.Empty(t, h.sel.sent())
	assert.Zero(t, h.prov.calls.Load())
}

func TestSession_ClearAllRefreshesOnceAfterEveryDeselect(t *testing.T) {
	sel := &fakeSelector{hook: func(cmd domain.SelectionCommand) error {
		if cmd.Type == domain.CommandDeselect && cmd.Symbol == "C-BTC-2-160425" {
			return errors.New("boom")
		}
		return nil
	}}
	h := newHarness(t, sel)
	ctx := context.Background()
	for _, k := range []int64{1, 2, 3} {
		_, err := h.s.Add(ctx, callReq(k))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return h.prov.calls.Load() == 3 }, waitFor, tick)

	n, err := h.s.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, h.positions(t), "cleared locally even if a deselect fails")

	require.Eventually(t, func() bool { return h.prov.calls.Load() == 4 }, waitFor, tick)
	assert.Equal(t, 3, h.sel.count(domain.CommandDeselect))
	assert.Never(t, func() bool { return h.prov.calls.Load() > 4 }, 100*time.Millisecond, tick)
}

func TestSession_FailedSelectMarksLegDegraded(t *testing.T) {
	sel := &fakeSelector{hook: func(domain.SelectionCommand) error { return errors.New("status 503") }}
	h := newHarness(t, sel)

	_, err := h.s.Add(context.Background(), callReq(86200))
	require.NoError(t, err, "remote failures are not returned to the caller")

	require.Eventually(t, func() bool {
		legs := h.positions(t)
		return len(legs) == 1 && legs[0].Sync == domain.SyncDegraded
	}, waitFor, tick)
	assert.Contains(t, h.positions(t)[0].LastError, "status 503")
	assert.Zero(t, h.prov.calls.Load(), "no payoff refresh after a failure")
}

func TestSession_SupersededOutcomeIgnored(t *testing.T) {
	release := make(chan struct{})
	var blocked atomic.Bool
	sel := &fakeSelector{hook: func(cmd domain.SelectionCommand) error {
		if cmd.Type == domain.CommandSelect && cmd.Position == domain.ActionBuy && blocked.CompareAndSwap(false, true) {
			<-release
			return errors.New("late failure")
		}
		return nil
	}}
	h := newHarness(t, sel)
	released := false
	t.Cleanup(func() {
		if !released {
			close(release)
		}
	})
	ctx := context.Background()

	leg, _ := h.s.Add(ctx, callReq(86200))
	require.Eventually(t, func() bool { return len(h.sel.sent()) == 1 }, waitFor, tick)
	require.NoError(t, h.s.UpdateAction(ctx, leg.ID, domain.ActionSell))
	assert.Equal(t, domain.SyncPending, h.positions(t)[0].Sync)

	close(release)
	released = true
	require.Eventually(t, func() bool {
		return h.journal.failedEvents() == 1 && h.positions(t)[0].Sync == domain.SyncOK
	}, waitFor, tick)
	assert.Never(t, func() bool { return h.positions(t)[0].Sync != domain.SyncOK }, 100*time.Millisecond, tick)
	assert.Equal(t, []domain.SelectionCommand{
		{Type: domain.CommandSelect, Symbol: "C-BTC-86200-160425", Position: domain.ActionBuy},
		{Type: domain.CommandDeselect, Symbol: "C-BTC-86200-160425", Position: domain.ActionBuy},
		{Type: domain.CommandSelect, Symbol: "C-BTC-86200-160425", Position: domain.ActionSell},
	}, h.sel.sent())
}

func TestSession_RemoteKeepsLegAcrossActionChangeAndRemove(t *testing.T) {
	// The slow half of each pair would arrive last if both were sent at once.
	sel := &fakeSelector{applyRemote: true, hook: func(cmd domain.SelectionCommand) error {
		switch {
		case cmd.Type == domain.CommandDeselect && cmd.Symbol == "C-BTC-86200-160425",
			cmd.Type == domain.CommandSelect && cmd.Symbol == "C-BTC-90000-160425":
			time.Sleep(20 * time.Millisecond)
		}
		return nil
	}}
	h := newHarness(t, sel)
	ctx := context.Background()
	want := map[string]domain.Action{"C-BTC-86200-160425": domain.ActionSell}
	remote := func() map[string]domain.Action {
		m, _ := h.sel.SelectedContracts(ctx)
		return m
	}

	leg, err := h.s.Add(ctx, callReq(86200))
	require.NoError(t, err)
	require.NoError(t, h.s.UpdateAction(ctx, leg.ID, domain.ActionSell))
	require.Eventually(t, func() bool {
		return len(h.sel.sent()) == 3 && h.positions(t)[0].Sync == domain.SyncOK
	}, waitFor, tick)
	assert.Equal(t, want, remote())

	other, err := h.s.Add(ctx, callReq(90000))
	require.NoError(t, err)
	require.NoError(t, h.s.Remove(ctx, other.ID))
	require.Eventually(t, func() bool {
		return len(h.sel.sent()) == 5 && assert.ObjectsAreEqual(want, remote())
	}, waitFor, tick)
	assert.Never(t, func() bool { return len(remote()) != 1 }, 100*time.Millisecond, tick)

	divs, err := h.s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, divs)
}

func TestSession_Reconcile(t *testing.T) {
	sel := &fakeSelector{remote: map[string]domain.Action{
		"C-BTC-1-160425": domain.ActionSell,
		"P-BTC-9-160425": domain.ActionBuy,
	}}
	h := newHarness(t, sel)
	ctx := context.Background()
	h.s.Add(ctx, callReq(1))
	h.s.Add(ctx, callReq(2))

	divs, err := h.s.Reconcile(ctx)

	require.NoError(t, err)
	assert.Equal(t, []domain.Divergence{
		{Symbol: "C-BTC-1-160425", Kind: domain.DivergenceAction, Expected: domain.ActionBuy, Remote: domain.ActionSell},
		{Symbol: "C-BTC-2-160425", Kind: domain.DivergenceMissingRemote, Expected: domain.ActionBuy},
		{Symbol: "P-BTC-9-160425", Kind: domain.DivergenceUnexpected, Remote: domain.ActionBuy},
	}, divs)
}

func TestSession_LotSizeAndScenarioRefreshPayoff(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.s.SetLotSize(ctx, 0.5))
	assert.Equal(t, 0.5, h.scenario.lotSize)
	assert.Equal(t, int64(1), h.prov.calls.Load())

	require.NoError(t, h.s.ClearScenario(ctx))
	assert.True(t, h.scenario.cleared)
	assert.Equal(t, int64(2), h.prov.calls.Load())
	assert.False(t, h.s.Curve().IsEmpty())

	h.scenario.err = errors.New("down")
	assert.Error(t, h.s.SetLotSize(ctx, 1))
	assert.Error(t, h.s.ClearScenario(ctx))
	assert.Equal(t, int64(2), h.prov.calls.Load(), "no refresh after a failure")
}

func TestSession_StoppedSessionReturnsErrStopped(t *testing.T) {
	h := newHarness(t, nil)
	h.stop()

	_, err := h.s.Add(context.Background(), callReq(1))
	assert.ErrorIs(t, err, ErrStopped)
	_, err = h.s.Positions(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSession_SnapshotsUpdateLiveView(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.s.Add(ctx, callReq(86200))

	h.snaps <- btcChain(86200)
	assert.True(t, h.positions(t)[0].Quoted())

	h.snaps <- btcChain(90000)
	assert.False(t, h.positions(t)[0].Quoted(), "absent strike drops the quote")

	chain, err := h.s.Chain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{90000}, chain.Strikes())
}
