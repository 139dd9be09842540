package session

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// fakeSelector records every command. hook, if set, runs before answering
// and may block or fail the call. With applyRemote, a successful command
// updates remote the way the pricing service does: select sets the key,
// deselect deletes it whatever the position.
type fakeSelector struct {
	mu          sync.Mutex
	cmds        []domain.SelectionCommand
	hook        func(domain.SelectionCommand) error
	remote      map[string]domain.Action
	applyRemote bool
	err         error
}

func (f *fakeSelector) SendSelection(_ context.Context, cmd domain.SelectionCommand) (domain.RemoteConfirmation, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(cmd); err != nil {
			return domain.RemoteConfirmation{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyRemote {
		if f.remote == nil {
			f.remote = make(map[string]domain.Action)
		}
		switch cmd.Type {
		case domain.CommandSelect:
			f.remote[cmd.Symbol] = cmd.Position
		case domain.CommandDeselect:
			delete(f.remote, cmd.Symbol)
		}
	}
	return domain.RemoteConfirmation{Type: "confirmation", SelectedContracts: maps.Clone(f.remote)}, nil
}

func (f *fakeSelector) SelectedContracts(context.Context) (map[string]domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.remote), f.err
}

func (f *fakeSelector) sent() []domain.SelectionCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SelectionCommand(nil), f.cmds...)
}

func (f *fakeSelector) count(typ domain.CommandType) int {
	n := 0
	for _, c := range f.sent() {
		if c.Type == typ {
			n++
		}
	}
	return n
}

// fakeProvider answers with next, or with a one-point curve by default.
type fakeProvider struct {
	calls atomic.Int64
	next  func(call int64) (domain.PayoffMessage, error)
}

func (f *fakeProvider) FetchPayoff(context.Context) (domain.PayoffMessage, error) {
	n := f.calls.Add(1)
	if f.next != nil {
		return f.next(n)
	}
	return payoffMsg(float64(n)), nil
}

func payoffMsg(y float64) domain.PayoffMessage {
	return domain.PayoffMessage{
		Type:    domain.PayoffUpdateType,
		HasData: true,
		X:       []float64{100, 200},
		Y:       []float64{-y, y},
	}
}

type fakeScenario struct {
	lotSize float64
	cleared bool
	err     error
}

func (f *fakeScenario) UpdateLotSize(_ context.Context, size float64) error {
	if f.err != nil {
		return f.err
	}
	f.lotSize = size
	return nil
}

func (f *fakeScenario) ClearScenario(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.cleared = true
	return nil
}

type fakeJournal struct {
	mu     sync.Mutex
	events []domain.SyncEvent
	curves []domain.PayoffCurve
}

func (f *fakeJournal) RecordSync(_ context.Context, ev domain.SyncEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeJournal) RecordPayoff(_ context.Context, c domain.PayoffCurve) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.curves = append(f.curves, c)
	return nil
}

func (f *fakeJournal) RecentSyncEvents(context.Context, int) ([]domain.SyncEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SyncEvent(nil), f.events...), nil
}

func (f *fakeJournal) Close() error { return nil }

func (f *fakeJournal) failedEvents() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if !ev.OK {
			n++
		}
	}
	return n
}

var testKeys = domain.LegKeyFormatter{Location: time.UTC}

func btcChain(strikes ...int64) domain.ChainSnapshot {
	var insts []domain.Instrument
	insts = append(insts, domain.Instrument{Symbol: "BTCUSD", Kind: domain.KindPerpetual})
	for _, k := range strikes {
		for _, kind := range []domain.ContractKind{domain.KindCall, domain.KindPut} {
			prefix := "C"
			if kind == domain.KindPut {
				prefix = "P"
			}
			symbol := prefix + "-BTC-" + itoa(k) + "-160425"
			exp, _ := domain.ExpiryFromSymbol(symbol, time.UTC)
			insts = append(insts, domain.Instrument{
				Symbol:  symbol,
				Kind:    kind,
				Strike:  k,
				Expiry:  exp,
				BestBid: nullDec(k / 100),
				BestAsk: nullDec(k/100 + 1),
			})
		}
	}
	return domain.BuildChain(insts, time.Now())
}
