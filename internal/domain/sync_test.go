package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	expected := map[string]Action{
		"C-BTC-1-010125": ActionBuy,
		"P-BTC-2-010125": ActionSell,
		"C-BTC-3-010125": ActionBuy,
	}
	remote := map[string]Action{
		"C-BTC-1-010125": ActionBuy,
		"P-BTC-2-010125": ActionBuy,
		"P-BTC-9-010125": ActionSell,
	}

	got := Diff(expected, remote)

	assert.Equal(t, []Divergence{
		{Symbol: "C-BTC-3-010125", Kind: DivergenceMissingRemote, Expected: ActionBuy},
		{Symbol: "P-BTC-2-010125", Kind: DivergenceAction, Expected: ActionSell, Remote: ActionBuy},
		{Symbol: "P-BTC-9-010125", Kind: DivergenceUnexpected, Remote: ActionSell},
	}, got)
}

func TestDiff_InSync(t *testing.T) {
	m := map[string]Action{"C-BTC-1-010125": ActionBuy}
	assert.Empty(t, Diff(m, m))
	assert.Empty(t, Diff(nil, nil))
}

func TestEventFromOutcome(t *testing.T) {
	at := time.Now()
	ev := EventFromOutcome(SyncOutcome{
		LegID:    "leg-1",
		Command:  SelectionCommand{Type: CommandDeselect, Symbol: "C-BTC-1-010125", Position: ActionSell},
		Err:      errors.New("boom"),
		Duration: 1500 * time.Millisecond,
		At:       at,
	})

	assert.Equal(t, "leg-1", ev.LegID)
	assert.Equal(t, CommandDeselect, ev.Command)
	assert.False(t, ev.OK)
	assert.Equal(t, "boom", ev.Error)
	assert.Equal(t, int64(1500), ev.DurationMS)
}

func TestParseHelpers(t *testing.T) {
	k, err := ParseLegKind("P")
	assert.NoError(t, err)
	assert.Equal(t, LegPut, k)
	_, err = ParseLegKind("straddle")
	assert.Error(t, err)

	a, err := ParseAction("SELL")
	assert.NoError(t, err)
	assert.Equal(t, ActionSell, a)
	assert.Equal(t, ActionBuy, a.Opposite())
	_, err = ParseAction("hold")
	assert.Error(t, err)
}

func TestLivePosition_EntryPrice(t *testing.T) {
	p := LivePosition{
		Selection: Selection{Action: ActionBuy},
		BestBid:   decimal.NewNullDecimal(decimal.NewFromInt(10)),
		BestAsk:   decimal.NewNullDecimal(decimal.NewFromInt(12)),
	}
	assert.Equal(t, "12", p.EntryPrice().Decimal.String())

	p.Action = ActionSell
	assert.Equal(t, "10", p.EntryPrice().Decimal.String())

	assert.False(t, LivePosition{}.Quoted())
}

func TestLegRequest_Validate(t *testing.T) {
	ok := LegRequest{Kind: LegCall, Strike: 100, Underlying: "btc"}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, "BTC", ok.Key().Underlying)

	assert.Error(t, LegRequest{Kind: "x", Strike: 100, Underlying: "BTC"}.Validate())
	assert.Error(t, LegRequest{Kind: LegCall, Strike: 0, Underlying: "BTC"}.Validate())
	assert.Error(t, LegRequest{Kind: LegCall, Strike: 100}.Validate())
}
