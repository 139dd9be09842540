package stream

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/shopspring/decimal"
)

const pricesPurpose = "prices"

// pricesMessage is the inbound stream envelope.
type pricesMessage struct {
	Purpose      string          `json:"purpose"`
	OptionsChain []rawInstrument `json:"options_chain"`
}

type rawInstrument struct {
	Symbol       string      `json:"symbol"`
	ContractType string      `json:"contract_type"`
	StrikePrice  flexDecimal `json:"strike_price"`
	Quotes       *rawQuotes  `json:"quotes"`
	SpotPrice    flexDecimal `json:"spot_price"`
	MarkPrice    flexDecimal `json:"mark_price"`
}

type rawQuotes struct {
	BestBid flexDecimal `json:"best_bid"`
	BestAsk flexDecimal `json:"best_ask"`
}

// flexDecimal accepts a JSON number, a numeric string, "" or null.
type flexDecimal decimal.NullDecimal

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = flexDecimal{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*f = flexDecimal{Decimal: d, Valid: true}
	return nil
}

var contractKinds = map[string]domain.ContractKind{
	"call_options":      domain.KindCall,
	"put_options":       domain.KindPut,
	"perpetual_futures": domain.KindPerpetual,
}

// decodePrices parses one stream frame. Returns false for anything that is
// not a well formed prices message.
func decodePrices(data []byte, loc *time.Location) (domain.PriceUpdate, bool) {
	var msg pricesMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("dropping malformed stream message", "err", err, "bytes", len(data))
		return domain.PriceUpdate{}, false
	}
	if msg.Purpose != pricesPurpose {
		slog.Debug("dropping non-price stream message", "purpose", msg.Purpose)
		return domain.PriceUpdate{}, false
	}

	update := domain.PriceUpdate{Instruments: make([]domain.Instrument, 0, len(msg.OptionsChain))}
	for _, raw := range msg.OptionsChain {
		inst, ok := mapInstrument(raw, loc)
		if !ok {
			continue
		}
		update.Instruments = append(update.Instruments, inst)
	}
	return update, true
}

func mapInstrument(raw rawInstrument, loc *time.Location) (domain.Instrument, bool) {
	kind, ok := contractKinds[raw.ContractType]
	if !ok {
		slog.Debug("skipping instrument with unknown contract type", "symbol", raw.Symbol, "type", raw.ContractType)
		return domain.Instrument{}, false
	}

	inst := domain.Instrument{
		Symbol: raw.Symbol,
		Kind:   kind,
		Spot:   raw.SpotPrice.Decimal,
		Mark:   raw.MarkPrice.Decimal,
	}
	if raw.Quotes != nil {
		inst.BestBid = decimal.NullDecimal(raw.Quotes.BestBid)
		inst.BestAsk = decimal.NullDecimal(raw.Quotes.BestAsk)
	}

	if kind.IsOption() {
		strike := raw.StrikePrice.Decimal
		if !raw.StrikePrice.Valid || !strike.IsPositive() || !strike.Equal(strike.Truncate(0)) {
			slog.Debug("skipping option with invalid strike", "symbol", raw.Symbol, "strike", strike.String())
			return domain.Instrument{}, false
		}
		inst.Strike = strike.IntPart()
		if exp, ok := domain.ExpiryFromSymbol(raw.Symbol, loc); ok {
			inst.Expiry = exp
		}
	}
	return inst, true
}
