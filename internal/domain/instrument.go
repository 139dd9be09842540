package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ContractKind es el tipo de contrato de un instrumento del feed.
type ContractKind string

const (
	KindCall      ContractKind = "call"
	KindPut       ContractKind = "put"
	KindPerpetual ContractKind = "perpetual"
)

// IsOption devuelve true para calls y puts.
func (k ContractKind) IsOption() bool {
	return k == KindCall || k == KindPut
}

// Instrument es una cotización inmutable de un contrato en un tick concreto.
// Cada tick reemplaza el instrumento completo; nunca se modifica en sitio.
type Instrument struct {
	Symbol  string
	Kind    ContractKind
	Strike  int64     // solo calls/puts
	Expiry  time.Time // fecha de vencimiento extraída del símbolo (cero si no se pudo)
	BestBid decimal.NullDecimal
	BestAsk decimal.NullDecimal
	Spot    decimal.Decimal
	Mark    decimal.Decimal
}

// Mid devuelve el punto medio entre bid y ask, o null si falta algún lado.
func (i Instrument) Mid() decimal.NullDecimal {
	if !i.BestBid.Valid || !i.BestAsk.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(i.BestBid.Decimal.Add(i.BestAsk.Decimal).Div(decimal.NewFromInt(2)))
}

// ExpiryString devuelve el vencimiento en formato YYYY-MM-DD, o "" si no hay.
func (i Instrument) ExpiryString() string {
	if i.Expiry.IsZero() {
		return ""
	}
	return i.Expiry.Format(ExpiryLayout)
}

// PriceUpdate es un mensaje "prices" del stream ya decodificado.
type PriceUpdate struct {
	Instruments []Instrument
	ReceivedAt  time.Time
}

// UnderlyingFromSymbol extrae el subyacente de un símbolo de exchange.
// Los símbolos de opciones tienen la forma C-BTC-86200-160425; si el símbolo
// no tiene guiones se usan los tres primeros caracteres (BTCUSD → BTC).
func UnderlyingFromSymbol(symbol string) string {
	parts := strings.Split(symbol, "-")
	if len(parts) >= 2 && parts[1] != "" {
		return strings.ToUpper(parts[1])
	}
	if len(symbol) > 3 {
		return strings.ToUpper(symbol[:3])
	}
	return strings.ToUpper(symbol)
}

// ExpiryFromSymbol lee el campo DDMMYY de un símbolo de opción en la zona dada.
// Devuelve false si el símbolo no tiene ese campo o no es una fecha válida.
func ExpiryFromSymbol(symbol string, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(symbol, "-")
	if len(parts) < 4 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(legKeyDateLayout, parts[3], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
