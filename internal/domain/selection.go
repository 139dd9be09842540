package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LegKind es el tipo de una pierna seleccionada por el usuario.
type LegKind string

const (
	LegCall LegKind = "call"
	LegPut  LegKind = "put"
)

// ParseLegKind acepta "call"/"put" y sus abreviaturas "c"/"p".
func ParseLegKind(s string) (LegKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return LegCall, nil
	case "put", "p":
		return LegPut, nil
	}
	return "", fmt.Errorf("unknown leg kind %q", s)
}

// Prefix devuelve la letra usada en la clave remota (C o P).
func (k LegKind) Prefix() string {
	if k == LegPut {
		return "P"
	}
	return "C"
}

// Action es la dirección de la pierna.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ParseAction acepta "buy"/"sell" sin distinguir mayúsculas.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return ActionBuy, nil
	case "sell":
		return ActionSell, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Opposite devuelve la acción contraria.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// ErrUnknownStrike se devuelve cuando se pide una pierna que no está en la cadena actual.
var ErrUnknownStrike = errors.New("strike not present in current chain")

// LegKey es la clave de negocio de una pierna. Es la única identidad válida
// para deduplicar; el ID de la selección es un handle opaco.
type LegKey struct {
	Kind       LegKind
	Strike     int64
	Underlying string
}

func (k LegKey) String() string {
	return fmt.Sprintf("%s-%s-%d", k.Kind.Prefix(), k.Underlying, k.Strike)
}

// LegRequest son los datos que el usuario aporta para crear una pierna.
type LegRequest struct {
	Kind       LegKind
	Strike     int64
	Underlying string
	Expiry     string // YYYY-MM-DD tal como lo guarda la selección
	Symbol     string // símbolo de exchange, opcional
}

// Key devuelve la clave de negocio de la petición.
func (r LegRequest) Key() LegKey {
	return LegKey{Kind: r.Kind, Strike: r.Strike, Underlying: strings.ToUpper(r.Underlying)}
}

// Validate comprueba los campos mínimos de la petición.
func (r LegRequest) Validate() error {
	if r.Kind != LegCall && r.Kind != LegPut {
		return fmt.Errorf("invalid leg kind %q", r.Kind)
	}
	if r.Strike <= 0 {
		return fmt.Errorf("invalid strike %d", r.Strike)
	}
	if strings.TrimSpace(r.Underlying) == "" {
		return errors.New("missing underlying")
	}
	return nil
}

// Selection es la intención del usuario para una pierna.
type Selection struct {
	ID         string
	Kind       LegKind
	Strike     int64
	Symbol     string
	Underlying string
	Expiry     string
	Action     Action
}

// Key devuelve la clave de negocio de la selección.
func (s Selection) Key() LegKey {
	return LegKey{Kind: s.Kind, Strike: s.Strike, Underlying: s.Underlying}
}

// LivePosition es una selección enriquecida con la cotización actual.
// BestBid/BestAsk son null si el instrumento no está en la foto del feed.
type LivePosition struct {
	Selection
	BestBid decimal.NullDecimal
	BestAsk decimal.NullDecimal
}

// EntryPrice devuelve el precio al que se abriría la pierna: ask para buy,
// bid para sell. Null si ese lado no cotiza.
func (p LivePosition) EntryPrice() decimal.NullDecimal {
	if p.Action == ActionSell {
		return p.BestBid
	}
	return p.BestAsk
}

// Quoted devuelve true si la pierna tiene al menos un lado cotizado.
func (p LivePosition) Quoted() bool {
	return p.BestBid.Valid || p.BestAsk.Valid
}
