package domain

import (
	"sort"
	"time"
)

// OptionRow agrupa el call y el put de un mismo strike. Cualquiera de los
// dos lados puede ser nil si el feed no lo trae en este tick.
type OptionRow struct {
	Strike int64
	Call   *Instrument
	Put    *Instrument
}

// Side devuelve el lado del row que corresponde al tipo de pierna.
func (r OptionRow) Side(kind LegKind) *Instrument {
	switch kind {
	case LegCall:
		return r.Call
	case LegPut:
		return r.Put
	}
	return nil
}

// ChainSnapshot es la foto completa de la cadena de opciones en un tick.
// Se reemplaza entera en cada tick; los consumidores nunca ven mutaciones.
type ChainSnapshot struct {
	Futures    *Instrument
	Rows       []OptionRow // ascendente por strike numérico
	ReceivedAt time.Time

	byStrike map[int64]int // strike → índice en Rows
}

// BuildChain particiona los instrumentos por tipo, los agrupa en un row por
// strike y ordena los rows por strike ascendente. El primer perpetuo
// encontrado queda como Futures.
func BuildChain(instruments []Instrument, receivedAt time.Time) ChainSnapshot {
	snap := ChainSnapshot{ReceivedAt: receivedAt}
	rows := make(map[int64]*OptionRow)

	for i := range instruments {
		inst := instruments[i]
		switch inst.Kind {
		case KindPerpetual:
			if snap.Futures == nil {
				snap.Futures = &inst
			}
		case KindCall, KindPut:
			row, ok := rows[inst.Strike]
			if !ok {
				row = &OptionRow{Strike: inst.Strike}
				rows[inst.Strike] = row
			}
			if inst.Kind == KindCall {
				row.Call = &inst
			} else {
				row.Put = &inst
			}
		}
	}

	snap.Rows = make([]OptionRow, 0, len(rows))
	for _, row := range rows {
		snap.Rows = append(snap.Rows, *row)
	}
	sort.Slice(snap.Rows, func(a, b int) bool {
		return snap.Rows[a].Strike < snap.Rows[b].Strike
	})

	snap.byStrike = make(map[int64]int, len(snap.Rows))
	for i, row := range snap.Rows {
		snap.byStrike[row.Strike] = i
	}
	return snap
}

// Quote devuelve el instrumento de un strike y tipo, o nil si no está en la foto.
// Búsqueda O(1) por el índice de strikes.
func (c ChainSnapshot) Quote(kind LegKind, strike int64) *Instrument {
	idx, ok := c.byStrike[strike]
	if !ok {
		return nil
	}
	return c.Rows[idx].Side(kind)
}

// Strikes devuelve los strikes de la cadena en orden ascendente.
func (c ChainSnapshot) Strikes() []int64 {
	out := make([]int64, len(c.Rows))
	for i, row := range c.Rows {
		out[i] = row.Strike
	}
	return out
}

// CurrentSymbol devuelve el símbolo del perpetuo de la foto, o "".
func (c ChainSnapshot) CurrentSymbol() string {
	if c.Futures == nil {
		return ""
	}
	return c.Futures.Symbol
}

// IsEmpty devuelve true si la foto no tiene ni opciones ni futuro.
func (c ChainSnapshot) IsEmpty() bool {
	return len(c.Rows) == 0 && c.Futures == nil
}
