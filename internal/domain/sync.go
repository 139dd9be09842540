package domain

import (
	"sort"
	"time"
)

// CommandType es el tipo de mensaje que se envía al servicio de pricing.
type CommandType string

const (
	CommandSelect   CommandType = "select_contract"
	CommandDeselect CommandType = "deselect_contract"
)

// SelectionCommand es un select/deselect idempotente de una pierna en el espejo remoto.
type SelectionCommand struct {
	Type     CommandType
	Symbol   string // clave remota de la pierna
	Position Action
}

// RemoteConfirmation es lo que el servicio devuelve tras un select/deselect.
type RemoteConfirmation struct {
	Type              string
	SelectedContracts map[string]Action
}

// SyncState indica si el espejo remoto de una pierna coincide con la intención local.
type SyncState string

const (
	SyncPending  SyncState = "pending"  // hay comandos en vuelo para la intención actual
	SyncOK       SyncState = "ok"       // todos los comandos de la intención actual llegaron
	SyncDegraded SyncState = "degraded" // algún comando falló; el espejo puede divergir
)

// SyncOutcome es el resultado de un comando remoto.
type SyncOutcome struct {
	LegID      string
	Generation uint64
	Command    SelectionCommand
	Err        error
	Duration   time.Duration
	At         time.Time
}

// OK devuelve true si el comando se entregó sin error.
func (o SyncOutcome) OK() bool {
	return o.Err == nil
}

// SyncEvent es la fila que se guarda en el journal por cada comando remoto.
type SyncEvent struct {
	LegID      string
	Command    CommandType
	Symbol     string
	Position   Action
	OK         bool
	Error      string
	DurationMS int64
	At         time.Time
}

// EventFromOutcome convierte un resultado en una fila de journal.
func EventFromOutcome(o SyncOutcome) SyncEvent {
	ev := SyncEvent{
		LegID:      o.LegID,
		Command:    o.Command.Type,
		Symbol:     o.Command.Symbol,
		Position:   o.Command.Position,
		OK:         o.OK(),
		DurationMS: o.Duration.Milliseconds(),
		At:         o.At,
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	return ev
}

// LegStatus es la vista de una pierna para los consumidores: posición viva,
// clave remota y estado de sincronización.
type LegStatus struct {
	LivePosition
	RemoteKey string
	Sync      SyncState
	LastError string
}

// DivergenceKind clasifica una diferencia entre el espejo local y el remoto.
type DivergenceKind string

const (
	DivergenceMissingRemote DivergenceKind = "missing_remote" // local la espera, remoto no la tiene
	DivergenceUnexpected    DivergenceKind = "unexpected"     // remoto la tiene, local no
	DivergenceAction        DivergenceKind = "action"         // ambos la tienen con distinta acción
)

// Divergence es una pierna cuyo estado remoto no coincide con el esperado.
type Divergence struct {
	Symbol   string
	Kind     DivergenceKind
	Expected Action
	Remote   Action
}

// Diff compara el conjunto esperado con el remoto. Resultado ordenado por símbolo.
func Diff(expected, remote map[string]Action) []Divergence {
	var out []Divergence
	for sym, want := range expected {
		got, ok := remote[sym]
		switch {
		case !ok:
			out = append(out, Divergence{Symbol: sym, Kind: DivergenceMissingRemote, Expected: want})
		case got != want:
			out = append(out, Divergence{Symbol: sym, Kind: DivergenceAction, Expected: want, Remote: got})
		}
	}
	for sym, got := range remote {
		if _, ok := expected[sym]; !ok {
			out = append(out, Divergence{Symbol: sym, Kind: DivergenceUnexpected, Remote: got})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
