package ports

import (
	"context"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// ContractSelector mantiene el espejo remoto de piernas seleccionadas.
type ContractSelector interface {
	// SendSelection envía un select_contract o deselect_contract.
	// Un solo intento, sin reintentos.
	SendSelection(ctx context.Context, cmd domain.SelectionCommand) (domain.RemoteConfirmation, error)

	// SelectedContracts devuelve el conjunto que el servicio cree tener seleccionado.
	SelectedContracts(ctx context.Context) (map[string]domain.Action, error)
}

// PayoffProvider calcula la curva de payoff de la posición que el servicio tiene en espejo.
type PayoffProvider interface {
	// FetchPayoff pide la curva actual. La respuesta se devuelve sin validar.
	FetchPayoff(ctx context.Context) (domain.PayoffMessage, error)
}

// ScenarioManager expone los ajustes del escenario que afectan al payoff.
type ScenarioManager interface {
	UpdateLotSize(ctx context.Context, lotSize float64) error
	ClearScenario(ctx context.Context) error
}
