package pricing

// service.go — endpoints del servicio de pricing.
//
// El servicio guarda su propio espejo de piernas seleccionadas: el payoff se
// pide sin payload y se calcula sobre lo que el servicio cree tener.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/legbook/internal/domain"
)

const (
	selectOptionPath      = "/stream/select-option"
	getGraphPath          = "/stream/get-graph"
	selectedContractsPath = "/stream/selected_contracts"
	clearSimulationsPath  = "/stream/clear_simulations"
	updateLotSizePath     = "/update_lotsize"
)

// SendSelection envía un select_contract o deselect_contract.
func (c *Client) SendSelection(ctx context.Context, cmd domain.SelectionCommand) (domain.RemoteConfirmation, error) {
	var resp confirmationResponse
	if err := c.post(ctx, selectOptionPath, toSelectionRequest(cmd), &resp); err != nil {
		return domain.RemoteConfirmation{}, fmt.Errorf("pricing.SendSelection %s %s: %w", cmd.Type, cmd.Symbol, err)
	}

	conf := mapConfirmation(resp)
	slog.Debug("selection confirmed",
		"type", cmd.Type,
		"symbol", cmd.Symbol,
		"position", cmd.Position,
		"remote_selected", len(conf.SelectedContracts),
	)
	return conf, nil
}

// SelectedContracts devuelve el conjunto que el servicio tiene en espejo.
func (c *Client) SelectedContracts(ctx context.Context) (map[string]domain.Action, error) {
	var raw map[string]string
	if err := c.get(ctx, selectedContractsPath, &raw); err != nil {
		return nil, fmt.Errorf("pricing.SelectedContracts: %w", err)
	}
	return mapSelected(raw), nil
}

// FetchPayoff pide la curva actual. POST con body vacío.
func (c *Client) FetchPayoff(ctx context.Context) (domain.PayoffMessage, error) {
	var resp payoffResponse
	if err := c.post(ctx, getGraphPath, struct{}{}, &resp); err != nil {
		return domain.PayoffMessage{}, fmt.Errorf("pricing.FetchPayoff: %w", err)
	}
	return mapPayoff(resp), nil
}

// UpdateLotSize cambia el tamaño de lote con el que el servicio calcula el payoff.
func (c *Client) UpdateLotSize(ctx context.Context, lotSize float64) error {
	if lotSize <= 0 {
		return fmt.Errorf("pricing.UpdateLotSize: invalid lot size %v", lotSize)
	}
	if err := c.post(ctx, updateLotSizePath, lotSizeRequest{LotSize: lotSize}, nil); err != nil {
		return fmt.Errorf("pricing.UpdateLotSize: %w", err)
	}
	return nil
}

// ClearScenario borra las simulaciones guardadas en el servicio.
func (c *Client) ClearScenario(ctx context.Context) error {
	if err := c.delete(ctx, clearSimulationsPath); err != nil {
		return fmt.Errorf("pricing.ClearScenario: %w", err)
	}
	return nil
}
