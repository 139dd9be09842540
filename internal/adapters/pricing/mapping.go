package pricing

import (
	"log/slog"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// toSelectionRequest convierte un comando de dominio en el body del endpoint.
func toSelectionRequest(cmd domain.SelectionCommand) selectionRequest {
	return selectionRequest{
		Type:     string(cmd.Type),
		Symbol:   cmd.Symbol,
		Position: string(cmd.Position),
	}
}

// mapConfirmation convierte la confirmación raw. Las acciones desconocidas se descartan.
func mapConfirmation(r confirmationResponse) domain.RemoteConfirmation {
	return domain.RemoteConfirmation{
		Type:              r.Type,
		SelectedContracts: mapSelected(r.SelectedContracts),
	}
}

// mapSelected convierte {symbol: "buy"|"sell"} en acciones de dominio.
func mapSelected(raw map[string]string) map[string]domain.Action {
	out := make(map[string]domain.Action, len(raw))
	for sym, pos := range raw {
		action, err := domain.ParseAction(pos)
		if err != nil {
			slog.Debug("ignoring remote contract with unknown position", "symbol", sym, "position", pos)
			continue
		}
		out[sym] = action
	}
	return out
}

// mapPayoff convierte la respuesta raw sin validarla; la validación es de la sesión.
func mapPayoff(r payoffResponse) domain.PayoffMessage {
	msg := domain.PayoffMessage{Type: r.Type}
	if r.Data != nil {
		msg.HasData = true
		msg.X = r.Data.X
		msg.Y = r.Data.Y
	}
	return msg
}
