package pricing

// DTOs raw del servicio de pricing. Solo se usan dentro de este paquete.
// La conversión a domain se hace en mapping.go.

// selectionRequest es el body de POST /stream/select-option.
type selectionRequest struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Position string `json:"position"`
}

// confirmationResponse es la respuesta de select-option. Puede venir como null
// si el servicio no pudo procesar el mensaje.
type confirmationResponse struct {
	Type                 string            `json:"type"`
	SelectedContracts    map[string]string `json:"selected_contracts"`
	PriceRangePercentage float64           `json:"price_range_percentage"`
}

// payoffResponse es la respuesta de POST /stream/get-graph.
type payoffResponse struct {
	Type      string        `json:"type"`
	Timestamp float64       `json:"timestamp"`
	Data      *payoffPoints `json:"data"`
}

type payoffPoints struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// lotSizeRequest es el body de POST /update_lotsize.
type lotSizeRequest struct {
	LotSize float64 `json:"lot_size"`
}
