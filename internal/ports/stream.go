package ports

import (
	"context"

	"github.com/alejandrodnm/legbook/internal/domain"
)

// PriceStream entrega los mensajes "prices" del stream de mercado ya decodificados.
type PriceStream interface {
	// Stream lee del transporte y envía cada actualización a out.
	// Los mensajes que no son de precios o están mal formados se descartan.
	// Bloquea hasta que el contexto se cancela o el stream se cierra;
	// devuelve nil si el cierre fue limpio.
	Stream(ctx context.Context, out chan<- domain.PriceUpdate) error
}
