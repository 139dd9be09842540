package domain

import (
	"fmt"
	"math"
	"time"
)

// PayoffUpdateType es el tipo de mensaje válido del endpoint de payoff.
const PayoffUpdateType = "payoff_update"

// PayoffPoint es un punto de la curva: precio del subyacente y P&L.
type PayoffPoint struct {
	X float64
	Y float64
}

// PayoffCurve es la curva P&L vs precio del subyacente para la posición agregada.
// Se reemplaza entera en cada fetch correcto.
type PayoffCurve struct {
	Points    []PayoffPoint
	FetchedAt time.Time
}

// PayoffMessage es la respuesta cruda del servicio de pricing, antes de validar.
type PayoffMessage struct {
	Type string
	X    []float64
	Y    []float64
	// HasData es false si la respuesta no trae el objeto data.
	HasData bool
}

// NewPayoffCurve valida un mensaje y construye la curva.
// Devuelve error si el tipo no es payoff_update o si x/y no cuadran.
func NewPayoffCurve(msg PayoffMessage, fetchedAt time.Time) (PayoffCurve, error) {
	if msg.Type != PayoffUpdateType {
		return PayoffCurve{}, fmt.Errorf("unexpected payoff message type %q", msg.Type)
	}
	if !msg.HasData {
		return PayoffCurve{}, fmt.Errorf("payoff message without data")
	}
	if len(msg.X) != len(msg.Y) {
		return PayoffCurve{}, fmt.Errorf("payoff x/y length mismatch: %d vs %d", len(msg.X), len(msg.Y))
	}
	points := make([]PayoffPoint, len(msg.X))
	for i := range msg.X {
		if math.IsNaN(msg.X[i]) || math.IsNaN(msg.Y[i]) {
			return PayoffCurve{}, fmt.Errorf("payoff point %d is NaN", i)
		}
		points[i] = PayoffPoint{X: msg.X[i], Y: msg.Y[i]}
	}
	return PayoffCurve{Points: points, FetchedAt: fetchedAt}, nil
}

// IsEmpty devuelve true si la curva no tiene puntos.
func (c PayoffCurve) IsEmpty() bool {
	return len(c.Points) == 0
}

// XY devuelve la curva como dos slices paralelos.
func (c PayoffCurve) XY() (xs, ys []float64) {
	xs = make([]float64, len(c.Points))
	ys = make([]float64, len(c.Points))
	for i, p := range c.Points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return xs, ys
}

// MaxProfit devuelve el mayor P&L de la curva (0 si está vacía).
func (c PayoffCurve) MaxProfit() float64 {
	if c.IsEmpty() {
		return 0
	}
	best := c.Points[0].Y
	for _, p := range c.Points[1:] {
		best = math.Max(best, p.Y)
	}
	return best
}

// MaxLoss devuelve el menor P&L de la curva (0 si está vacía).
func (c PayoffCurve) MaxLoss() float64 {
	if c.IsEmpty() {
		return 0
	}
	worst := c.Points[0].Y
	for _, p := range c.Points[1:] {
		worst = math.Min(worst, p.Y)
	}
	return worst
}

// Breakevens devuelve los precios donde el P&L cruza cero, interpolando
// linealmente entre puntos consecutivos. Los puntos deben venir ordenados por X.
func (c PayoffCurve) Breakevens() []float64 {
	var out []float64
	for i := 1; i < len(c.Points); i++ {
		a, b := c.Points[i-1], c.Points[i]
		switch {
		case a.Y == 0:
			out = append(out, a.X)
		case (a.Y < 0) != (b.Y < 0) && b.Y != 0:
			t := a.Y / (a.Y - b.Y)
			out = append(out, a.X+t*(b.X-a.X))
		}
	}
	if n := len(c.Points); n > 0 && c.Points[n-1].Y == 0 {
		out = append(out, c.Points[n-1].X)
	}
	return out
}
