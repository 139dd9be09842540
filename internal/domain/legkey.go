package domain

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// ExpiryLayout es el formato en que se guarda el vencimiento de una selección.
	ExpiryLayout = "2006-01-02"

	legKeyDateLayout = "020106" // DDMMYY
)

// expiryLayouts son los formatos aceptados para el vencimiento guardado.
// Los que no llevan zona se interpretan en la zona local del formatter.
var expiryLayouts = []string{
	ExpiryLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// LegKeyFormatter construye la clave remota {C|P}-{UNDERLYING}-{STRIKE}-{DDMMYY}.
//
// El vencimiento se formatea en calendario local: una fecha sin hora se lee en
// Location y una marca con offset se convierte a Location antes de formatear.
// Nunca se pasa por UTC, que desplaza el día cerca de medianoche.
type LegKeyFormatter struct {
	Location *time.Location // nil = time.Local
}

// FormatLegKey formatea con la zona local del proceso.
func FormatLegKey(kind LegKind, underlying string, strike int64, expiry string) string {
	return LegKeyFormatter{}.Format(kind, underlying, strike, expiry)
}

// FormatSelection es un atajo para formatear una selección o posición.
func (f LegKeyFormatter) FormatSelection(s Selection) string {
	return f.Format(s.Kind, s.Underlying, s.Strike, s.Expiry)
}

// Format devuelve la clave remota. Es función pura de sus argumentos.
func (f LegKeyFormatter) Format(kind LegKind, underlying string, strike int64, expiry string) string {
	return kind.Prefix() + "-" + underlying + "-" + strconv.FormatInt(strike, 10) + "-" + f.formatExpiry(expiry)
}

func (f LegKeyFormatter) location() *time.Location {
	if f.Location == nil {
		return time.Local
	}
	return f.Location
}

// formatExpiry devuelve DDMMYY. Si la fecha no se puede leer, quita la
// puntuación del texto original y se queda con los últimos 6 caracteres.
func (f LegKeyFormatter) formatExpiry(raw string) string {
	raw = strings.TrimSpace(raw)
	loc := f.location()
	for _, layout := range expiryLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		return t.In(loc).Format(legKeyDateLayout)
	}

	fallback := stripPunctuation(raw)
	if len(fallback) > 6 {
		fallback = fallback[len(fallback)-6:]
	}
	slog.Warn("expiry not parseable, using raw fallback", "expiry", raw, "formatted", fallback)
	return fallback
}

func stripPunctuation(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
