package storage

// sqlite.go — journal de auditoría del espejo remoto.
//
// Estrategia:
//   - `sync_events`: una fila por comando select/deselect enviado, con su resultado.
//   - `payoff_snapshots`: una fila por curva publicada, solo si cambió respecto a la
//     anterior (cache en memoria del último hash de puntos).
//   - Prune automático al arrancar: eventos > 7d, curvas > 2d.
//
// El journal nunca se lee para reconstruir posiciones; es solo para diagnóstico.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/legbook/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Un comando remoto por fila
CREATE TABLE IF NOT EXISTS sync_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    leg_id      TEXT    NOT NULL,
    command     TEXT    NOT NULL,
    symbol      TEXT    NOT NULL,
    position    TEXT    NOT NULL,
    ok          INTEGER NOT NULL DEFAULT 0,
    error       TEXT    NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    at_ms       INTEGER NOT NULL
);

-- Curvas de payoff publicadas, deduplicadas por contenido
CREATE TABLE IF NOT EXISTS payoff_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    fetched_ms  INTEGER NOT NULL,
    points      INTEGER NOT NULL,
    max_profit  REAL    NOT NULL DEFAULT 0,
    max_loss    REAL    NOT NULL DEFAULT 0,
    breakevens  TEXT    NOT NULL DEFAULT '[]',
    xy          TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_at    ON sync_events(at_ms DESC);
CREATE INDEX IF NOT EXISTS idx_sync_sym   ON sync_events(symbol);
CREATE INDEX IF NOT EXISTS idx_payoff_at  ON payoff_snapshots(fetched_ms DESC);
`

const (
	retentionEvents = 7 * 24 * time.Hour
	retentionCurves = 2 * 24 * time.Hour
)

// SQLiteJournal implementa ports.SyncJournal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db       *sql.DB
	mu       sync.Mutex
	lastHash uint64 // hash de la última curva guardada
}

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	j.warmCache(context.Background())
	return j, nil
}

// RecordSync guarda el resultado de un comando remoto.
func (j *SQLiteJournal) RecordSync(ctx context.Context, ev domain.SyncEvent) error {
	ok := 0
	if ev.OK {
		ok = 1
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_events (leg_id, command, symbol, position, ok, error, duration_ms, at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.LegID, string(ev.Command), ev.Symbol, string(ev.Position),
		ok, ev.Error, ev.DurationMS, at.UnixMilli(),
	); err != nil {
		return fmt.Errorf("storage.RecordSync: insert %s: %w", ev.Symbol, err)
	}
	return nil
}

// RecordPayoff guarda la curva si difiere de la última guardada.
func (j *SQLiteJournal) RecordPayoff(ctx context.Context, curve domain.PayoffCurve) error {
	if curve.IsEmpty() {
		return nil
	}
	h := curveHash(curve)

	j.mu.Lock()
	defer j.mu.Unlock()
	if h == j.lastHash {
		return nil // misma curva — la mayoría de refrescos tras un tick terminan aquí
	}

	xs, ys := curve.XY()
	xy, err := json.Marshal(struct {
		X []float64 `json:"x"`
		Y []float64 `json:"y"`
	}{xs, ys})
	if err != nil {
		return fmt.Errorf("storage.RecordPayoff: marshal points: %w", err)
	}
	be, err := json.Marshal(nonNil(curve.Breakevens()))
	if err != nil {
		return fmt.Errorf("storage.RecordPayoff: marshal breakevens: %w", err)
	}

	fetched := curve.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO payoff_snapshots (fetched_ms, points, max_profit, max_loss, breakevens, xy)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fetched.UnixMilli(), len(curve.Points), curve.MaxProfit(), curve.MaxLoss(), string(be), string(xy),
	); err != nil {
		return fmt.Errorf("storage.RecordPayoff: insert: %w", err)
	}
	j.lastHash = h
	return nil
}

// RecentSyncEvents devuelve los últimos limit eventos, más recientes primero.
func (j *SQLiteJournal) RecentSyncEvents(ctx context.Context, limit int) ([]domain.SyncEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT leg_id, command, symbol, position, ok, error, duration_ms, at_ms
		FROM sync_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentSyncEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.SyncEvent
	for rows.Next() {
		var (
			ev           domain.SyncEvent
			command, pos string
			ok           int
			atMS         int64
		)
		if err := rows.Scan(&ev.LegID, &command, &ev.Symbol, &pos, &ok, &ev.Error, &ev.DurationMS, &atMS); err != nil {
			return nil, fmt.Errorf("storage.RecentSyncEvents: scan row: %w", err)
		}
		ev.Command = domain.CommandType(command)
		ev.Position = domain.Action(pos)
		ev.OK = ok == 1
		ev.At = time.UnixMilli(atMS)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// --- helpers internos ---

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	now := time.Now()
	j.db.ExecContext(ctx, `DELETE FROM sync_events WHERE at_ms < ?`, now.Add(-retentionEvents).UnixMilli())
	j.db.ExecContext(ctx, `DELETE FROM payoff_snapshots WHERE fetched_ms < ?`, now.Add(-retentionCurves).UnixMilli())
}

// warmCache precarga el hash de la última curva guardada, evitando duplicarla
// en el primer refresco tras un reinicio.
func (j *SQLiteJournal) warmCache(ctx context.Context) {
	var raw string
	err := j.db.QueryRowContext(ctx,
		`SELECT xy FROM payoff_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&raw)
	if err != nil {
		return
	}
	var xy struct {
		X []float64 `json:"x"`
		Y []float64 `json:"y"`
	}
	if json.Unmarshal([]byte(raw), &xy) != nil || len(xy.X) != len(xy.Y) {
		return
	}
	curve := domain.PayoffCurve{Points: make([]domain.PayoffPoint, len(xy.X))}
	for i := range xy.X {
		curve.Points[i] = domain.PayoffPoint{X: xy.X[i], Y: xy.Y[i]}
	}

	j.mu.Lock()
	j.lastHash = curveHash(curve)
	j.mu.Unlock()
}

// curveHash resume los puntos de la curva; FetchedAt no participa.
func curveHash(c domain.PayoffCurve) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, p := range c.Points {
		for _, v := range [2]float64{p.X, p.Y} {
			bits := math.Float64bits(v)
			for i := range buf {
				buf[i] = byte(bits >> (8 * i))
			}
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}

func nonNil(xs []float64) []float64 {
	if xs == nil {
		return []float64{}
	}
	return xs
}
