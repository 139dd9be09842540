package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/legbook/internal/domain"
)

const defaultChainRows = 15

// Console implementa ports.Notifier.
type Console struct {
	out       io.Writer
	table     bool
	chainRows int // máximo de strikes mostrados, centrados en el spot
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool, chainRows int) *Console {
	return NewConsoleWriter(os.Stdout, table, chainRows)
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer, table bool, chainRows int) *Console {
	if chainRows <= 0 {
		chainRows = defaultChainRows
	}
	return &Console{out: w, table: table, chainRows: chainRows}
}

// NotifyPositions imprime las piernas con su cotización y estado de sync.
func (c *Console) NotifyPositions(_ context.Context, legs []domain.LegStatus) error {
	now := time.Now().Format("15:04:05")
	if len(legs) == 0 {
		fmt.Fprintf(c.out, "[%s] no legs selected\n", now)
		return nil
	}

	degraded := 0
	for _, l := range legs {
		if l.Sync == domain.SyncDegraded {
			degraded++
		}
	}

	if !c.table {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%s] %d legs (degraded:%d)", now, len(legs), degraded)
		for _, l := range legs {
			fmt.Fprintf(&sb, " | %s %s @%s %s", l.Action, l.RemoteKey, fmtPrice(l.EntryPrice()), l.Sync)
		}
		fmt.Fprintln(c.out, sb.String())
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %d legs | degraded:%d\n", now, len(legs), degraded)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "ID", "Key", "Action", "Bid", "Ask", "Entry", "Sync")
	for i, l := range legs {
		sync := string(l.Sync)
		if l.LastError != "" {
			sync += " (" + truncate(l.LastError, 30) + ")"
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortID(l.ID),
			l.RemoteKey,
			string(l.Action),
			fmtPrice(l.BestBid),
			fmtPrice(l.BestAsk),
			fmtPrice(l.EntryPrice()),
			sync,
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Entry = ask para buy, bid para sell | - = sin cotización en el feed")
	return nil
}

// NotifyPayoff imprime las estadísticas de la curva de payoff.
func (c *Console) NotifyPayoff(_ context.Context, curve domain.PayoffCurve) error {
	if curve.IsEmpty() {
		fmt.Fprintln(c.out, "  no payoff curve yet")
		return nil
	}

	first, last := curve.Points[0], curve.Points[len(curve.Points)-1]
	fmt.Fprintf(c.out, "\n=== PAYOFF (%d points, %.0f → %.0f, %s) ===\n",
		len(curve.Points), first.X, last.X, curve.FetchedAt.Format("15:04:05"))
	fmt.Fprintf(c.out, "  Max profit: %s\n", fmtPnL(curve.MaxProfit()))
	fmt.Fprintf(c.out, "  Max loss:   %s\n", fmtPnL(curve.MaxLoss()))

	be := curve.Breakevens()
	if len(be) == 0 {
		fmt.Fprintln(c.out, "  Breakevens: none in range")
		return nil
	}
	labels := make([]string, len(be))
	for i, x := range be {
		labels[i] = fmt.Sprintf("%.2f", x)
	}
	fmt.Fprintf(c.out, "  Breakevens: %s\n", strings.Join(labels, ", "))
	return nil
}

// NotifyChain imprime la cadena de opciones alrededor del spot.
func (c *Console) NotifyChain(_ context.Context, chain domain.ChainSnapshot) error {
	if chain.IsEmpty() {
		fmt.Fprintln(c.out, "  no market data yet")
		return nil
	}

	if f := chain.Futures; f != nil {
		fmt.Fprintf(c.out, "\n%s  spot:%s  mark:%s  bid:%s  ask:%s\n",
			f.Symbol, f.Spot.StringFixed(2), f.Mark.StringFixed(2), fmtPrice(f.BestBid), fmtPrice(f.BestAsk))
	}

	rows := visibleRows(chain, c.chainRows)
	table := tablewriter.NewWriter(c.out)
	table.Header("Call Bid", "Call Ask", "Strike", "Put Bid", "Put Ask")
	for _, row := range rows {
		table.Append(
			sidePrice(row.Call, true),
			sidePrice(row.Call, false),
			fmt.Sprintf("%d", row.Strike),
			sidePrice(row.Put, true),
			sidePrice(row.Put, false),
		)
	}
	table.Render()

	if len(rows) < len(chain.Rows) {
		fmt.Fprintf(c.out, "  showing %d of %d strikes\n", len(rows), len(chain.Rows))
	}
	return nil
}

// NotifyDivergences imprime las diferencias entre el espejo local y el remoto.
func (c *Console) NotifyDivergences(_ context.Context, divs []domain.Divergence) error {
	if len(divs) == 0 {
		fmt.Fprintln(c.out, "  remote mirror in sync")
		return nil
	}

	fmt.Fprintf(c.out, "\n⚠ %d divergences with the pricing service\n", len(divs))
	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Kind", "Expected", "Remote")
	for _, d := range divs {
		table.Append(d.Symbol, string(d.Kind), orDash(string(d.Expected)), orDash(string(d.Remote)))
	}
	table.Render()
	return nil
}

// --- helpers ---

// visibleRows devuelve como mucho max rows centrados en el strike más
// cercano al spot del futuro. Sin futuro, los primeros max.
func visibleRows(chain domain.ChainSnapshot, max int) []domain.OptionRow {
	rows := chain.Rows
	if len(rows) <= max {
		return rows
	}

	center := 0
	if f := chain.Futures; f != nil && !f.Spot.IsZero() {
		best := decimal.Decimal{}
		for i, row := range rows {
			dist := decimal.NewFromInt(row.Strike).Sub(f.Spot).Abs()
			if i == 0 || dist.LessThan(best) {
				best = dist
				center = i
			}
		}
	}

	start := center - max/2
	if start < 0 {
		start = 0
	}
	if start+max > len(rows) {
		start = len(rows) - max
	}
	return rows[start : start+max]
}

func sidePrice(inst *domain.Instrument, bid bool) string {
	if inst == nil {
		return "-"
	}
	if bid {
		return fmtPrice(inst.BestBid)
	}
	return fmtPrice(inst.BestAsk)
}

func fmtPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

func fmtPnL(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
