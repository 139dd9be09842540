package metrics

// prometheus.go — implementación de ports.Metrics sobre client_golang.
//
// Cada instancia usa su propio registry para que varias sesiones (o tests)
// no choquen en el registry global. Handler() expone /metrics.

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/legbook/internal/domain"
)

const namespace = "legbook"

// Prometheus agrupa los colectores del feed y de la sesión.
type Prometheus struct {
	registry *prometheus.Registry

	PriceUpdates     prometheus.Counter
	Instruments      prometheus.Gauge
	SnapshotsDropped prometheus.Counter
	StreamErrors     prometheus.Counter
	RemoteCommands   *prometheus.CounterVec   // labels: command, result
	RemoteDuration   *prometheus.HistogramVec // labels: command
	PayoffRefreshes  *prometheus.CounterVec   // labels: result
	PayoffDuration   prometheus.Histogram
	LegsTotal        prometheus.Gauge
	LegsDegraded     prometheus.Gauge
}

// NewPrometheus crea y registra todos los colectores, más los del runtime de Go.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),

		PriceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_updates_total",
			Help:      "Price messages applied to the chain",
		}),
		Instruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instruments",
			Help:      "Instruments in the last price message",
		}),
		SnapshotsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_dropped_total",
			Help:      "Chain snapshots replaced before a slow subscriber read them",
		}),
		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Market stream transport errors",
		}),
		RemoteCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_commands_total",
			Help:      "Select/deselect commands sent to the pricing service",
		}, []string{"command", "result"}),
		RemoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_command_duration_seconds",
			Help:      "Latency of select/deselect commands",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		PayoffRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payoff_refreshes_total",
			Help:      "Payoff curve requests",
		}, []string{"result"}),
		PayoffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payoff_refresh_duration_seconds",
			Help:      "Latency of payoff curve requests",
			Buckets:   prometheus.DefBuckets,
		}),
		LegsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "legs",
			Help:      "Legs in the position set",
		}),
		LegsDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "legs_degraded",
			Help:      "Legs whose remote mirror may diverge",
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.PriceUpdates,
		p.Instruments,
		p.SnapshotsDropped,
		p.StreamErrors,
		p.RemoteCommands,
		p.RemoteDuration,
		p.PayoffRefreshes,
		p.PayoffDuration,
		p.LegsTotal,
		p.LegsDegraded,
	)
	return p
}

// Registry devuelve el registry propio.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler devuelve el handler HTTP de /metrics.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) PriceUpdate(instruments int) {
	p.PriceUpdates.Inc()
	p.Instruments.Set(float64(instruments))
}

func (p *Prometheus) SnapshotDropped() { p.SnapshotsDropped.Inc() }

func (p *Prometheus) StreamError() { p.StreamErrors.Inc() }

func (p *Prometheus) RemoteCommand(cmd domain.CommandType, ok bool, d time.Duration) {
	p.RemoteCommands.WithLabelValues(string(cmd), result(ok)).Inc()
	p.RemoteDuration.WithLabelValues(string(cmd)).Observe(d.Seconds())
}

func (p *Prometheus) PayoffRefresh(ok bool, d time.Duration) {
	p.PayoffRefreshes.WithLabelValues(result(ok)).Inc()
	p.PayoffDuration.Observe(d.Seconds())
}

func (p *Prometheus) Legs(total, degraded int) {
	p.LegsTotal.Set(float64(total))
	p.LegsDegraded.Set(float64(degraded))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
