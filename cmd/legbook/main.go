package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alejandrodnm/legbook/config"
	"github.com/alejandrodnm/legbook/internal/adapters/metrics"
	"github.com/alejandrodnm/legbook/internal/adapters/notify"
	"github.com/alejandrodnm/legbook/internal/adapters/pricing"
	"github.com/alejandrodnm/legbook/internal/adapters/storage"
	"github.com/alejandrodnm/legbook/internal/adapters/stream"
	"github.com/alejandrodnm/legbook/internal/application/feed"
	"github.com/alejandrodnm/legbook/internal/application/session"
	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/alejandrodnm/legbook/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables (default: compact 1-line)")
	noJournal := flag.Bool("no-journal", false, "do not record remote commands in SQLite")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *noJournal {
		cfg.Storage.DSN = "none"
	}
	setupLogger(cfg.Log)

	loc, _ := cfg.Location() // validado en config.Load

	slog.Info("legbook starting",
		"config", *configPath,
		"feed", cfg.Feed.URL,
		"pricing", cfg.Pricing.BaseURL,
		"timeout", cfg.PricingTimeout(),
		"timezone", loc.String(),
		"journal", cfg.Storage.DSN,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var m ports.Metrics = ports.NopMetrics{}
	if cfg.Metrics.Addr != "" {
		prom := metrics.NewPrometheus()
		m = prom
		srv := serveMetrics(cfg.Metrics.Addr, prom.Handler())
		defer shutdown(srv)
	}

	var journal ports.SyncJournal
	if cfg.Storage.DSN != "none" {
		j, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer j.Close()
		journal = j
	}

	client := pricing.NewClient(cfg.Pricing.BaseURL, cfg.Pricing.RatePerSecond, cfg.PricingTimeout())
	ws := stream.NewWSStream(cfg.Feed.URL, loc)
	notifier := notify.NewConsole(cfg.Session.Table || *table, cfg.Session.ChainRows)

	market := feed.New(m)
	mirror := session.NewMirror(client, domain.LegKeyFormatter{Location: loc}, journal, m)
	payoff := session.NewPayoffSession(client, journal, m)
	sess := session.New(session.Config{
		Underlying: cfg.Session.Underlying,
		Expiry:     cfg.Session.Expiry,
	}, mirror, payoff, client, m)

	var wg sync.WaitGroup
	snapshots := market.Subscribe()
	curves := payoff.Subscribe()

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := market.Run(ctx, ws); err != nil {
			slog.Error("market feed stopped, last snapshot stays visible", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx, snapshots); err != nil {
			slog.Error("session exited with error", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		for curve := range curves {
			if err := notifier.NotifyPayoff(ctx, curve); err != nil {
				slog.Warn("notifier error", "err", err)
			}
		}
	}()

	if cfg.Pricing.LotSize > 0 {
		if err := sess.SetLotSize(ctx, cfg.Pricing.LotSize); err != nil {
			slog.Warn("initial lot size not applied", "err", err)
		}
	}

	r := &repl{sess: sess, notifier: notifier, out: os.Stdout, underlying: cfg.Session.Underlying}
	if err := r.run(ctx, os.Stdin); errors.Is(err, io.EOF) {
		slog.Info("stdin closed, running until interrupted")
		<-ctx.Done()
	}

	cancel()
	market.Close()
	payoff.Close()
	wg.Wait()

	slog.Info("legbook stopped cleanly")
}

func serveMetrics(addr string, h http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
