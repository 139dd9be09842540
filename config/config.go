package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de legbook.
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Pricing PricingConfig `yaml:"pricing"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// FeedConfig controla la conexión al stream de mercado.
type FeedConfig struct {
	URL      string `yaml:"url"`      // websocket con los mensajes "prices"
	Timezone string `yaml:"timezone"` // zona del calendario de vencimientos; vacío = local
}

// PricingConfig controla el cliente del servicio de pricing.
type PricingConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"` // timeout de transporte por request
	RatePerSecond  float64 `yaml:"rate_per_second"`
	LotSize        float64 `yaml:"lot_size"` // se envía al arrancar si > 0
}

// SessionConfig contiene los valores por defecto de las piernas.
type SessionConfig struct {
	Underlying string `yaml:"underlying"` // si el símbolo no trae subyacente
	Expiry     string `yaml:"expiry"`     // YYYY-MM-DD, si el símbolo no trae vencimiento
	Table      bool   `yaml:"table"`      // salida en tabla en vez de compacta
	ChainRows  int    `yaml:"chain_rows"` // strikes visibles alrededor del spot
}

// StorageConfig controla dónde se guarda el journal de sincronización.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:", o "none" para desactivar
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // ej. ":9102"; vacío = sin endpoint
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
// Si path no existe se usan solo entorno y defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PricingTimeout devuelve el timeout del cliente HTTP como time.Duration.
func (c *Config) PricingTimeout() time.Duration {
	return time.Duration(c.Pricing.TimeoutSeconds) * time.Second
}

// Location devuelve la zona horaria de los vencimientos.
func (c *Config) Location() (*time.Location, error) {
	if c.Feed.Timezone == "" || c.Feed.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Feed.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Feed.Timezone, err)
	}
	return loc, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("PRICING_BASE_URL"); v != "" {
		cfg.Pricing.BaseURL = v
	}
	if v := os.Getenv("JOURNAL_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "ws://localhost:8001/ws"
	}
	if cfg.Pricing.BaseURL == "" {
		cfg.Pricing.BaseURL = "http://localhost:8001"
	}
	if cfg.Pricing.TimeoutSeconds <= 0 {
		cfg.Pricing.TimeoutSeconds = 10
	}
	if cfg.Pricing.RatePerSecond <= 0 {
		cfg.Pricing.RatePerSecond = 20
	}
	if cfg.Session.Underlying == "" {
		cfg.Session.Underlying = "BTC"
	}
	if cfg.Session.ChainRows <= 0 {
		cfg.Session.ChainRows = 15
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "legbook.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
