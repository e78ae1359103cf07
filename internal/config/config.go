package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seamark-analytics/climrisk/internal/district"
	"github.com/seamark-analytics/climrisk/internal/summary"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Districts DistrictsConfig `yaml:"districts" mapstructure:"districts"`
	Climate   ClimateConfig   `yaml:"climate" mapstructure:"climate"`
	Layers    LayersConfig    `yaml:"layers" mapstructure:"layers"`
	Rasters   RastersConfig   `yaml:"rasters" mapstructure:"rasters"`
	Summary   SummaryConfig   `yaml:"summary" mapstructure:"summary"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DistrictsConfig locates the master district layer.
type DistrictsConfig struct {
	Shapefile string          `yaml:"shapefile" mapstructure:"shapefile"`
	Fields    district.Fields `yaml:"fields" mapstructure:"fields"`
}

// ClimateConfig configures the climate data API client.
type ClimateConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`

	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`

	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LayersConfig locates the polygon extent layers for area-based hazards.
type LayersConfig struct {
	FloodProjected string `yaml:"flood_projected" mapstructure:"flood_projected"`
	SLRProjected   string `yaml:"slr_projected" mapstructure:"slr_projected"`
	SLRHistorical  string `yaml:"slr_historical" mapstructure:"slr_historical"`
}

// RastersConfig locates the gridded hazard rasters.
type RastersConfig struct {
	WildfireProjected  string `yaml:"wildfire_projected" mapstructure:"wildfire_projected"`
	WildfireHistorical string `yaml:"wildfire_historical" mapstructure:"wildfire_historical"`
	WildfireVar        string `yaml:"wildfire_var" mapstructure:"wildfire_var"`
}

// SummaryConfig configures the summary aggregation stage.
type SummaryConfig struct {
	MissingPolicy string `yaml:"missing_policy" mapstructure:"missing_policy"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields required for the given mode are set.
// Modes: "score" (full pipeline), "serve" (HTTP API), "export" (read-only
// store access).
func (c *Config) Validate(mode string) error {
	var missing []string

	checkStore := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "score":
		checkStore()
		if c.Districts.Shapefile == "" {
			missing = append(missing, "districts.shapefile is required")
		}
		if c.Climate.BaseURL == "" {
			missing = append(missing, "climate.base_url is required")
		}
		if c.Climate.Concurrency < 1 || c.Climate.Concurrency > 64 {
			missing = append(missing, "climate.concurrency must be between 1 and 64")
		}
		if _, err := summary.ParseMissingPolicy(c.Summary.MissingPolicy); err != nil {
			missing = append(missing, "summary.missing_policy must be fail or zero-flag")
		}
	case "serve":
		checkStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "export":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLIMRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "climrisk.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("districts.fields.id", "DIST_ID")
	v.SetDefault("districts.fields.name", "NAME")
	v.SetDefault("districts.fields.county", "COUNTY")
	v.SetDefault("districts.fields.type", "DIST_TYPE")
	v.SetDefault("districts.fields.enrollment", "ENROLL")
	v.SetDefault("climate.user_agent", "climrisk/1.0")
	v.SetDefault("climate.timeout_secs", 30)
	v.SetDefault("climate.requests_per_second", 5)
	v.SetDefault("climate.burst", 5)
	v.SetDefault("climate.concurrency", 8)
	v.SetDefault("climate.max_retries", 3)
	v.SetDefault("climate.initial_backoff_ms", 500)
	v.SetDefault("climate.max_backoff_ms", 30000)
	v.SetDefault("climate.multiplier", 2.0)
	v.SetDefault("climate.jitter_fraction", 0.25)
	v.SetDefault("climate.failure_threshold", 5)
	v.SetDefault("climate.reset_timeout_secs", 30)
	v.SetDefault("rasters.wildfire_var", "whp")
	v.SetDefault("summary.missing_policy", "zero-flag")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
