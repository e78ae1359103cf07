package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seamark-analytics/climrisk/internal/climate"
	"github.com/seamark-analytics/climrisk/internal/district"
	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/observability"
	"github.com/seamark-analytics/climrisk/internal/pipeline"
	"github.com/seamark-analytics/climrisk/internal/raster"
	"github.com/seamark-analytics/climrisk/internal/resilience"
	"github.com/seamark-analytics/climrisk/internal/store"
	"github.com/seamark-analytics/climrisk/internal/summary"
)

// pipelineEnv holds the initialized store, climate client, metrics, and
// pipeline needed by the score/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Climate  *climate.Client
	Pipeline *pipeline.Pipeline
	Metrics  *observability.Metrics
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "climrisk.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, climate client, and metrics, and builds
// the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	metrics := observability.NewMetrics()

	opts := climate.DefaultOptions()
	opts.BaseURL = cfg.Climate.BaseURL
	opts.APIKey = cfg.Climate.APIKey
	if cfg.Climate.UserAgent != "" {
		opts.UserAgent = cfg.Climate.UserAgent
	}
	if cfg.Climate.TimeoutSecs > 0 {
		opts.Timeout = time.Duration(cfg.Climate.TimeoutSecs) * time.Second
	}
	if cfg.Climate.RequestsPerSecond > 0 {
		opts.RequestsPerSecond = cfg.Climate.RequestsPerSecond
	}
	if cfg.Climate.Burst > 0 {
		opts.Burst = cfg.Climate.Burst
	}
	if cfg.Climate.Concurrency > 0 {
		opts.Concurrency = cfg.Climate.Concurrency
	}
	opts.Retry = resilience.FromRetryConfig(
		cfg.Climate.MaxRetries, cfg.Climate.InitialBackoffMs, cfg.Climate.MaxBackoffMs,
		cfg.Climate.Multiplier, cfg.Climate.JitterFraction)
	opts.Breaker = resilience.FromCircuitConfig(cfg.Climate.FailureThreshold, cfg.Climate.ResetTimeoutSecs)

	cc, err := climate.NewClient(opts, metrics)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	policy, err := summary.ParseMissingPolicy(cfg.Summary.MissingPolicy)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipelineEnv{
		Store:    st,
		Climate:  cc,
		Pipeline: pipeline.New(st, cc, policy, metrics),
		Metrics:  metrics,
	}, nil
}

// loadDistricts reads the district shapefile named in config.
func loadDistricts() ([]model.District, *district.LoadReport, error) {
	fields := cfg.Districts.Fields
	if fields.ID == "" {
		fields = district.DefaultFields()
	}
	districts, report, err := district.LoadShapefile(cfg.Districts.Shapefile, fields)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("districts loaded",
		zap.Int("count", len(districts)),
		zap.Int("repaired", len(report.Repaired)),
		zap.Int("unrepairable", len(report.Unrepairable)),
	)
	return districts, report, nil
}

// loadSources reads the hazard extent layers and wildfire rasters named in
// config.
func loadSources() (pipeline.Sources, error) {
	var src pipeline.Sources
	var err error

	if src.FloodProjected, err = district.LoadExtentsGeoJSON(cfg.Layers.FloodProjected); err != nil {
		return src, eris.Wrap(err, "load flood extent layer")
	}
	if src.SLRProjected, err = district.LoadExtentsGeoJSON(cfg.Layers.SLRProjected); err != nil {
		return src, eris.Wrap(err, "load slr projected layer")
	}
	if src.SLRHistorical, err = district.LoadExtentsGeoJSON(cfg.Layers.SLRHistorical); err != nil {
		return src, eris.Wrap(err, "load slr historical layer")
	}

	if src.WildfireProjected, err = raster.LoadNetCDF(cfg.Rasters.WildfireProjected, cfg.Rasters.WildfireVar); err != nil {
		return src, eris.Wrap(err, "load projected wildfire raster")
	}
	if src.WildfireHistorical, err = raster.LoadNetCDF(cfg.Rasters.WildfireHistorical, cfg.Rasters.WildfireVar); err != nil {
		return src, eris.Wrap(err, "load historical wildfire raster")
	}

	zap.L().Info("hazard sources loaded",
		zap.Int("flood_extents", len(src.FloodProjected)),
		zap.Int("slr_projected_extents", len(src.SLRProjected)),
		zap.Int("slr_historical_extents", len(src.SLRHistorical)),
	)
	return src, nil
}
