// Package climate retrieves per-district climate hazard metrics from the
// climate data API.
package climate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seamark-analytics/climrisk/internal/district"
	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/observability"
	"github.com/seamark-analytics/climrisk/internal/resilience"
)

// errNotFound marks a district the API has no boundary or data for. It is
// not transient and not a failure: the caller records the metric as absent.
var errNotFound = eris.New("climate: no data for district")

// Options configures the climate API client.
type Options struct {
	BaseURL           string
	APIKey            string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Concurrency       int
	Retry             resilience.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
}

// DefaultOptions returns client options suitable for the public API tier.
func DefaultOptions() Options {
	return Options{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		Concurrency:       8,
		Retry:             resilience.DefaultRetryConfig(),
		Breaker:           resilience.DefaultCircuitBreakerConfig(),
	}
}

// Client fetches hazard metrics for districts. All requests share one rate
// limiter and one circuit breaker; per-request failures are retried with
// backoff, and districts that still fail land in the dead letter queue
// rather than aborting the whole table.
type Client struct {
	base    *url.URL
	apiKey  string
	ua      string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	workers int
	metrics *observability.Metrics

	mu  sync.Mutex
	dlq []resilience.DLQEntry
}

// NewClient creates a Client. metrics may be nil.
func NewClient(opts Options, metrics *observability.Metrics) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, eris.New("climate: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "climate: parse base URL %s", opts.BaseURL)
	}
	d := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = d.RequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = d.Burst
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = d.Concurrency
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "climrisk/1.0"
	}

	return &Client{
		base:    base,
		apiKey:  opts.APIKey,
		ua:      opts.UserAgent,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker: resilience.NewCircuitBreaker(opts.Breaker),
		retry:   opts.Retry,
		workers: opts.Concurrency,
		metrics: metrics,
	}, nil
}

// DeadLetters returns a copy of the accumulated dead letter entries.
func (c *Client) DeadLetters() []resilience.DLQEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]resilience.DLQEntry, len(c.dlq))
	copy(out, c.dlq)
	return out
}

type metricResponse struct {
	DistrictID string  `json:"district_id"`
	Value      float64 `json:"value"`
}

// FetchTable retrieves the metric for every district and folds the results
// into a table keyed by district ID. Every district gets exactly one entry:
// a value, or an absent marker when the API has no data for it or its
// retrieval failed permanently. Workers write disjoint slots, so the fold
// needs no shared accumulator.
func (c *Client) FetchTable(ctx context.Context, districts []model.District, hazard model.Hazard, period model.Period) (model.MetricTable, error) {
	results := make([]model.RawMetric, len(districts))
	counties := countyOutlines(districts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range districts {
		g.Go(func() error {
			m, err := c.fetchOne(gctx, &districts[i], counties[districts[i].County], hazard, period)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := make(model.MetricTable, len(results))
	for _, m := range results {
		table[m.DistrictID] = m
	}
	return table, nil
}

// fetchOne retrieves one district's metric. Lookup order is by district ID;
// if the API does not know the district boundary, it falls back to a point
// sample at the district centroid, or at the centroid of the county outline
// when the district has no usable geometry. Only context cancellation is
// returned as an error; everything else resolves to a value or an absent
// metric.
func (c *Client) fetchOne(ctx context.Context, d *model.District, county geom.Polygonal, hazard model.Hazard, period model.Period) (model.RawMetric, error) {
	v, err := c.getWithRetry(ctx, c.districtURL(d.ID, hazard, period), hazard)
	if err == nil {
		c.countRequest(hazard, "success")
		return model.Metric(d.ID, hazard, period, v), nil
	}
	if ctx.Err() != nil {
		return model.RawMetric{}, eris.Wrap(ctx.Err(), "climate: fetch canceled")
	}

	if pt, src, ok := fallbackPoint(d, county); eris.Is(err, errNotFound) && ok {
		v, perr := c.getWithRetry(ctx, c.pointURL(pt.X, pt.Y, hazard, period), hazard)
		if perr == nil {
			c.countRequest(hazard, "fallback")
			zap.L().Debug("climate: point-sample fallback",
				zap.String("district", d.ID),
				zap.String("source", src),
				zap.String("hazard", string(hazard)))
			return model.Metric(d.ID, hazard, period, v), nil
		}
		if ctx.Err() != nil {
			return model.RawMetric{}, eris.Wrap(ctx.Err(), "climate: fetch canceled")
		}
		err = perr
	}

	if eris.Is(err, errNotFound) {
		c.countRequest(hazard, "absent")
		return model.AbsentMetric(d.ID, hazard, period), nil
	}

	c.countRequest(hazard, "error")
	c.deadLetter(d.ID, hazard, period, err)
	zap.L().Error("climate: retrieval failed, recording absent",
		zap.String("district", d.ID),
		zap.String("hazard", string(hazard)),
		zap.String("period", string(period)),
		zap.Error(err))
	return model.AbsentMetric(d.ID, hazard, period), nil
}

// countyOutlines merges member district polygons into one outline per
// county, the coarser query area used when a district's own lookup and
// geometry both fail.
func countyOutlines(districts []model.District) map[string]geom.Polygonal {
	byCounty := make(map[string][]geom.Polygonal)
	for i := range districts {
		d := &districts[i]
		if d.County == "" || d.Geom == nil {
			continue
		}
		byCounty[d.County] = append(byCounty[d.County], d.Geom)
	}
	out := make(map[string]geom.Polygonal, len(byCounty))
	for county, polys := range byCounty {
		out[county] = district.UnionAll(polys)
	}
	return out
}

// fallbackPoint picks the coordinate for a degraded point-sample query.
func fallbackPoint(d *model.District, county geom.Polygonal) (geom.Point, string, bool) {
	if d.Geom != nil {
		return d.Geom.Centroid(), "district-centroid", true
	}
	if county != nil {
		return county.Centroid(), "county-outline", true
	}
	return geom.Point{}, "", false
}

func (c *Client) getWithRetry(ctx context.Context, u string, hazard model.Hazard) (float64, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (float64, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, eris.Wrap(err, "climate: rate limiter")
		}
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (float64, error) {
			return c.get(ctx, u, hazard)
		})
	})
}

func (c *Client) get(ctx context.Context, u string, hazard model.Hazard) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, eris.Wrap(err, "climate: build request")
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.metrics != nil {
		c.metrics.ClimateAPIDuration.WithLabelValues(string(hazard)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return 0, eris.Wrap(err, "climate: request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return 0, errNotFound
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		io.Copy(io.Discard, resp.Body)
		return 0, resilience.NewTransientError(
			fmt.Errorf("climate: status %d from %s", resp.StatusCode, u), resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, eris.Errorf("climate: status %d from %s: %s", resp.StatusCode, u, body)
	}

	var mr metricResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return 0, eris.Wrapf(err, "climate: decode response from %s", u)
	}
	return mr.Value, nil
}

func (c *Client) districtURL(id string, hazard model.Hazard, period model.Period) string {
	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, "v1", "hazards", string(hazard), "districts", id)
	q := u.Query()
	q.Set("period", string(period))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) pointURL(x, y float64, hazard model.Hazard, period model.Period) string {
	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, "v1", "hazards", string(hazard), "point")
	q := u.Query()
	q.Set("period", string(period))
	q.Set("lon", strconv.FormatFloat(x, 'f', -1, 64))
	q.Set("lat", strconv.FormatFloat(y, 'f', -1, 64))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) countRequest(hazard model.Hazard, outcome string) {
	if c.metrics != nil {
		c.metrics.ClimateRequests.WithLabelValues(string(hazard), outcome).Inc()
	}
}

func (c *Client) deadLetter(districtID string, hazard model.Hazard, period model.Period, err error) {
	now := time.Now()
	entry := resilience.DLQEntry{
		ID:           fmt.Sprintf("%s/%s/%s", districtID, hazard, period),
		DistrictID:   districtID,
		Hazard:       hazard,
		Period:       period,
		Error:        err.Error(),
		ErrorType:    resilience.ClassifyError(err),
		RetryCount:   0,
		MaxRetries:   c.retry.MaxAttempts,
		NextRetryAt:  now.Add(time.Hour),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	c.mu.Lock()
	c.dlq = append(c.dlq, entry)
	n := len(c.dlq)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.ClimateDeadLetters.Set(float64(n))
	}
}
