// Package dataaccess maps logical data requests (daily ticks, fundamentals,
// derived metrics, universes) to object storage paths, reads them through the
// disk cache and reshapes the long artifacts into wide tables aligned to the
// trading calendar.
package dataaccess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"quantdl/internal/cache"
	"quantdl/internal/errors"
	"quantdl/internal/master"
	"quantdl/internal/storage"
	"quantdl/internal/table"
	"quantdl/pkg/contracts/domain"
)

// DefaultMaxConcurrency bounds the per-symbol fan-out of one request.
const DefaultMaxConcurrency = 10

// Client is the data access layer. Safe for concurrent use.
type Client struct {
	gateway        storage.Gateway
	cache          *cache.DiskCache
	securities     *master.SecurityMaster
	calendar       *master.CalendarMaster
	logger         *slog.Logger
	maxConcurrency int
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxConcurrency bounds concurrent per-symbol reads within one request.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// New builds a Client on top of a gateway and a disk cache.
func New(gw storage.Gateway, dc *cache.DiskCache, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		gateway:        gw,
		cache:          dc,
		logger:         logger,
		maxConcurrency: DefaultMaxConcurrency,
	}
	c.securities = master.NewSecurityMaster(gw, dc, logger)
	c.calendar = master.NewCalendarMaster(gw, dc, logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Securities exposes the security master for direct lookups.
func (c *Client) Securities() *master.SecurityMaster { return c.securities }

// Calendar exposes the trading calendar.
func (c *Client) Calendar() *master.CalendarMaster { return c.calendar }

// CacheStats reports disk cache counters.
func (c *Client) CacheStats() map[string]interface{} { return c.cache.Stats() }

// ClearCache drops all cached artifacts.
func (c *Client) ClearCache() error { return c.cache.Clear() }

// Fetch dispatches a DataSpec to the matching source.
func (c *Client) Fetch(ctx context.Context, spec domain.DataSpec, symbols []string, start, end time.Time) (*table.WideTable, error) {
	switch spec.Source {
	case domain.SourceTicks:
		return c.Ticks(ctx, symbols, spec.Field, start, end)
	case domain.SourceFundamentals:
		return c.Fundamentals(ctx, symbols, spec.Field, start, end)
	case domain.SourceMetrics:
		return c.Metrics(ctx, symbols, spec.Field, start, end)
	default:
		return nil, fmt.Errorf("unknown source category %q", spec.Source)
	}
}

// series is one symbol's observations before pivoting.
type series struct {
	symbol string
	dates  []time.Time
	values []float64
}

// Ticks returns one daily price field as a wide table: dates as rows, the
// requested symbols as columns in input order. Symbols that resolve to no
// record or no data are dropped with a warning.
func (c *Client) Ticks(ctx context.Context, symbols []string, field string, start, end time.Time) (*table.WideTable, error) {
	resolved, err := c.resolve(ctx, symbols, start)
	if err != nil {
		return nil, err
	}
	results, err := c.fetchAll(ctx, resolved, func(ctx context.Context, sym string, rec *domain.SecurityRecord) (*series, error) {
		return c.fetchTickSeries(ctx, sym, rec.SecurityID, field, start, end)
	})
	if err != nil {
		return nil, err
	}
	return c.pivot(ctx, "ticks", field, symbols, results, start, end)
}

// Fundamentals returns one as-reported concept (e.g. Revenue) as a wide
// table, keyed by filing as-of date.
func (c *Client) Fundamentals(ctx context.Context, symbols []string, concept string, start, end time.Time) (*table.WideTable, error) {
	resolved, err := c.resolve(ctx, symbols, start)
	if err != nil {
		return nil, err
	}
	results, err := c.fetchAll(ctx, resolved, func(ctx context.Context, sym string, rec *domain.SecurityRecord) (*series, error) {
		if rec.CIK == "" {
			c.logger.WarnContext(ctx, "symbol has no CIK, skipping", "symbol", sym)
			return nil, nil
		}
		return c.fetchFundamentalSeries(ctx, sym, rec.CIK, concept, start, end)
	})
	if err != nil {
		return nil, err
	}
	return c.pivot(ctx, "fundamentals", concept, symbols, results, start, end)
}

// Metrics returns one derived metric (e.g. pe_ratio) as a wide table.
func (c *Client) Metrics(ctx context.Context, symbols []string, metric string, start, end time.Time) (*table.WideTable, error) {
	resolved, err := c.resolve(ctx, symbols, start)
	if err != nil {
		return nil, err
	}
	results, err := c.fetchAll(ctx, resolved, func(ctx context.Context, sym string, rec *domain.SecurityRecord) (*series, error) {
		if rec.CIK == "" {
			c.logger.WarnContext(ctx, "symbol has no CIK, skipping", "symbol", sym)
			return nil, nil
		}
		return c.fetchMetricSeries(ctx, sym, rec.CIK, metric, start, end)
	})
	if err != nil {
		return nil, err
	}
	return c.pivot(ctx, "metrics", metric, symbols, results, start, end)
}

// Universe returns the symbol list of a named universe.
func (c *Client) Universe(ctx context.Context, name string) ([]string, error) {
	path := universePath(name)
	data, err := c.cache.GetOrFetch(ctx, path, func(ctx context.Context) ([]byte, error) {
		return c.gateway.Read(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	frame, err := table.ParseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse universe %s: %w", name, err)
	}
	symCol := frame.ColumnIndex("symbol")
	if symCol < 0 {
		return nil, fmt.Errorf("universe %s missing symbol column", name)
	}
	symbols := make([]string, 0, len(frame.Records))
	for _, rec := range frame.Records {
		if s := frame.Field(rec, symCol); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols, nil
}

// resolvedSymbol pairs a requested symbol with its point-in-time record.
type resolvedSymbol struct {
	symbol string
	record *domain.SecurityRecord
}

func (c *Client) resolve(ctx context.Context, symbols []string, asOf time.Time) ([]resolvedSymbol, error) {
	records, err := c.securities.ResolveBatch(ctx, symbols, asOf)
	if err != nil {
		return nil, err
	}
	out := make([]resolvedSymbol, 0, len(symbols))
	for i, rec := range records {
		if rec == nil {
			c.logger.WarnContext(ctx, "symbol did not resolve, skipping",
				"symbol", symbols[i],
				"as_of", asOf.Format(table.DateLayout),
			)
			continue
		}
		out = append(out, resolvedSymbol{symbol: symbols[i], record: rec})
	}
	if len(out) == 0 {
		return nil, errors.NotFound("securities", strings.Join(symbols, ","))
	}
	return out, nil
}

// fetchAll runs fetch for every resolved symbol with bounded concurrency.
// A nil series (expected absence) is dropped; real errors abort the request.
func (c *Client) fetchAll(ctx context.Context, resolved []resolvedSymbol, fetch func(ctx context.Context, sym string, rec *domain.SecurityRecord) (*series, error)) ([]*series, error) {
	results := make([]*series, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, rs := range resolved {
		g.Go(func() error {
			s, err := fetch(gctx, rs.symbol, rs.record)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := results[:0]
	for _, s := range results {
		if s != nil && len(s.dates) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

// pivot assembles per-symbol series into a calendar-aligned wide table.
func (c *Client) pivot(ctx context.Context, source, field string, requested []string, results []*series, start, end time.Time) (*table.WideTable, error) {
	if len(results) == 0 {
		return nil, errors.NotFound(source, field)
	}
	b := table.NewBuilder()
	for _, s := range results {
		b.AddSeries(s.symbol, s.dates, s.values)
	}
	wide := b.Build(requested)
	if dropped := len(requested) - wide.NumColumns(); dropped > 0 {
		c.logger.WarnContext(ctx, "some symbols returned no data",
			"source", source,
			"field", field,
			"requested", len(requested),
			"returned", wide.NumColumns(),
		)
	}
	days, err := c.calendar.TradingDays(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return wide.AlignDates(days), nil
}

// fetchTickSeries reads one security's daily history and extracts the field
// column. Missing objects are expected absence and come back as nil.
func (c *Client) fetchTickSeries(ctx context.Context, symbol, securityID, field string, start, end time.Time) (*series, error) {
	path := ticksPath(securityID)
	frame, err := c.readFrame(ctx, path)
	if err != nil {
		if errors.IsNotFound(err) {
			c.logger.WarnContext(ctx, "no tick data for security",
				"symbol", symbol, "security_id", securityID)
			return nil, nil
		}
		return nil, err
	}
	dateCol := frame.ColumnIndex("timestamp")
	valCol := frame.ColumnIndex(field)
	if dateCol < 0 || valCol < 0 {
		c.logger.WarnContext(ctx, "tick artifact missing column",
			"symbol", symbol, "field", field)
		return nil, nil
	}
	return frameSeries(frame, symbol, dateCol, valCol, start, end, nil)
}

func (c *Client) fetchFundamentalSeries(ctx context.Context, symbol, cik, concept string, start, end time.Time) (*series, error) {
	path := fundamentalsPath(cik)
	frame, err := c.readFrame(ctx, path)
	if err != nil {
		if errors.IsNotFound(err) {
			c.logger.WarnContext(ctx, "no fundamental data for security",
				"symbol", symbol, "cik", cik)
			return nil, nil
		}
		return nil, err
	}
	dateCol := frame.ColumnIndex("as_of_date")
	conceptCol := frame.ColumnIndex("concept")
	valCol := frame.ColumnIndex("value")
	if dateCol < 0 || conceptCol < 0 || valCol < 0 {
		c.logger.WarnContext(ctx, "fundamental artifact malformed", "symbol", symbol)
		return nil, nil
	}
	keep := func(rec []string) bool { return frame.Field(rec, conceptCol) == concept }
	return frameSeries(frame, symbol, dateCol, valCol, start, end, keep)
}

func (c *Client) fetchMetricSeries(ctx context.Context, symbol, cik, metric string, start, end time.Time) (*series, error) {
	path := metricsPath(cik)
	frame, err := c.readFrame(ctx, path)
	if err != nil {
		if errors.IsNotFound(err) {
			c.logger.WarnContext(ctx, "no metric data for security",
				"symbol", symbol, "cik", cik)
			return nil, nil
		}
		return nil, err
	}
	dateCol := frame.ColumnIndex("as_of_date")
	valCol := frame.ColumnIndex(metric)
	if dateCol < 0 || valCol < 0 {
		c.logger.WarnContext(ctx, "metric artifact missing column",
			"symbol", symbol, "metric", metric)
		return nil, nil
	}
	return frameSeries(frame, symbol, dateCol, valCol, start, end, nil)
}

func (c *Client) readFrame(ctx context.Context, path string) (*table.Frame, error) {
	data, err := c.cache.GetOrFetch(ctx, path, func(ctx context.Context) ([]byte, error) {
		return c.gateway.Read(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return table.ParseCSV(data)
}

// frameSeries extracts (date, value) pairs within [start, end], optionally
// filtered by keep. Rows with unparseable values are skipped.
func frameSeries(frame *table.Frame, symbol string, dateCol, valCol int, start, end time.Time, keep func([]string) bool) (*series, error) {
	s := &series{symbol: symbol}
	for _, rec := range frame.Records {
		if keep != nil && !keep(rec) {
			continue
		}
		d, err := frame.DateField(rec, dateCol)
		if err != nil {
			continue
		}
		if d.Before(start) || d.After(end) {
			continue
		}
		v, ok, err := frame.FloatField(rec, valCol)
		if err != nil || !ok {
			continue
		}
		s.dates = append(s.dates, d)
		s.values = append(s.values, v)
	}
	return s, nil
}
