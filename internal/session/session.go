// Package session implements the research session: a single-use scope over a
// fixed symbol set and date range that fetches fields lazily, memoizes them
// by object identity and evaluates expressions against them. Field fetches
// are chunked across the symbol set and run on a bounded worker pool; the
// same field is fetched at most once per session while distinct fields fetch
// in parallel.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quantdl/internal/alpha"
	"quantdl/internal/dataaccess"
	"quantdl/internal/errors"
	"quantdl/internal/expr"
	"quantdl/internal/table"
	"quantdl/pkg/contracts/domain"
)

const (
	// DefaultChunkSize is the number of symbols fetched per storage request.
	DefaultChunkSize = 50
	// DefaultMaxConcurrency bounds simultaneous chunk fetches.
	DefaultMaxConcurrency = 4
)

// builtinAliases maps the short research names to their data specs.
func builtinAliases() map[string]domain.DataSpec {
	return map[string]domain.DataSpec{
		"open":       {Source: domain.SourceTicks, Field: "open"},
		"high":       {Source: domain.SourceTicks, Field: "high"},
		"low":        {Source: domain.SourceTicks, Field: "low"},
		"close":      {Source: domain.SourceTicks, Field: "close"},
		"volume":     {Source: domain.SourceTicks, Field: "volume"},
		"price":      {Source: domain.SourceTicks, Field: "close"},
		"revenue":    {Source: domain.SourceFundamentals, Field: "Revenue"},
		"net_income": {Source: domain.SourceFundamentals, Field: "NetIncome"},
		"pe":         {Source: domain.SourceMetrics, Field: "pe_ratio"},
		"pb":         {Source: domain.SourceMetrics, Field: "pb_ratio"},
	}
}

// Option customizes a Session at construction.
type Option func(*Session)

// WithChunkSize sets how many symbols go into one storage request.
func WithChunkSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithMaxConcurrency bounds simultaneous chunk fetches.
func WithMaxConcurrency(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithPrefetch fetches the named fields eagerly during New, in parallel.
func WithPrefetch(names ...string) Option {
	return func(s *Session) {
		s.prefetch = append(s.prefetch, names...)
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// fetchCall tracks one in-flight field fetch so concurrent callers of the
// same field share a single storage round trip.
type fetchCall struct {
	done   chan struct{}
	result *alpha.Alpha
	err    error
}

// Session is a single-use research scope. Safe for concurrent use until
// Close is called.
type Session struct {
	id             string
	client         *dataaccess.Client
	symbols        []string
	start, end     time.Time
	chunkSize      int
	maxConcurrency int
	prefetch       []string
	logger         *slog.Logger
	pool           pond.Pool
	funcs          expr.Funcs

	mu       sync.Mutex
	active   bool
	aliases  map[string]domain.DataSpec
	fields   map[string]*alpha.Alpha
	inflight map[string]*fetchCall
}

// New opens a session over the given symbols and date range. Prefetched
// fields are fully loaded before New returns.
func New(ctx context.Context, client *dataaccess.Client, symbols []string, start, end time.Time, opts ...Option) (*Session, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("session requires at least one symbol")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("session end %s precedes start %s",
			end.Format(table.DateLayout), start.Format(table.DateLayout))
	}
	s := &Session{
		id:             uuid.New().String(),
		client:         client,
		symbols:        append([]string(nil), symbols...),
		start:          start,
		end:            end,
		chunkSize:      DefaultChunkSize,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
		funcs:          expr.DefaultFuncs(),
		active:         true,
		aliases:        builtinAliases(),
		fields:         make(map[string]*alpha.Alpha),
		inflight:       make(map[string]*fetchCall),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = pond.NewPool(s.maxConcurrency)
	s.logger.InfoContext(ctx, "session opened",
		"session_id", s.id,
		"symbols", len(s.symbols),
		"start", start.Format(table.DateLayout),
		"end", end.Format(table.DateLayout),
	)
	if len(s.prefetch) > 0 {
		if err := s.Fetch(ctx, s.prefetch...); err != nil {
			s.pool.StopAndWait()
			return nil, err
		}
	}
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Symbols returns the session's symbol order.
func (s *Session) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Register adds or replaces a field alias for this session.
func (s *Session) Register(name string, spec domain.DataSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return errors.SessionNotActive()
	}
	s.aliases[name] = spec
	return nil
}

// Get returns the named field's wide table, fetching it on first access.
// Repeated calls return the same object. Concurrent calls for the same field
// share one fetch; distinct fields fetch independently.
func (s *Session) Get(ctx context.Context, name string) (*alpha.Alpha, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil, errors.SessionNotActive()
	}
	if a, ok := s.fields[name]; ok {
		s.mu.Unlock()
		return a, nil
	}
	if call, ok := s.inflight[name]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.result, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	spec, ok := s.aliases[name]
	if !ok {
		s.mu.Unlock()
		return nil, errors.FieldNotFound(name)
	}
	call := &fetchCall{done: make(chan struct{})}
	s.inflight[name] = call
	s.mu.Unlock()

	a, err := s.fetchField(ctx, name, spec)

	s.mu.Lock()
	delete(s.inflight, name)
	if err == nil && s.active {
		s.fields[name] = a
	}
	s.mu.Unlock()

	call.result, call.err = a, err
	close(call.done)
	return a, err
}

// Fetch loads the named fields in parallel. It is the eager counterpart of
// Get and fails on the first field that cannot be loaded.
func (s *Session) Fetch(ctx context.Context, names ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			_, err := s.Get(gctx, name)
			return err
		})
	}
	return g.Wait()
}

// Eval evaluates an expression against the session's fields. Identifiers
// resolve through the alias table and fetch lazily; names with no alias come
// back as UNBOUND_VARIABLE.
func (s *Session) Eval(ctx context.Context, src string) (*alpha.Alpha, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil, errors.SessionNotActive()
	}
	s.mu.Unlock()
	return expr.Evaluate(src, &sessionBindings{ctx: ctx, s: s}, s.funcs)
}

// Close ends the session, clearing the memoized field cache and releasing
// the worker pool. All subsequent field access fails with SESSION_NOT_ACTIVE.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return errors.SessionNotActive()
	}
	s.active = false
	s.fields = nil
	s.mu.Unlock()
	s.pool.StopAndWait()
	s.logger.Info("session closed", "session_id", s.id)
	return nil
}

// fetchField pulls one field for the full symbol set, chunk by chunk, and
// stitches the chunks back together in chunk-index order.
func (s *Session) fetchField(ctx context.Context, name string, spec domain.DataSpec) (*alpha.Alpha, error) {
	chunks := chunkSymbols(s.symbols, s.chunkSize)
	parts := make([]*table.WideTable, len(chunks))

	started := time.Now()
	group := s.pool.NewGroupContext(ctx)
	gctx := group.Context()
	for i, chunk := range chunks {
		group.SubmitErr(func() error {
			t, err := s.client.Fetch(gctx, spec, chunk, s.start, s.end)
			if err != nil {
				if errors.IsNotFound(err) {
					// No data for any symbol in this chunk.
					return nil
				}
				return err
			}
			parts[i] = t
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var merged *table.WideTable
	for _, part := range parts {
		if part == nil {
			continue
		}
		if merged == nil {
			merged = part
			continue
		}
		merged = merged.OuterJoin(part)
	}
	if merged == nil {
		return nil, errors.NotFound("field", name)
	}
	merged = merged.SelectColumns(s.symbols)
	if dropped := len(s.symbols) - merged.NumColumns(); dropped > 0 {
		s.logger.WarnContext(ctx, "field missing data for some symbols",
			"session_id", s.id,
			"field", name,
			"dropped", dropped,
		)
	}
	s.logger.DebugContext(ctx, "field fetched",
		"session_id", s.id,
		"field", name,
		"chunks", len(chunks),
		"rows", merged.NumRows(),
		"columns", merged.NumColumns(),
		"elapsed", time.Since(started),
	)
	return alpha.New(merged), nil
}

// chunkSymbols partitions symbols into consecutive groups of at most size.
func chunkSymbols(symbols []string, size int) [][]string {
	var chunks [][]string
	for len(symbols) > size {
		chunks = append(chunks, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		chunks = append(chunks, symbols)
	}
	return chunks
}

// sessionBindings adapts lazy field access to the evaluator's Bindings.
// Unknown fields surface as unbound variables rather than field errors so
// the expression author sees the name they wrote.
type sessionBindings struct {
	ctx context.Context
	s   *Session
}

func (b *sessionBindings) Resolve(name string) (*alpha.Alpha, error) {
	a, err := b.s.Get(b.ctx, name)
	if err != nil {
		if errors.HasCode(err, errors.CodeFieldNotFound) {
			return nil, errors.UnboundVariable(name)
		}
		return nil, err
	}
	return a, nil
}
