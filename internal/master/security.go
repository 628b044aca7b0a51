// Package master loads the authoritative reference tables (security master,
// trading calendar) once per process through the disk cache and serves
// point-in-time lookups from memory.
package master

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"quantdl/internal/cache"
	"quantdl/internal/storage"
	"quantdl/internal/table"
	"quantdl/pkg/contracts/domain"
)

// SecurityMasterPath is the object key of the security master table.
const SecurityMasterPath = "data/master/security_master.csv"

// SecurityMaster resolves symbols to point-in-time identity records. The
// master table is loaded lazily on first use and held for the lifetime of the
// holder; it is never reloaded unless Invalidate is called.
type SecurityMaster struct {
	gateway storage.Gateway
	cache   *cache.DiskCache
	logger  *slog.Logger

	mu       sync.Mutex
	loaded   bool
	bySymbol map[string][]*domain.SecurityRecord
}

// NewSecurityMaster wires the master against storage and the disk cache.
func NewSecurityMaster(gw storage.Gateway, dc *cache.DiskCache, logger *slog.Logger) *SecurityMaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityMaster{gateway: gw, cache: dc, logger: logger}
}

// Resolve returns the record valid for symbol at asOf, or ok=false when no
// interval covers the date. Expected absence is not an error.
func (m *SecurityMaster) Resolve(ctx context.Context, symbol string, asOf time.Time) (*domain.SecurityRecord, bool, error) {
	if err := m.load(ctx); err != nil {
		return nil, false, err
	}
	rec := m.lookup(symbol, asOf)
	return rec, rec != nil, nil
}

// ResolveBatch resolves all symbols against a single in-memory index pass,
// preserving input order. Unknown symbols map to nil.
func (m *SecurityMaster) ResolveBatch(ctx context.Context, symbols []string, asOf time.Time) ([]*domain.SecurityRecord, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.SecurityRecord, len(symbols))
	for i, sym := range symbols {
		out[i] = m.lookup(sym, asOf)
	}
	return out, nil
}

// Invalidate drops the in-memory index so the next call reloads the table.
func (m *SecurityMaster) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.bySymbol = nil
}

// lookup scans the symbol's records, which are sorted by StartDate descending
// so that the latest interval wins if master data ever carries overlaps.
func (m *SecurityMaster) lookup(symbol string, asOf time.Time) *domain.SecurityRecord {
	for _, rec := range m.bySymbol[symbol] {
		if rec.Contains(asOf) {
			return rec
		}
	}
	return nil
}

func (m *SecurityMaster) load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}
	data, err := m.cache.GetOrFetch(ctx, SecurityMasterPath, func(ctx context.Context) ([]byte, error) {
		return m.gateway.Read(ctx, SecurityMasterPath)
	})
	if err != nil {
		return fmt.Errorf("load security master: %w", err)
	}
	records, err := parseSecurityMaster(data)
	if err != nil {
		return fmt.Errorf("parse security master: %w", err)
	}
	bySymbol := make(map[string][]*domain.SecurityRecord)
	for _, rec := range records {
		bySymbol[rec.Symbol] = append(bySymbol[rec.Symbol], rec)
	}
	for _, recs := range bySymbol {
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].StartDate.After(recs[j].StartDate)
		})
	}
	m.bySymbol = bySymbol
	m.loaded = true
	m.logger.InfoContext(ctx, "security master loaded",
		"records", len(records),
		"symbols", len(bySymbol),
	)
	return nil
}

func parseSecurityMaster(data []byte) ([]*domain.SecurityRecord, error) {
	frame, err := table.ParseCSV(data)
	if err != nil {
		return nil, err
	}
	var (
		idCol     = frame.ColumnIndex("security_id")
		permnoCol = frame.ColumnIndex("permno")
		symCol    = frame.ColumnIndex("symbol")
		nameCol   = frame.ColumnIndex("company")
		cikCol    = frame.ColumnIndex("cik")
		cusipCol  = frame.ColumnIndex("cusip")
		startCol  = frame.ColumnIndex("start_date")
		endCol    = frame.ColumnIndex("end_date")
	)
	if idCol < 0 || symCol < 0 || startCol < 0 {
		return nil, fmt.Errorf("missing required columns (security_id, symbol, start_date), got %v", frame.Header)
	}
	records := make([]*domain.SecurityRecord, 0, len(frame.Records))
	for i, rec := range frame.Records {
		start, err := frame.DateField(rec, startCol)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		var end *time.Time
		if s := frame.Field(rec, endCol); s != "" {
			d, err := table.ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			end = &d
		}
		permno, _, err := frame.FloatField(rec, permnoCol)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		records = append(records, &domain.SecurityRecord{
			SecurityID: frame.Field(rec, idCol),
			Permno:     int64(permno),
			Symbol:     frame.Field(rec, symCol),
			Company:    frame.Field(rec, nameCol),
			CIK:        frame.Field(rec, cikCol),
			CUSIP:      frame.Field(rec, cusipCol),
			StartDate:  start,
			EndDate:    end,
		})
	}
	return records, nil
}
