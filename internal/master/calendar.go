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
)

// CalendarMasterPath is the object key of the trading calendar table.
const CalendarMasterPath = "data/master/calendar_master.csv"

// CalendarMaster serves the trading-day calendar with O(1) membership checks.
// Loaded once per process through the disk cache, like the security master.
type CalendarMaster struct {
	gateway storage.Gateway
	cache   *cache.DiskCache
	logger  *slog.Logger

	mu     sync.Mutex
	loaded bool
	days   []time.Time
	daySet map[time.Time]struct{}
}

// NewCalendarMaster wires the calendar against storage and the disk cache.
func NewCalendarMaster(gw storage.Gateway, dc *cache.DiskCache, logger *slog.Logger) *CalendarMaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarMaster{gateway: gw, cache: dc, logger: logger}
}

// IsTradingDay reports whether d is a trading day.
func (m *CalendarMaster) IsTradingDay(ctx context.Context, d time.Time) (bool, error) {
	if err := m.load(ctx); err != nil {
		return false, err
	}
	_, ok := m.daySet[d]
	return ok, nil
}

// TradingDays returns the trading days in [start, end], ascending.
func (m *CalendarMaster) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	lo := sort.Search(len(m.days), func(i int) bool { return !m.days[i].Before(start) })
	hi := sort.Search(len(m.days), func(i int) bool { return m.days[i].After(end) })
	out := make([]time.Time, hi-lo)
	copy(out, m.days[lo:hi])
	return out, nil
}

func (m *CalendarMaster) load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}
	data, err := m.cache.GetOrFetch(ctx, CalendarMasterPath, func(ctx context.Context) ([]byte, error) {
		return m.gateway.Read(ctx, CalendarMasterPath)
	})
	if err != nil {
		return fmt.Errorf("load calendar master: %w", err)
	}
	frame, err := table.ParseCSV(data)
	if err != nil {
		return fmt.Errorf("parse calendar master: %w", err)
	}
	dateCol := frame.ColumnIndex("date")
	if dateCol < 0 {
		return fmt.Errorf("calendar master missing date column, got %v", frame.Header)
	}
	days := make([]time.Time, 0, len(frame.Records))
	daySet := make(map[time.Time]struct{}, len(frame.Records))
	for i, rec := range frame.Records {
		d, err := frame.DateField(rec, dateCol)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if _, dup := daySet[d]; dup {
			continue
		}
		days = append(days, d)
		daySet[d] = struct{}{}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	m.days = days
	m.daySet = daySet
	m.loaded = true
	m.logger.InfoContext(ctx, "calendar master loaded", "trading_days", len(days))
	return nil
}
