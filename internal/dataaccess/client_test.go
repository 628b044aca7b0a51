package dataaccess

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantdl/internal/cache"
	"quantdl/internal/errors"
	"quantdl/internal/table"
	"quantdl/pkg/contracts/domain"
)

type mapGateway struct {
	objects map[string][]byte
}

func (g *mapGateway) Read(ctx context.Context, path string) ([]byte, error) {
	data, ok := g.objects[path]
	if !ok {
		return nil, errors.NotFound("object", path)
	}
	return data, nil
}

func (g *mapGateway) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range g.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

const mastersCSV = `security_id,permno,symbol,company,cik,cusip,start_date,end_date
SEC001,10001,ACME,Acme Corp,0000012345,123456789,2010-01-01,
SEC003,20002,GLOBO,Globo Inc,0000067890,987654321,2015-03-01,
SEC006,40004,NOCIK,No Cik Corp,,444444444,2010-01-01,
`

const calendarCSV = `date
2024-01-02
2024-01-03
2024-01-04
`

func fixtureObjects() map[string][]byte {
	return map[string][]byte{
		"data/master/security_master.csv": []byte(mastersCSV),
		"data/master/calendar_master.csv": []byte(calendarCSV),
		"data/raw/ticks/daily/SEC001/history.csv": []byte(
			"timestamp,open,close,volume\n" +
				"2024-01-02,10,11,1000\n" +
				"2024-01-03,11,12,1100\n" +
				"2024-01-04,12,13,1200\n"),
		"data/raw/ticks/daily/SEC003/history.csv": []byte(
			"timestamp,open,close,volume\n" +
				"2024-01-02,20,21,2000\n" +
				"2024-01-04,22,23,2200\n"),
		"data/raw/fundamental/0000012345/fundamental.csv": []byte(
			"as_of_date,concept,value\n" +
				"2024-01-02,Revenue,500\n" +
				"2024-01-02,NetIncome,50\n" +
				"2024-01-03,Revenue,510\n"),
		"data/derived/features/fundamental/0000012345/metrics.csv": []byte(
			"as_of_date,pe_ratio,pb_ratio\n" +
				"2024-01-02,15.5,2.1\n"),
		"data/universe/tech.csv": []byte(
			"symbol,weight\nACME,0.6\nGLOBO,0.4\n"),
	}
}

func newClient(t *testing.T) *Client {
	t.Helper()
	gw := &mapGateway{objects: fixtureObjects()}
	dc, err := cache.New(t.TempDir(), time.Hour, 0, nil)
	require.NoError(t, err)
	return New(gw, dc, nil)
}

func TestTicksWideTable(t *testing.T) {
	c := newClient(t)

	got, err := c.Ticks(context.Background(), []string{"ACME", "GLOBO"}, "close",
		table.Date(2024, 1, 2), table.Date(2024, 1, 4))
	require.NoError(t, err)

	assert.Equal(t, []string{"ACME", "GLOBO"}, got.Columns())
	require.Equal(t, 3, got.NumRows(), "rows follow the trading calendar")

	assert.Equal(t, 11.0, got.Cell(0, 0))
	assert.Equal(t, 21.0, got.Cell(0, 1))
	assert.Equal(t, 12.0, got.Cell(1, 0))
	assert.True(t, math.IsNaN(got.Cell(1, 1)), "GLOBO has no Jan 3 row")
	assert.Equal(t, 13.0, got.Cell(2, 0))
	assert.Equal(t, 23.0, got.Cell(2, 1))
}

func TestTicksUnresolvedSymbolDropped(t *testing.T) {
	c := newClient(t)

	got, err := c.Ticks(context.Background(), []string{"ACME", "NOPE"}, "close",
		table.Date(2024, 1, 2), table.Date(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME"}, got.Columns())
}

func TestTicksAllUnresolvedIsNotFound(t *testing.T) {
	c := newClient(t)

	_, err := c.Ticks(context.Background(), []string{"NOPE", "ALSONOPE"}, "close",
		table.Date(2024, 1, 2), table.Date(2024, 1, 4))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestTicksDateRangeFilter(t *testing.T) {
	c := newClient(t)

	got, err := c.Ticks(context.Background(), []string{"ACME"}, "close",
		table.Date(2024, 1, 3), table.Date(2024, 1, 4))
	require.NoError(t, err)
	require.Equal(t, 2, got.NumRows())
	assert.Equal(t, table.Date(2024, 1, 3), got.Dates()[0])
}

func TestFundamentalsConceptFilter(t *testing.T) {
	c := newClient(t)

	got, err := c.Fundamentals(context.Background(), []string{"ACME"}, "Revenue",
		table.Date(2024, 1, 2), table.Date(2024, 1, 4))
	require.NoError(t, err)

	assert.Equal(t, []string{"ACME"}, got.Columns())
	assert.Equal(t, 500.0, got.Cell(0, 0))
	assert.Equal(t, 510.0, got.Cell(1, 0))
	assert.True(t, math.IsNaN(got.Cell(2, 0)))
}

func TestFundamentalsSymbolWithoutCIKDropped(t *testing.T) {
	c := newClient(t)

	got, err := c.Fundamentals(context.Background(), []string{"ACME", "NOCIK"}, "Revenue",
		table.Date(2024, 1, 2), table.Date(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME"}, got.Columns())
}

func TestMetrics(t *testing.T) {
	c := newClient(t)

	got, err := c.Metrics(context.Background(), []string{"ACME"}, "pe_ratio",
		table.Date(2024, 1, 2), table.Date(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, 15.5, got.Cell(0, 0))
}

func TestFetchDispatch(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	start, end := table.Date(2024, 1, 2), table.Date(2024, 1, 4)

	_, err := c.Fetch(ctx, domain.DataSpec{Source: domain.SourceTicks, Field: "close"},
		[]string{"ACME"}, start, end)
	require.NoError(t, err)

	_, err = c.Fetch(ctx, domain.DataSpec{Source: "bogus", Field: "x"},
		[]string{"ACME"}, start, end)
	require.Error(t, err)
}

func TestUniverse(t *testing.T) {
	c := newClient(t)

	symbols, err := c.Universe(context.Background(), "tech")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME", "GLOBO"}, symbols)

	_, err = c.Universe(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMissingFieldColumnDropsSymbol(t *testing.T) {
	c := newClient(t)

	_, err := c.Ticks(context.Background(), []string{"ACME"}, "vwap",
		table.Date(2024, 1, 2), table.Date(2024, 1, 4))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err), "no symbol carries the column, nothing to pivot")
}
