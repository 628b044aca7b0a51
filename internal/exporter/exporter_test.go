package exporter

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"quantdl/internal/table"
)

func fixtureTable(t *testing.T) *table.WideTable {
	t.Helper()
	wt, err := table.New(
		[]time.Time{table.Date(2024, 1, 2), table.Date(2024, 1, 3)},
		[]string{"ACME", "GLOBO"},
		[][]float64{
			{11.5, 21},
			{12, math.NaN()},
		},
	)
	require.NoError(t, err)
	return wt
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	require.NoError(t, w.WriteCSV("out/alpha.csv", fixtureTable(t), WriteOptions{}))

	data, err := os.ReadFile(filepath.Join(dir, "out", "alpha.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"date,ACME,GLOBO\n"+
			"2024-01-02,11.5,21\n"+
			"2024-01-03,12,\n",
		string(data))
}

func TestWriteCSVNaNPlaceholder(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	require.NoError(t, w.WriteCSV("alpha.csv", fixtureTable(t), WriteOptions{NaNAs: "NA"}))

	data, err := os.ReadFile(filepath.Join(dir, "alpha.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024-01-03,12,NA\n")
}

func TestWriteCSVBOMPrefix(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	require.NoError(t, w.WriteCSV("alpha.csv", fixtureTable(t), WriteOptions{BOMPrefix: true}))

	data, err := os.ReadFile(filepath.Join(dir, "alpha.csv"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 3)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, data[:3])
	assert.Equal(t, "date,ACME,GLOBO\n", string(data[3:3+len("date,ACME,GLOBO\n")]))
}

func TestWriteCSVAbsolutePath(t *testing.T) {
	w := NewWriter("/nonexistent-base", nil)
	target := filepath.Join(t.TempDir(), "alpha.csv")

	require.NoError(t, w.WriteCSV(target, fixtureTable(t), WriteOptions{}))
	_, err := os.Stat(target)
	assert.NoError(t, err)
}

func TestWriteXLSX(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	require.NoError(t, w.WriteXLSX("alpha.xlsx", "Alpha", fixtureTable(t)))

	f, err := excelize.OpenFile(filepath.Join(dir, "alpha.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Alpha", "A1")
	require.NoError(t, err)
	assert.Equal(t, "date", got)

	got, err = f.GetCellValue("Alpha", "B2")
	require.NoError(t, err)
	assert.Equal(t, "11.5", got)

	// NaN cells stay empty.
	got, err = f.GetCellValue("Alpha", "C3")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
