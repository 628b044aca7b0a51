// Package exporter writes wide tables to CSV and XLSX files for use outside
// the research loop.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"quantdl/internal/table"
)

// Writer exports wide tables under a base directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger}
}

// WriteOptions configures CSV output.
type WriteOptions struct {
	// BOMPrefix prepends a UTF-8 BOM so Excel opens the file correctly.
	BOMPrefix bool
	// NaNAs is the cell text for missing values. Empty string by default.
	NaNAs string
}

// WriteCSV writes the table to name under the writer's directory. The first
// column is the date, remaining columns follow the table's column order.
func (w *Writer) WriteCSV(name string, t *table.WideTable, opts WriteOptions) error {
	fullPath := w.resolvePath(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	if opts.BOMPrefix {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(file)
	if err := cw.Write(header(t)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < t.NumRows(); i++ {
		if err := cw.Write(record(t, i, opts.NaNAs)); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	w.logger.Info("exported table to CSV",
		"path", fullPath,
		"rows", t.NumRows(),
		"columns", t.NumColumns(),
	)
	return nil
}

// WriteXLSX writes the table to a single-sheet workbook. Missing values
// become empty cells.
func (w *Writer) WriteXLSX(name, sheet string, t *table.WideTable) error {
	fullPath := w.resolvePath(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	for j, h := range header(t) {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	dates := t.Dates()
	for i := 0; i < t.NumRows(); i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, dates[i].Format(table.DateLayout)); err != nil {
			return err
		}
		for j := 0; j < t.NumColumns(); j++ {
			v := t.Cell(i, j)
			if math.IsNaN(v) {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+2, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(fullPath); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	w.logger.Info("exported table to XLSX",
		"path", fullPath,
		"rows", t.NumRows(),
		"columns", t.NumColumns(),
	)
	return nil
}

func header(t *table.WideTable) []string {
	h := make([]string, 0, t.NumColumns()+1)
	h = append(h, "date")
	h = append(h, t.Columns()...)
	return h
}

func record(t *table.WideTable, row int, nanAs string) []string {
	rec := make([]string, 0, t.NumColumns()+1)
	rec = append(rec, t.Dates()[row].Format(table.DateLayout))
	for j := 0; j < t.NumColumns(); j++ {
		v := t.Cell(row, j)
		if math.IsNaN(v) {
			rec = append(rec, nanAs)
			continue
		}
		rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return rec
}

func (w *Writer) resolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(w.dir, name)
}
