// Package export renders resolved availability as an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"calendly/internal/availability"
)

const maxSheetName = 31

// Writer is a small row-oriented layer over an excelize workbook.
type Writer struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func NewWriter() *Writer {
	return &Writer{file: excelize.NewFile()}
}

// AddSheet starts a new sheet; the first call renames the default one.
func (w *Writer) AddSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column titles.
func (w *Writer) WriteHeader(columns ...string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row...); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
	end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
	return w.file.SetCellStyle(w.currentSheet, start, end, style)
}

func (w *Writer) WriteRow(values ...any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, v); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

func (w *Writer) Save(out io.Writer) error {
	return w.file.Write(out)
}

func (w *Writer) Close() error {
	return w.file.Close()
}

// Columns of the slots sheet.
var slotColumns = []string{"Date", "Start", "End", "Start (UTC)", "Timezone"}

// WriteSlots writes one row per slot of res, in the visitor's timezone, followed by a
// summary sheet.
func WriteSlots(out io.Writer, res *availability.Result) error {
	w := NewWriter()
	defer w.Close()

	if err := w.AddSheet("Slots"); err != nil {
		return err
	}
	if err := w.WriteHeader(slotColumns...); err != nil {
		return err
	}

	length := time.Duration(res.Duration) * time.Minute
	for _, s := range res.Slots {
		if err := w.WriteRow(
			s.Local.Format("2006-01-02"),
			s.Local.Format("15:04"),
			s.Local.Add(length).Format("15:04"),
			s.Start.UTC().Format(time.RFC3339),
			res.Timezone,
		); err != nil {
			return err
		}
	}

	if err := w.AddSheet("Summary"); err != nil {
		return err
	}
	summary := [][]any{
		{"Owner", res.OwnerID},
		{"Event", res.EventID},
		{"Duration (minutes)", res.Duration},
		{"Slots", len(res.Slots)},
		{"Reason", string(res.Reason)},
		{"Resolved at (UTC)", res.Resolved.UTC().Format(time.RFC3339)},
	}
	for _, row := range summary {
		if err := w.WriteRow(row...); err != nil {
			return err
		}
	}

	return w.Save(out)
}

// Filename names the workbook after the event and the requested dates.
func Filename(res *availability.Result, dates availability.DateRange) string {
	return fmt.Sprintf("availability_%s_%s_%s.xlsx",
		res.EventID, dates.Start.Format("20060102"), dates.End.Format("20060102"))
}
