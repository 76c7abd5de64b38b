package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bookings/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Bookings"
	dayLayout = "02.01.2006"
)

var headers = []string{
	"Date", "Start", "End", "Type", "Location", "Customer", "Email", "Phone", "Details", "Event ID", "Recorded",
}

// Workbook builds an XLSX with one row per journal entry, ordered by start.
// Times are shown in loc.
func Workbook(entries []models.JournalEntry, from, to time.Time, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		from.In(loc).Format(dayLayout), to.In(loc).Format(dayLayout)))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	if style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err == nil {
		_ = f.SetCellStyle(sheetName, "A1", "A1", style)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	sorted := append([]models.JournalEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	wrap, _ := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Vertical: "top", WrapText: true}})
	for i, e := range sorted {
		row := i + 3
		start := e.Start.In(loc)
		values := []interface{}{
			start.Format(dayLayout),
			start.Format(models.TimeFormat),
			e.End.In(loc).Format(models.TimeFormat),
			typeLabel(e.Type),
			e.LocationCode,
			e.CustomerName,
			e.CustomerEmail,
			e.CustomerPhone,
			details(e.Attributes),
			e.EventID,
			e.CreatedAt.In(loc).Format("02.01.2006 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		detailCell, _ := excelize.CoordinatesToCellName(9, row)
		_ = f.SetCellStyle(sheetName, detailCell, detailCell, wrap)
	}

	_ = f.SetColWidth(sheetName, "A", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "H", 22)
	_ = f.SetColWidth(sheetName, "I", "I", 40)
	_ = f.SetColWidth(sheetName, "J", "K", 24)

	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, entries []models.JournalEntry, from, to time.Time, loc *time.Location) error {
	f, err := Workbook(entries, from, to, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save writes the workbook into dir and returns the file path.
func Save(dir string, entries []models.JournalEntry, from, to time.Time, loc *time.Location) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := Workbook(entries, from, to, loc)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(from, to))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(models.DateFormat), to.Format(models.DateFormat))
}

func typeLabel(t models.BookingType) string {
	switch t {
	case models.BookingTypeTestRide:
		return "Test ride"
	case models.BookingTypeService:
		return "Service"
	default:
		return string(t)
	}
}

func details(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			lines = append(lines, k+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
