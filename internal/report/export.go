package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat defaults to CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", ErrFormat
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Table is a rectangular report ready to export.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

const dateLayout = "2006-01-02"

// CPDTable lays out a CPD report with a trailing total row.
func CPDTable(rep CPDReport) Table {
	t := Table{Name: "cpd_report", Headers: []string{"Employee", "Department", "Training", "Points", "Date"}}
	for _, r := range rep.Rows {
		t.Rows = append(t.Rows, []string{r.Employee, r.Department, r.Training, strconv.Itoa(r.Points), r.Date.Format(dateLayout)})
	}
	t.Rows = append(t.Rows, []string{"Total", "", "", strconv.Itoa(rep.TotalPoints), ""})
	return t
}

// AttendanceTable lays out attendance rows.
func AttendanceTable(rows []AttendanceRow) Table {
	t := Table{Name: "attendance_report", Headers: []string{"Employee", "Department", "Training", "Status", "Date"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.Employee, r.Department, r.Training, r.Status, r.Date.Format(dateLayout)})
	}
	return t
}

// Export renders t and returns the file body and a suggested filename.
func Export(t Table, f Format) (*bytes.Buffer, string, error) {
	switch f {
	case FormatCSV:
		buf, err := writeCSV(t)
		return buf, t.Name + ".csv", err
	case FormatXLSX:
		buf, err := writeXLSX(t)
		return buf, t.Name + ".xlsx", err
	}
	return nil, "", ErrFormat
}

func writeCSV(t Table) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	if err := w.Write(t.Headers); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf, nil
}

func writeXLSX(t Table) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Report"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	for i, h := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	if len(t.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Headers), 1)
		f.SetCellStyle(sheet, "A1", last, headerStyle)
		lastCol, _ := excelize.ColumnNumberToName(len(t.Headers))
		f.SetColWidth(sheet, "A", lastCol, 22)
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if n, err := strconv.Atoi(v); err == nil {
				f.SetCellValue(sheet, cell, n)
				continue
			}
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf, nil
}
