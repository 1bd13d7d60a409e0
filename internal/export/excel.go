// Package export renders the registration set into downloadable artifacts:
// an xlsx workbook and a zip of stored photos.
package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"registrar/internal/registration"
)

const (
	// ExcelFilename is the attachment name of the workbook.
	ExcelFilename = "registrations.xlsx"
	// ExcelContentType is the xlsx MIME type.
	ExcelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName = "Registrations"
	// dobLayout matches the en-US locale date string, e.g. 3/7/1999.
	dobLayout = "1/2/2006"
	missing   = "-"
)

type column struct {
	header string
	width  float64
	value  func(r registration.Registration) string
}

var excelColumns = []column{
	{"First Name", 15, func(r registration.Registration) string { return r.FirstName }},
	{"Middle Name", 15, func(r registration.Registration) string { return registration.Deref(r.MiddleName) }},
	{"Last Name", 15, func(r registration.Registration) string { return r.LastName }},
	{"Mobile", 15, func(r registration.Registration) string { return r.Mobile }},
	{"Email", 25, func(r registration.Registration) string { return r.Email }},
	{"Date of Birth", 15, func(r registration.Registration) string { return formatDOB(r) }},
	{"Address", 30, func(r registration.Registration) string { return r.Address }},
	{"Who Are You", 15, func(r registration.Registration) string { return string(r.Category) }},
	{"Degree/Institution/Business Details", 40, Details},
}

// Details summarizes the category-specific fields of r. Missing values
// render as "-".
func Details(r registration.Registration) string {
	switch r.Category {
	case registration.CategoryStudent:
		return fmt.Sprintf("Degree: %s, Institution: %s", orDash(r.Degree), orDash(r.Institution))
	case registration.CategoryEmployee:
		return fmt.Sprintf("Degree: %s, Profession: %s, Company: %s, Designation: %s",
			orDash(r.EmpDegree), orDash(r.Profession), orDash(r.Company), orDash(r.Designation))
	case registration.CategoryBusiness:
		return fmt.Sprintf("Degree: %s, Business Type: %s, Business Name: %s",
			orDash(r.BusDegree), orDash(r.BusinessType), orDash(r.BusinessName))
	}
	return ""
}

func orDash(s *string) string {
	if v := registration.Deref(s); v != "" {
		return v
	}
	return missing
}

func formatDOB(r registration.Registration) string {
	if r.DOB.IsZero() {
		return ""
	}
	return r.DOB.Format(dobLayout)
}

// Workbook builds the registrations sheet with a bold header row.
func Workbook(records []registration.Registration) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, col := range excelColumns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(sheetName, name, name, col.width); err != nil {
			f.Close()
			return nil, fmt.Errorf("column width: %w", err)
		}
	}

	header := make([]any, len(excelColumns))
	for i, col := range excelColumns {
		header[i] = col.header
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, r := range records {
		row := make([]any, len(excelColumns))
		for j, col := range excelColumns {
			row[j] = col.value(r)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

// WriteExcel renders records into a complete workbook in memory and only
// then copies it to w, so a generation failure never leaves a partial file.
func WriteExcel(w io.Writer, records []registration.Registration) (int64, error) {
	f, err := Workbook(records)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return 0, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.WriteTo(w)
}
