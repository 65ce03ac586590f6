// =============================================================================
// Payment Command Converter - XLSX Reader
// =============================================================================
//
// This module reads payment-command workbooks and hands the raw cell text to
// the record pipeline. It does no validation of its own: it only locates the
// worksheet, builds the header map and returns the data rows in physical
// order.
//
// EXPECTED LAYOUT:
//
//   | matricula | rubrica | valor    | tipo | trigrama |   <- row 1 (headers)
//   |-----------|---------|----------|------|----------|
//   | 10024450  | 1208000 | 12000,00 | NO   | BAA      |   <- row 2
//   | 97115215  | 1208000 | 3066,09  | DE   | ZXC      |   <- row 3
//
//   Header names are matched case-insensitively and may appear in any column
//   order. Extra columns are ignored by the pipeline.
//
// It also writes the blank input template offered to users.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyWorkbook is returned when no worksheet contains any data.
	ErrEmptyWorkbook = errors.New("workbook has no worksheet with data")

	// ErrInvalidWorkbook is returned when the file is not a readable workbook.
	ErrInvalidWorkbook = errors.New("file is not a readable workbook")
)

// TemplateHeaders are the column names written to the input template.
var TemplateHeaders = []string{"matricula", "rubrica", "valor", "tipo", "trigrama"}

// templateExamples are the sample rows written below the template headers.
var templateExamples = [][]string{
	{"10024450", "1208000", "12000,00", "NO", "BAA"},
	{"97115215", "1208000", "3066,09", "DE", "ZXC"},
}

// TemplateSheetName is the worksheet name used by WriteTemplate.
const TemplateSheetName = "Comandos"

// =============================================================================
// READER FUNCTIONS
// =============================================================================

// Read opens an XLSX workbook and extracts the first worksheet with data.
//
// PARAMETERS:
//   - path: The path to the workbook.
//
// RETURNS:
//   - The sheet: header map from row 1 and every following row as text.
//   - ErrEmptyWorkbook if no worksheet has a non-blank cell.
//   - ErrInvalidWorkbook (wrapped) if the file cannot be opened or read.
func Read(path string) (*types.Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheet, err := readFirstSheetWithData(f)
	if err != nil {
		return nil, err
	}

	sheet.SourceFile = path
	return sheet, nil
}

// ReadFrom reads a workbook from r. name is recorded as the sheet's source.
// Used for uploads that never touch the disk.
func ReadFrom(r io.Reader, name string) (*types.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheet, err := readFirstSheetWithData(f)
	if err != nil {
		return nil, err
	}

	sheet.SourceFile = name
	return sheet, nil
}

// readFirstSheetWithData walks the worksheets in workbook order and returns
// the first one that has any non-blank cell.
func readFirstSheetWithData(f *excelize.File) (*types.Sheet, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read rows of %q: %v", ErrInvalidWorkbook, name, err)
		}

		if !hasData(rows) {
			continue
		}

		var headerRow []string
		if len(rows) > 0 {
			headerRow = rows[0]
		}

		dataRows := [][]string{}
		if len(rows) > 1 {
			dataRows = rows[1:]
		}

		return &types.Sheet{
			Name:    name,
			Headers: types.NewHeaderMap(headerRow),
			Rows:    dataRows,
		}, nil
	}

	return nil, ErrEmptyWorkbook
}

// hasData reports whether any cell in rows has non-blank text.
func hasData(rows [][]string) bool {
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// TEMPLATE
// =============================================================================

// WriteTemplate saves a blank input workbook with the required headers and
// two example rows.
func WriteTemplate(path string) error {
	f, err := buildTemplate()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// WriteTemplateTo streams the template workbook to w.
func WriteTemplateTo(w io.Writer) error {
	f, err := buildTemplate()
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

func buildTemplate() (*excelize.File, error) {
	f := excelize.NewFile()

	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, TemplateSheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name template sheet: %w", err)
	}

	// Text format keeps leading zeros in matricula/rubrica typed by users.
	textStyle, err := f.NewStyle(&excelize.Style{NumFmt: 49})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create text style: %w", err)
	}
	if err := f.SetColStyle(TemplateSheetName, "A:E", textStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to apply text style: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	rows := append([][]string{TemplateHeaders}, templateExamples...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			f.Close()
			return nil, err
		}

		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}

		if err := f.SetSheetRow(TemplateSheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write template row %d: %w", i+1, err)
		}
	}

	if err := f.SetCellStyle(TemplateSheetName, "A1", "E1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to style template headers: %w", err)
	}

	return f, nil
}
