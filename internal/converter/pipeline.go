// =============================================================================
// Payment Command Converter - Record Pipeline
// =============================================================================
//
// The pipeline turns raw sheet rows into CommandRecord values. Every row is
// handled on its own: a bad cell rejects that row only and the failure is
// carried as data on the record, never as an error.
//
// PER-ROW STEPS:
//   1. Read the five required cells and trim them
//   2. Treat "nan" (any case) as blank for matricula, rubrica and valor
//   3. Check matricula, rubrica, valor, tipo, trigrama in that order and stop
//      at the first failure
//   4. Valid rows keep normalized values (tipo/trigrama upper-cased, valor
//      rounded half-to-even to 2 places)
//   5. Rejected rows keep the trimmed cell text, a null valor and the message
//
// =============================================================================

package converter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/validation"
	"github.com/shopspring/decimal"
)

// Column names every input sheet must provide.
const (
	ColumnMatricula = "matricula"
	ColumnRubrica   = "rubrica"
	ColumnValor     = "valor"
	ColumnTipo      = "tipo"
	ColumnTrigrama  = "trigrama"
)

// RequiredColumns lists the required headers in validation order.
var RequiredColumns = []string{ColumnMatricula, ColumnRubrica, ColumnValor, ColumnTipo, ColumnTrigrama}

// ErrMissingColumns is returned once, before any row is read, when the header
// map lacks required columns. The wrapped message lists them.
var ErrMissingColumns = errors.New("required columns are missing")

// firstDataLine is the physical line of Rows[0]; line 1 holds the headers.
const firstDataLine = 2

// columnSet holds the resolved 1-based column of every required header.
type columnSet struct {
	matricula, rubrica, valor, tipo, trigrama int
}

// =============================================================================
// PIPELINE
// =============================================================================

// Process validates and normalizes rows.
//
// PARAMETERS:
//   - rows: Data rows in physical order; rows[i] is sheet line i+2.
//   - headers: Header name to 1-based column. Names match case-insensitively.
//
// RETURNS:
//   - One record per row that has at least one non-blank required cell, in
//     source order.
//   - ErrMissingColumns (wrapped) if a required header is absent.
func Process(rows [][]string, headers types.HeaderMap) ([]types.CommandRecord, error) {
	cols, err := resolveColumns(headers)
	if err != nil {
		return nil, err
	}

	records := make([]types.CommandRecord, 0, len(rows))
	for i, row := range rows {
		if isRowBlank(row, cols) {
			continue
		}
		records = append(records, processRow(row, cols, i+firstDataLine))
	}

	return records, nil
}

// ProcessSheet runs Process over a sheet returned by a reader.
func ProcessSheet(sheet *types.Sheet) ([]types.CommandRecord, error) {
	return Process(sheet.Rows, sheet.Headers)
}

// resolveColumns finds every required column. When several keys differ only
// by case the leftmost column is used.
func resolveColumns(headers types.HeaderMap) (columnSet, error) {
	find := func(name string) int {
		col, _ := headers.Column(name)
		return col
	}

	cols := columnSet{
		matricula: find(ColumnMatricula),
		rubrica:   find(ColumnRubrica),
		valor:     find(ColumnValor),
		tipo:      find(ColumnTipo),
		trigrama:  find(ColumnTrigrama),
	}

	var missing []string
	for _, c := range []struct {
		name string
		col  int
	}{
		{ColumnMatricula, cols.matricula},
		{ColumnRubrica, cols.rubrica},
		{ColumnValor, cols.valor},
		{ColumnTipo, cols.tipo},
		{ColumnTrigrama, cols.trigrama},
	} {
		if c.col < 1 {
			missing = append(missing, c.name)
		}
	}

	if len(missing) > 0 {
		return columnSet{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	return cols, nil
}

func isRowBlank(row []string, cols columnSet) bool {
	for _, col := range []int{cols.matricula, cols.rubrica, cols.valor, cols.tipo, cols.trigrama} {
		if strings.TrimSpace(types.Cell(row, col)) != "" {
			return false
		}
	}
	return true
}

// rowError is the first failed check of a row.
type rowError struct {
	field   string
	message string
}

// processRow builds the record for one non-blank row.
func processRow(row []string, cols columnSet, lineNumber int) types.CommandRecord {
	matricula := strings.TrimSpace(types.Cell(row, cols.matricula))
	rubrica := strings.TrimSpace(types.Cell(row, cols.rubrica))
	valor := strings.TrimSpace(types.Cell(row, cols.valor))
	tipo := strings.TrimSpace(types.Cell(row, cols.tipo))
	trigrama := strings.TrimSpace(types.Cell(row, cols.trigrama))

	amount, failure := validateRow(matricula, rubrica, valor, tipo, trigrama)
	if failure != nil {
		return types.CommandRecord{
			Matricula:  matricula,
			Rubrica:    rubrica,
			RawValor:   valor,
			Tipo:       tipo,
			Trigrama:   trigrama,
			LineNumber: lineNumber,
			IsValid:    false,
			Error:      failure.message,
			ErrorField: failure.field,
		}
	}

	return types.CommandRecord{
		Matricula:  matricula,
		Rubrica:    rubrica,
		Valor:      decimal.NewNullDecimal(amount.RoundBank(2)),
		RawValor:   valor,
		Tipo:       strings.ToUpper(tipo),
		Trigrama:   strings.ToUpper(trigrama),
		LineNumber: lineNumber,
		IsValid:    true,
	}
}

// validateRow runs the field checks in order and returns the parsed amount
// or the first failure.
func validateRow(matricula, rubrica, valor, tipo, trigrama string) (decimal.Decimal, *rowError) {
	if isMissing(matricula) {
		return decimal.Zero, &rowError{ColumnMatricula, "matricula is required"}
	}
	if !validation.IsValidMatricula(matricula) {
		return decimal.Zero, &rowError{ColumnMatricula, "matricula must contain only digits (6 to 10)"}
	}

	if isMissing(rubrica) {
		return decimal.Zero, &rowError{ColumnRubrica, "rubrica is required"}
	}
	if !validation.IsValidRubrica(rubrica) {
		return decimal.Zero, &rowError{ColumnRubrica, "rubrica must contain 7 digits"}
	}

	// Spaces used as thousands separators are dropped before parsing.
	valorText := strings.ReplaceAll(valor, " ", "")
	if isMissing(valorText) {
		return decimal.Zero, &rowError{ColumnValor, "valor is required"}
	}
	amount, ok := validation.TryParseAmount(valorText)
	if !ok {
		return decimal.Zero, &rowError{ColumnValor, "valor must be a valid non-negative number"}
	}

	tipo = strings.ToUpper(tipo)
	if !validation.IsValidTipo(tipo) {
		return decimal.Zero, &rowError{ColumnTipo, fmt.Sprintf("tipo must be NO or DE, found: %s", tipo)}
	}

	trigrama = strings.ToUpper(trigrama)
	if !validation.IsValidTrigrama(trigrama) {
		return decimal.Zero, &rowError{ColumnTrigrama, fmt.Sprintf("trigrama must contain 3 letters, found: %s", trigrama)}
	}

	return amount, nil
}

// isMissing treats blank text and the "nan" placeholder left by some
// spreadsheet exports as absent.
func isMissing(s string) bool {
	return strings.TrimSpace(s) == "" || strings.EqualFold(s, "nan")
}

// =============================================================================
// SUMMARY AND DIAGNOSTICS
// =============================================================================

// Summary counts the outcome of a pipeline run.
type Summary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// Summarize counts valid and rejected records.
func Summarize(records []types.CommandRecord) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		if r.IsValid {
			s.Valid++
		} else {
			s.Invalid++
		}
	}
	return s
}

// Diagnostic describes one rejected row.
type Diagnostic struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Diagnostics lists the rejected records in source order.
func Diagnostics(records []types.CommandRecord) []Diagnostic {
	var out []Diagnostic
	for _, r := range records {
		if r.IsValid {
			continue
		}
		out = append(out, Diagnostic{
			Row:     r.LineNumber,
			Field:   r.ErrorField,
			Value:   fieldValue(r, r.ErrorField),
			Message: r.Error,
		})
	}
	return out
}

func fieldValue(r types.CommandRecord, field string) string {
	switch field {
	case ColumnMatricula:
		return r.Matricula
	case ColumnRubrica:
		return r.Rubrica
	case ColumnValor:
		return r.RawValor
	case ColumnTipo:
		return r.Tipo
	case ColumnTrigrama:
		return r.Trigrama
	default:
		return ""
	}
}

// ValidRecords returns the valid records in source order.
func ValidRecords(records []types.CommandRecord) []types.CommandRecord {
	out := make([]types.CommandRecord, 0, len(records))
	for _, r := range records {
		if r.IsValid {
			out = append(out, r)
		}
	}
	return out
}
