package converter

import (
	"testing"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var standardHeaders = types.NewHeaderMap([]string{"matricula", "rubrica", "valor", "tipo", "trigrama"})

func TestProcess_ValidAndInvalidRows(t *testing.T) {
	rows := [][]string{
		{"10024450", "1208000", "12000,00", "no", "baa"},
		{"ABCDE", "1208000", "ABC", "XX", "BA"},
	}

	records, err := Process(rows, standardHeaders)
	require.NoError(t, err)
	require.Len(t, records, 2)

	valid := records[0]
	assert.True(t, valid.IsValid)
	assert.Equal(t, "10024450", valid.Matricula)
	assert.Equal(t, "1208000", valid.Rubrica)
	assert.Equal(t, "12000.00", valid.ValorFormatado())
	assert.Equal(t, "NO", valid.Tipo)
	assert.Equal(t, "BAA", valid.Trigrama)
	assert.Equal(t, 2, valid.LineNumber)
	assert.Empty(t, valid.Error)

	invalid := records[1]
	assert.False(t, invalid.IsValid)
	assert.Equal(t, 3, invalid.LineNumber)
	assert.Equal(t, "ABCDE", invalid.Matricula)
	assert.False(t, invalid.Valor.Valid)
	assert.Equal(t, "matricula must contain only digits (6 to 10)", invalid.Error)
	assert.Equal(t, ColumnMatricula, invalid.ErrorField)
}

func TestProcess_FirstFailureWins(t *testing.T) {
	tests := []struct {
		name      string
		row       []string
		wantField string
		wantError string
	}{
		{
			name:      "Missing matricula",
			row:       []string{"", "1208000", "1", "NO", "BAA"},
			wantField: ColumnMatricula,
			wantError: "matricula is required",
		},
		{
			name:      "Nan matricula",
			row:       []string{"NaN", "x", "x", "x", "x"},
			wantField: ColumnMatricula,
			wantError: "matricula is required",
		},
		{
			name:      "Short rubrica",
			row:       []string{"123456", "12", "x", "x", "x"},
			wantField: ColumnRubrica,
			wantError: "rubrica must contain 7 digits",
		},
		{
			name:      "Nan rubrica",
			row:       []string{"123456", "nan", "1", "NO", "BAA"},
			wantField: ColumnRubrica,
			wantError: "rubrica is required",
		},
		{
			name:      "Nan valor",
			row:       []string{"123456", "1234567", "nan", "NO", "BAA"},
			wantField: ColumnValor,
			wantError: "valor is required",
		},
		{
			name:      "Negative valor",
			row:       []string{"123456", "1234567", "-5", "NO", "BAA"},
			wantField: ColumnValor,
			wantError: "valor must be a valid non-negative number",
		},
		{
			name:      "Bad tipo reports upper-cased value",
			row:       []string{"123456", "1234567", "5", "xx", "BAA"},
			wantField: ColumnTipo,
			wantError: "tipo must be NO or DE, found: XX",
		},
		{
			name:      "Bad trigrama",
			row:       []string{"123456", "1234567", "5", "DE", "ba"},
			wantField: ColumnTrigrama,
			wantError: "trigrama must contain 3 letters, found: BA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Process([][]string{tt.row}, standardHeaders)
			require.NoError(t, err)
			require.Len(t, records, 1)

			assert.False(t, records[0].IsValid)
			assert.Equal(t, tt.wantField, records[0].ErrorField)
			assert.Equal(t, tt.wantError, records[0].Error)
		})
	}
}

func TestProcess_InvalidRowKeepsRawValues(t *testing.T) {
	records, err := Process([][]string{{" 123456 ", "1234567", "5", "de", "b1a"}}, standardHeaders)
	require.NoError(t, err)

	r := records[0]
	assert.False(t, r.IsValid)
	assert.Equal(t, "123456", r.Matricula)
	assert.Equal(t, "de", r.Tipo, "raw case kept on rejection")
	assert.Equal(t, "b1a", r.Trigrama)
	assert.Equal(t, "5", r.RawValor)
	assert.False(t, r.Valor.Valid)
}

func TestProcess_SkipsBlankRowsButKeepsLineNumbers(t *testing.T) {
	rows := [][]string{
		{"10024450", "1208000", "1", "NO", "BAA"},
		{},
		{"  ", "", "", "", "", "ignored extra column"},
		{"97115215", "1208000", "2", "DE", "ZXC"},
	}

	records, err := Process(rows, standardHeaders)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].LineNumber)
	assert.Equal(t, 5, records[1].LineNumber)
}

func TestProcess_HeadersAnyOrderAndCase(t *testing.T) {
	headers := types.HeaderMap{"TRIGRAMA": 1, "Valor": 2, "tipo": 3, "rubrica": 4, "Matricula": 5}
	rows := [][]string{{"zxc", "3066.09", "de", "1208000", "97115215"}}

	records, err := Process(rows, headers)
	require.NoError(t, err)
	require.True(t, records[0].IsValid, records[0].Error)
	assert.Equal(t, "ZXC", records[0].Trigrama)
	assert.Equal(t, "3066.09", records[0].ValorFormatado())
}

func TestProcess_MissingColumns(t *testing.T) {
	headers := types.NewHeaderMap([]string{"matricula", "valor", "tipo"})

	records, err := Process([][]string{{"1", "2", "3"}}, headers)
	assert.Nil(t, records)
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "rubrica, trigrama")
}

func TestProcess_RoundsHalfToEven(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "0,125", want: "0.12"},
		{input: "0,135", want: "0.14"},
		{input: "10,456", want: "10.46"},
		{input: "1 500,5", want: "1500.50"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			records, err := Process([][]string{{"123456", "1234567", tt.input, "NO", "BAA"}}, standardHeaders)
			require.NoError(t, err)
			require.True(t, records[0].IsValid, records[0].Error)
			assert.Equal(t, tt.want, records[0].ValorFormatado())
		})
	}
}

func TestProcess_Idempotent(t *testing.T) {
	rows := [][]string{
		{"10024450", "1208000", "12000,00", "no", "baa"},
		{"ABCDE", "1208000", "ABC", "XX", "BA"},
		{"97115215", "1208000", "3066,09", "DE", "ZXC"},
	}

	first, err := Process(rows, standardHeaders)
	require.NoError(t, err)
	second, err := Process(rows, standardHeaders)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "no", rows[0][3], "input rows are not modified")
}

func TestSummarizeAndDiagnostics(t *testing.T) {
	rows := [][]string{
		{"10024450", "1208000", "12000,00", "NO", "BAA"},
		{"10024450", "1208000", "abc", "NO", "BAA"},
		{"10024450", "1208000", "1", "XX", "BAA"},
	}

	records, err := Process(rows, standardHeaders)
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 3, Valid: 1, Invalid: 2}, Summarize(records))

	diags := Diagnostics(records)
	require.Len(t, diags, 2)
	assert.Equal(t, Diagnostic{Row: 3, Field: ColumnValor, Value: "abc", Message: "valor must be a valid non-negative number"}, diags[0])
	assert.Equal(t, 4, diags[1].Row)
	assert.Equal(t, ColumnTipo, diags[1].Field)
	assert.Equal(t, "XX", diags[1].Value)

	assert.Len(t, ValidRecords(records), 1)
}
