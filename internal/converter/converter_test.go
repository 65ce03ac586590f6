package converter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/config"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/logger"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/xmlwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testNow = time.Date(2025, time.February, 3, 10, 20, 30, 0, time.Local)

func writeWorkbook(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellStr(sheet, cell, value))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func testConfig(dir string) *config.MainConfig {
	return &config.MainConfig{
		DataDir:          filepath.Join(dir, "data"),
		OutputDir:        filepath.Join(dir, "output"),
		InputArchiveDir:  filepath.Join(dir, "archive"),
		OutputFileFormat: "comandos_pagamento_{folha}_{timestamp}.xml",
		CSV:              config.CSVSettings{Encoding: "utf-8"},
	}
}

func testSigner() types.Responsible {
	return types.Responsible{
		ID:           2,
		Nome:         "Maria da Silva",
		CPF:          "52998224725",
		NIP:          "12345678",
		Perfil:       "AGI",
		TipoPerfilOM: "IQM",
		Ativo:        true,
	}
}

func TestLoadFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comandos.xlsx")
	writeWorkbook(t, path, [][]string{
		{"Matricula", "Rubrica", "Valor", "Tipo", "Trigrama"},
		{"10024450", "1208000", "12000,00", "no", "baa"},
		{"ABCDE", "1208000", "ABC", "XX", "BA"},
	})

	records, err := LoadFile(path, config.CSVSettings{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].IsValid)
	assert.Equal(t, "12000.00", records[0].ValorFormatado())
	assert.False(t, records[1].IsValid)
	assert.Equal(t, 3, records[1].LineNumber)
}

func TestLoadFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comandos.csv")
	content := "matricula;rubrica;valor;tipo;trigrama\n10024450;1208000;1234,5;DE;ZXC\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	records, err := LoadFile(path, config.CSVSettings{Encoding: "utf-8"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].IsValid, records[0].Error)
	assert.Equal(t, "1234.50", records[0].ValorFormatado())
}

func TestLoadFile_Failures(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0644))

	emptyCSV := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(emptyCSV, nil, 0644))

	corrupt := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a zip archive"), 0644))

	missingCols := filepath.Join(dir, "cols.xlsx")
	writeWorkbook(t, missingCols, [][]string{{"matricula", "valor"}, {"10024450", "1"}})

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "Missing file", path: filepath.Join(dir, "nope.xlsx"), wantErr: ErrInputNotFound},
		{name: "Unsupported extension", path: txt, wantErr: ErrUnsupportedFile},
		{name: "Empty CSV", path: emptyCSV, wantErr: ErrEmptyWorkbook},
		{name: "Corrupt workbook", path: corrupt, wantErr: ErrInvalidWorkbook},
		{name: "Missing columns", path: missingCols, wantErr: ErrMissingColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := LoadFile(tt.path, config.CSVSettings{})
			assert.Nil(t, records)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRun_WritesOutputAndDiagnostics(t *testing.T) {
	logger.Nop()
	dir := t.TempDir()
	input := filepath.Join(dir, "janeiro.xlsx")
	writeWorkbook(t, input, [][]string{
		{"matricula", "rubrica", "valor", "tipo", "trigrama"},
		{"10024450", "1208000", "12000,00", "NO", "BAA"},
		{"10024450", "1208000", "abc", "NO", "BAA"},
		{"97115215", "1208000", "3066,09", "DE", "ZXC"},
	})

	cfg := testConfig(dir)
	cfg.ArchiveOnSuccess = true
	conv := New(cfg).WithClock(func() time.Time { return testNow })

	result := conv.Run(Request{InputPath: input, Signer: testSigner(), Folha: "012025"})
	require.NoError(t, result.Error)
	require.True(t, result.Success)

	assert.Equal(t, Summary{Total: 3, Valid: 2, Invalid: 1}, result.Summary)
	assert.Equal(t, 2, result.Groups)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "comandos_pagamento_012025_20250203_102030.xml"), result.OutputFile)

	written, err := os.ReadFile(result.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, result.XML, written)
	assert.True(t, strings.HasPrefix(string(written), xmlwriter.Declaration))
	assert.Contains(t, string(written), "<dtGeracao>03/02/2025 10:20:30</dtGeracao>")

	require.NotEmpty(t, result.DiagnosticsFile)
	logData, err := os.ReadFile(result.DiagnosticsFile)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "Row 3")

	assert.Equal(t, filepath.Join(cfg.InputArchiveDir, "janeiro.xlsx"), result.ArchivePath)
	assert.NoFileExists(t, input)
}

func TestRun_SameInputNameNeverOverwrites(t *testing.T) {
	logger.Nop()
	dir := t.TempDir()

	inputs := []string{
		filepath.Join(dir, "a", "janeiro.xlsx"),
		filepath.Join(dir, "b", "janeiro.xlsx"),
	}
	for i, input := range inputs {
		require.NoError(t, os.MkdirAll(filepath.Dir(input), 0755))
		matricula := []string{"10024450", "97115215"}[i]
		writeWorkbook(t, input, [][]string{
			{"matricula", "rubrica", "valor", "tipo", "trigrama"},
			{matricula, "1208000", "1", "NO", "BAA"},
		})
	}

	cfg := testConfig(dir)
	cfg.OutputFileFormat = "comandos_pagamento_{folha}_{original}_{timestamp}.xml"
	cfg.ArchiveOnSuccess = true
	conv := New(cfg).WithClock(func() time.Time { return testNow })

	var outputs, archives []string
	for _, input := range inputs {
		result := conv.Run(Request{InputPath: input, Signer: testSigner(), Folha: "012025"})
		require.True(t, result.Success, "%v", result.Error)
		outputs = append(outputs, result.OutputFile)
		archives = append(archives, result.ArchivePath)
	}

	assert.Equal(t, []string{
		filepath.Join(cfg.OutputDir, "comandos_pagamento_012025_janeiro_20250203_102030.xml"),
		filepath.Join(cfg.OutputDir, "comandos_pagamento_012025_janeiro_20250203_102030_1.xml"),
	}, outputs)
	assert.Equal(t, []string{
		filepath.Join(cfg.InputArchiveDir, "janeiro.xlsx"),
		filepath.Join(cfg.InputArchiveDir, "janeiro_1.xlsx"),
	}, archives)

	first, err := os.ReadFile(outputs[0])
	require.NoError(t, err)
	second, err := os.ReadFile(outputs[1])
	require.NoError(t, err)
	assert.Contains(t, string(first), "10024450")
	assert.Contains(t, string(second), "97115215")
}

func TestRun_ArchiveTimestampSubdirs(t *testing.T) {
	logger.Nop()
	dir := t.TempDir()
	input := filepath.Join(dir, "in.xlsx")
	writeWorkbook(t, input, [][]string{
		{"matricula", "rubrica", "valor", "tipo", "trigrama"},
		{"10024450", "1208000", "1", "NO", "BAA"},
	})

	cfg := testConfig(dir)
	cfg.ArchiveOnSuccess = true
	cfg.ArchiveTimestampSubdirs = true

	result := New(cfg).WithClock(func() time.Time { return testNow }).
		Run(Request{InputPath: input, Signer: testSigner(), Folha: "012025"})
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, filepath.Join(cfg.InputArchiveDir, "2025", "02", "03", "in.xlsx"), result.ArchivePath)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	logger.Nop()
	dir := t.TempDir()
	input := filepath.Join(dir, "in.xlsx")
	writeWorkbook(t, input, [][]string{
		{"matricula", "rubrica", "valor", "tipo", "trigrama"},
		{"10024450", "1208000", "1", "NO", "BAA"},
	})

	cfg := testConfig(dir)
	result := New(cfg).Run(Request{InputPath: input, Signer: testSigner(), Folha: "012025", DryRun: true})
	require.True(t, result.Success, "%v", result.Error)
	assert.NotEmpty(t, result.XML)
	assert.Empty(t, result.OutputFile)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestRun_FailuresLeaveNoOutput(t *testing.T) {
	logger.Nop()
	dir := t.TempDir()

	allInvalid := filepath.Join(dir, "bad.xlsx")
	writeWorkbook(t, allInvalid, [][]string{
		{"matricula", "rubrica", "valor", "tipo", "trigrama"},
		{"x", "1208000", "1", "NO", "BAA"},
	})
	good := filepath.Join(dir, "good.xlsx")
	writeWorkbook(t, good, [][]string{
		{"matricula", "rubrica", "valor", "tipo", "trigrama"},
		{"10024450", "1208000", "1", "NO", "BAA"},
	})

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{
			name:    "All rows invalid",
			req:     Request{InputPath: allInvalid, Signer: testSigner(), Folha: "012025"},
			wantErr: xmlwriter.ErrNoValidRecords,
		},
		{
			name:    "Invalid folha",
			req:     Request{InputPath: good, Signer: testSigner(), Folha: "2025"},
			wantErr: xmlwriter.ErrInvalidPeriod,
		},
		{
			name:    "Missing input",
			req:     Request{InputPath: filepath.Join(dir, "none.xlsx"), Signer: testSigner(), Folha: "012025"},
			wantErr: ErrInputNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(dir)
			result := New(cfg).Run(tt.req)
			assert.False(t, result.Success)
			assert.ErrorIs(t, result.Error, tt.wantErr)
			assert.Empty(t, result.OutputFile)
			assert.NoDirExists(t, cfg.OutputDir)
		})
	}
}
