package csvparser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestReadFrom_SemicolonAutoDetect(t *testing.T) {
	input := "matricula;rubrica;valor;tipo;trigrama\n" +
		"10024450;1208000;12000,00;NO;BAA\n" +
		"97115215;1208000;3066,09;DE;ZXC\n"

	sheet, err := ReadFrom(strings.NewReader(input), "comandos.csv", config.CSVSettings{})
	require.NoError(t, err)

	assert.Equal(t, "comandos.csv", sheet.Name)
	assert.Equal(t, 3, sheet.Headers["valor"])
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "12000,00", sheet.Rows[0][2])
}

func TestReadFrom_CommaWithQuotedDecimal(t *testing.T) {
	input := "matricula,rubrica,valor,tipo,trigrama\n" +
		"10024450,1208000,\"12000,00\",NO,BAA\n"

	sheet, err := ReadFrom(strings.NewReader(input), "c.csv", config.CSVSettings{Delimiter: ","})
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "12000,00", sheet.Rows[0][2])
}

func TestReadFrom_BlankLinesKeepPhysicalPositions(t *testing.T) {
	input := "matricula;rubrica;valor;tipo;trigrama\n" +
		"10024450;1208000;1;NO;BAA\n" +
		"\n" +
		"\n" +
		"97115215;1208000;2;DE;ZXC\n"

	sheet, err := ReadFrom(strings.NewReader(input), "c.csv", config.CSVSettings{})
	require.NoError(t, err)

	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "10024450", sheet.Rows[0][0])
	assert.Empty(t, sheet.Rows[1])
	assert.Empty(t, sheet.Rows[2])
	assert.Equal(t, "97115215", sheet.Rows[3][0], "line 5 is Rows[3]")
}

func TestReadFrom_LeadingBlankLinesKeepPhysicalPositions(t *testing.T) {
	input := "\n\nmatricula;rubrica;valor;tipo;trigrama\n" +
		"10024450;1208000;1;NO;BAA\n"

	sheet, err := ReadFrom(strings.NewReader(input), "c.csv", config.CSVSettings{})
	require.NoError(t, err)

	col, ok := sheet.Headers.Column("matricula")
	require.True(t, ok)
	assert.Equal(t, 1, col)

	// The data row is physical line 4, so it sits at Rows[2]; the lines
	// before it read as blank rows.
	require.Len(t, sheet.Rows, 3)
	assert.Empty(t, sheet.Rows[0])
	assert.Empty(t, sheet.Rows[1])
	assert.Equal(t, "10024450", sheet.Rows[2][0])
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    rune
	}{
		{name: "Semicolon", content: "matricula;rubrica;valor\n1,2;3;4", want: ';'},
		{name: "Comma", content: "matricula,rubrica,valor\n1;2;3", want: ','},
		{name: "Tab", content: "matricula\trubrica\tvalor\n", want: '\t'},
		{name: "Leading blank lines", content: "\n  \nmatricula\trubrica\n", want: '\t'},
		{name: "No delimiter", content: "matricula\n", want: ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDelimiter([]byte(tt.content)))
		})
	}
}

func TestReadFrom_TabAutoDetect(t *testing.T) {
	input := "matricula\trubrica\tvalor\ttipo\ttrigrama\n" +
		"10024450\t1208000\t12000,00\tNO\tBAA\n"

	sheet, err := ReadFrom(strings.NewReader(input), "c.csv", config.CSVSettings{Delimiter: "auto"})
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, []string{"10024450", "1208000", "12000,00", "NO", "BAA"}, sheet.Rows[0])
}

func TestReadFrom_Latin1(t *testing.T) {
	utf8Text := "matrícula;rubrica;valor;tipo;trigrama\n10024450;1208000;1;NO;ÇÃO\n"
	encoded, err := charmap.ISO8859_1.NewEncoder().String(utf8Text)
	require.NoError(t, err)

	sheet, err := ReadFrom(strings.NewReader(encoded), "l.csv", config.CSVSettings{Encoding: "iso-8859-1"})
	require.NoError(t, err)

	_, ok := sheet.Headers["matrícula"]
	assert.True(t, ok)
	assert.Equal(t, "ÇÃO", sheet.Rows[0][4])
}

func TestReadFrom_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFmatricula,rubrica\n1,2\n"

	sheet, err := ReadFrom(strings.NewReader(input), "b.csv", config.CSVSettings{})
	require.NoError(t, err)
	assert.Equal(t, 1, sheet.Headers["matricula"])
}

func TestReadFrom_Empty(t *testing.T) {
	_, err := ReadFrom(strings.NewReader("  \n"), "e.csv", config.CSVSettings{})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestReadFrom_UnsupportedEncoding(t *testing.T) {
	_, err := ReadFrom(strings.NewReader("a\n"), "e.csv", config.CSVSettings{Encoding: "ebcdic"})
	assert.Error(t, err)
}

func TestRead_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("matricula|rubrica\n123456|1234567\n"), 0644))

	sheet, err := Read(path, config.CSVSettings{Delimiter: "pipe"})
	require.NoError(t, err)
	assert.Equal(t, path, sheet.SourceFile)
	assert.Equal(t, []string{"123456", "1234567"}, sheet.Rows[0])
}
