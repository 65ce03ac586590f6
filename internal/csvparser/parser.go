// =============================================================================
// Payment Command Converter - CSV Reader
// =============================================================================
//
// This module reads payment commands exported as CSV instead of XLSX. It
// produces the same Sheet shape as the XLSX reader so the pipeline does not
// care where the rows came from.
//
// FEATURES:
//   - Delimiters: comma, semicolon, pipe, tab, or auto-detected from the header
//   - Legacy encodings: ISO-8859-1 and Windows-1252 exports are decoded to UTF-8
//   - Physical row numbers are kept: blank lines become empty rows so that
//     Rows[i] is always line i+2 of the file
//
// =============================================================================

package csvparser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/config"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"golang.org/x/text/encoding/charmap"
)

// ErrEmptyFile is returned when the file has no header line.
var ErrEmptyFile = errors.New("CSV file is empty")

// utf8BOM is stripped from the start of UTF-8 files written by spreadsheet tools.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Read parses a CSV file into a Sheet.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: Delimiter and encoding settings.
//
// RETURNS:
//   - The sheet with the header map from line 1 and the following lines as rows.
//   - ErrEmptyFile if the file has no content.
//   - An error if the file cannot be read or is malformed.
func Read(filePath string, settings config.CSVSettings) (*types.Sheet, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	sheet, err := ReadFrom(file, filePath, settings)
	if err != nil {
		return nil, err
	}
	return sheet, nil
}

// ReadFrom parses CSV content from r. name is recorded as the source.
func ReadFrom(r io.Reader, name string, settings config.CSVSettings) (*types.Sheet, error) {
	decoded, err := decode(r, settings.Encoding)
	if err != nil {
		return nil, err
	}

	content, err := io.ReadAll(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	content = bytes.TrimPrefix(content, utf8BOM)

	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyFile
	}

	csvReader := csv.NewReader(bytes.NewReader(content))
	configureReader(csvReader, settings.Delimiter, content)

	var (
		headers []string
		rows    [][]string
	)

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}

		line, _ := csvReader.FieldPos(0)
		if headers == nil {
			headers = record
			continue
		}

		// Blank lines are skipped by encoding/csv; pad so that the index
		// still matches the physical line.
		index := line - 2
		for len(rows) < index {
			rows = append(rows, []string{})
		}
		rows = append(rows, record)
	}

	if headers == nil {
		return nil, ErrEmptyFile
	}
	if rows == nil {
		rows = [][]string{}
	}

	return &types.Sheet{
		SourceFile: name,
		Name:       filepath.Base(name),
		Headers:    types.NewHeaderMap(headers),
		Rows:       rows,
	}, nil
}

// decode wraps r with a decoder for the configured encoding.
func decode(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	default:
		return nil, fmt.Errorf("unsupported CSV encoding %q", encoding)
	}
}

// configureReader sets the delimiter and relaxes quoting.
//
// An empty delimiter (or "auto") picks whichever of ";", "," and tab appears
// most often in the header line. Ties go to ",".
func configureReader(reader *csv.Reader, delimiter string, content []byte) {
	switch delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	case ",", "comma":
		reader.Comma = ','
	case "", "auto":
		reader.Comma = detectDelimiter(content)
	default:
		reader.Comma = rune(delimiter[0])
	}

	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// detectDelimiter inspects the first non-blank line, which is the header.
func detectDelimiter(content []byte) rune {
	var header []byte
	for _, line := range bytes.Split(content, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			header = line
			break
		}
	}

	best, bestCount := ',', bytes.Count(header, []byte(","))
	for _, candidate := range []rune{';', '\t'} {
		if n := bytes.Count(header, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}
