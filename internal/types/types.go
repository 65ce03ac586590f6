// =============================================================================
// Payment Command Converter - Shared Types
// =============================================================================
//
// This package contains the types shared by the pipeline, the XML writer and
// the responsible-party registry. Keeping them here avoids import cycles:
//   - converter  produces CommandRecord values
//   - xmlwriter  consumes CommandRecord and Responsible values
//   - registry   persists Responsible values inside a ConfigurationDocument
//
// =============================================================================

package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/validation"
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMAND RECORDS
// =============================================================================

// CommandRecord is one payment instruction extracted from one spreadsheet row.
//
// A record is built once by the pipeline and never mutated afterwards. When
// IsValid is true every field passed its validator and holds the normalized
// value. When IsValid is false the fields hold the trimmed cell text as read,
// Valor is null and Error/ErrorField describe the first failing check.
type CommandRecord struct {
	// Matricula is the employee registration number (6-10 digits).
	Matricula string `json:"matricula"`

	// Rubrica is the 7-digit payroll line-item code.
	Rubrica string `json:"rubrica"`

	// Valor is the amount rounded to 2 places; null for rejected rows.
	Valor decimal.NullDecimal `json:"valor"`

	// RawValor is the trimmed cell text the amount was parsed from.
	RawValor string `json:"raw_valor,omitempty"`

	// Tipo is NO or DE.
	Tipo string `json:"tipo"`

	// Trigrama is the 3-letter grouping code.
	Trigrama string `json:"trigrama"`

	// LineNumber is the 1-based physical row in the source sheet.
	// The header is row 1, so the first data row is row 2.
	LineNumber int `json:"line_number"`

	// IsValid reports whether every field passed validation.
	IsValid bool `json:"is_valid"`

	// Error is the first validation failure message. Empty when valid.
	Error string `json:"error,omitempty"`

	// ErrorField names the column that produced Error.
	ErrorField string `json:"error_field,omitempty"`
}

// ValorFormatado returns the amount with exactly two fractional digits and a
// dot separator, or "" when the amount is absent.
func (r CommandRecord) ValorFormatado() string {
	if !r.Valor.Valid {
		return ""
	}
	return r.Valor.Decimal.StringFixed(2)
}

// MarshalJSON adds "valor_formatado", the amount exactly as the payload
// writes it.
func (r CommandRecord) MarshalJSON() ([]byte, error) {
	type plain CommandRecord
	return json.Marshal(struct {
		plain
		ValorFormatado string `json:"valor_formatado,omitempty"`
	}{plain: plain(r), ValorFormatado: r.ValorFormatado()})
}

// =============================================================================
// RESPONSIBLE PARTIES
// =============================================================================

// DefaultCodPapem is used whenever a responsible party has no cod_papem.
const DefaultCodPapem = "094"

// Responsible is a signer cited in every generated payload.
//
// Values read from callers may be in any shape; Normalized returns the form
// that is stored and emitted.
type Responsible struct {
	ID           int        `json:"id"`
	Nome         string     `json:"nome"`
	CPF          string     `json:"cpf"`
	NIP          string     `json:"nip"`
	Perfil       string     `json:"perfil"`
	TipoPerfilOM string     `json:"tipoPerfilOm"`
	CodPapem     string     `json:"codPapem"`
	Ativo        bool       `json:"ativo"`
	DataCadastro *time.Time `json:"dataCadastro,omitempty"`
}

// Normalized returns a copy with every field in its stored form:
//   - Nome, Perfil, TipoPerfilOM: trimmed and upper-cased
//   - CPF: digits only
//   - NIP: trimmed
//   - CodPapem: trimmed and upper-cased, "094" when blank
//
// The receiver is not modified.
func (r Responsible) Normalized() Responsible {
	out := r
	out.Nome = upperTrim(r.Nome)
	out.CPF = validation.CleanNationalID(r.CPF)
	out.NIP = strings.TrimSpace(r.NIP)
	out.Perfil = upperTrim(r.Perfil)
	out.TipoPerfilOM = upperTrim(r.TipoPerfilOM)
	out.CodPapem = upperTrim(r.CodPapem)
	if out.CodPapem == "" {
		out.CodPapem = DefaultCodPapem
	}
	if r.DataCadastro != nil {
		ts := *r.DataCadastro
		out.DataCadastro = &ts
	}
	return out
}

// Clone returns an independent copy of the responsible party.
func (r Responsible) Clone() Responsible {
	out := r
	if r.DataCadastro != nil {
		ts := *r.DataCadastro
		out.DataCadastro = &ts
	}
	return out
}

// UnmarshalJSON reads a stored responsible party. A missing "ativo" means
// active, and "dataCadastro" may be written with or without a UTC offset.
func (r *Responsible) UnmarshalJSON(data []byte) error {
	type plain Responsible
	aux := struct {
		*plain
		Ativo        *bool   `json:"ativo"`
		DataCadastro *string `json:"dataCadastro"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Ativo = aux.Ativo == nil || *aux.Ativo

	r.DataCadastro = nil
	if aux.DataCadastro != nil && strings.TrimSpace(*aux.DataCadastro) != "" {
		ts, err := ParseTimestamp(*aux.DataCadastro)
		if err != nil {
			return fmt.Errorf("dataCadastro: %w", err)
		}
		r.DataCadastro = &ts
	}
	return nil
}

func upperTrim(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// =============================================================================
// CONFIGURATION DOCUMENT
// =============================================================================

// ConfigurationDocument is the registry's persisted root.
type ConfigurationDocument struct {
	Versao            string        `json:"versao"`
	UltimaAtualizacao time.Time     `json:"ultimaAtualizacao"`
	Responsaveis      []Responsible `json:"responsaveis"`
}

// UnmarshalJSON reads a stored document, accepting "ultimaAtualizacao" with
// or without a UTC offset.
func (d *ConfigurationDocument) UnmarshalJSON(data []byte) error {
	type plain ConfigurationDocument
	aux := struct {
		*plain
		UltimaAtualizacao *string `json:"ultimaAtualizacao"`
	}{plain: (*plain)(d)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	d.UltimaAtualizacao = time.Time{}
	if aux.UltimaAtualizacao != nil && strings.TrimSpace(*aux.UltimaAtualizacao) != "" {
		ts, err := ParseTimestamp(*aux.UltimaAtualizacao)
		if err != nil {
			return fmt.Errorf("ultimaAtualizacao: %w", err)
		}
		d.UltimaAtualizacao = ts
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d ConfigurationDocument) Clone() ConfigurationDocument {
	out := ConfigurationDocument{
		Versao:            d.Versao,
		UltimaAtualizacao: d.UltimaAtualizacao,
		Responsaveis:      make([]Responsible, 0, len(d.Responsaveis)),
	}
	for _, r := range d.Responsaveis {
		out.Responsaveis = append(out.Responsaveis, r.Clone())
	}
	return out
}

// =============================================================================
// TIMESTAMPS
// =============================================================================

// localTimestampLayouts are tried, in local time, when a stored timestamp has
// no UTC offset. Fractional seconds of any length are accepted.
var localTimestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a stored timestamp: RFC 3339 first, then the
// offset-less ISO 8601 forms, which are read as local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range localTimestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// =============================================================================
// SHEETS
// =============================================================================

// HeaderMap maps a lower-cased header name to its 1-based column index.
type HeaderMap map[string]int

// NewHeaderMap builds a HeaderMap from a header row.
// Names are trimmed and lower-cased, blank names are skipped and the first
// occurrence of a repeated name wins.
func NewHeaderMap(headers []string) HeaderMap {
	m := make(HeaderMap, len(headers))
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			continue
		}
		if _, exists := m[name]; !exists {
			m[name] = i + 1
		}
	}
	return m
}

// Column returns the 1-based index of name, ignoring case and surrounding
// blanks in both name and keys. When several keys match, the leftmost
// column wins.
func (m HeaderMap) Column(name string) (int, bool) {
	name = strings.TrimSpace(name)
	found := 0
	for key, col := range m {
		if !strings.EqualFold(strings.TrimSpace(key), name) {
			continue
		}
		if found == 0 || col < found {
			found = col
		}
	}
	return found, found > 0
}

// Sheet is the raw cell text of one worksheet as handed over by a reader.
type Sheet struct {
	// SourceFile is the path the sheet was read from.
	SourceFile string

	// Name is the worksheet name (the file name for CSV input).
	Name string

	// Headers maps header names to 1-based columns.
	Headers HeaderMap

	// Rows holds the data rows in physical order. Rows[i] is physical row i+2.
	// Rows may be ragged; missing trailing cells read as "".
	Rows [][]string
}

// Cell returns the text at a 1-based column of a row, or "" if the row is
// shorter than that.
func Cell(row []string, column int) string {
	if column < 1 || column > len(row) {
		return ""
	}
	return row[column-1]
}
