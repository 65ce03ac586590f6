// =============================================================================
// Payment Command Converter - XML Writer Module
// =============================================================================
//
// This module builds the payment-command payload consumed by the downstream
// payroll system from validated records and one responsible party.
//
// XML STRUCTURE:
//
//   <?xml version="1.0" encoding="iso-8859-1" standalone="yes"?>
//   <ArquivoComandosPagamento>
//     <sistema>3</sistema>
//     <dtGeracao>15/10/2026 09:30:00</dtGeracao>
//     <dtRemessa>15/10/2026 09:30:00</dtRemessa>
//     <nome>...</nome> <cpf>...</cpf> <perfil>...</perfil>
//     <tipoPerfilOM>...</tipoPerfilOM> <nip>...</nip> <codPapem>...</codPapem>
//     <qtdeTotal>3</qtdeTotal>
//     <folha>012025</folha>
//     <listaTrigrama>
//       <trigrama>                         <!-- one block per trigrama -->
//         <trigrama>BAA</trigrama>
//         <listaComandosPagamento>
//           <ComandoPagamento>
//             <identificador>1</identificador>   <!-- global numbering -->
//             <matricula>10024450</matricula>
//             <alterador>I</alterador>
//             <rubrica>1208000</rubrica>
//             <tpRubrica>NO</tpRubrica>
//             <formPagto>AV</formPagto>
//             <valComando>12000.00</valComando>
//           </ComandoPagamento>
//         </listaComandosPagamento>
//       </trigrama>
//     </listaTrigrama>
//   </ArquivoComandosPagamento>
//
// ORDERING:
//   - Blocks follow the first appearance of each trigrama in the input.
//   - Commands inside a block keep input order.
//   - identificador starts at 1 and never resets between blocks.
//
// ENCODING:
//   The document is built as UTF-8 and transcoded to ISO-8859-1. Characters
//   outside Latin-1 are written as numeric character references, so the bytes
//   always match the declared encoding.
//
// =============================================================================

package xmlwriter

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/validation"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Declaration is the exact first line of every generated document.
const Declaration = `<?xml version="1.0" encoding="iso-8859-1" standalone="yes"?>`

// TimestampLayout formats dtGeracao and dtRemessa (dd/MM/yyyy HH:mm:ss).
const TimestampLayout = "02/01/2006 15:04:05"

// Fixed literals of the payload.
const (
	SistemaCode     = "3"
	AlteradorInsert = "I"
	FormPagtoAVista = "AV"
)

var (
	// ErrInvalidPeriod is returned when the folha is not a MMYYYY period code.
	ErrInvalidPeriod = errors.New("invalid period code")

	// ErrNoValidRecords is returned when no record passed validation.
	ErrNoValidRecords = errors.New("no valid records found")
)

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// GenerateOptions contains options for XML generation.
type GenerateOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// Now returns the generation time used for dtGeracao and dtRemessa.
	// Default: time.Now
	Now func() time.Time
}

// DefaultGenerateOptions returns the default generation options.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Indent: "  ",
		Now:    time.Now,
	}
}

// =============================================================================
// DOCUMENT MODEL
// =============================================================================

type document struct {
	XMLName      xml.Name        `xml:"ArquivoComandosPagamento"`
	Sistema      string          `xml:"sistema"`
	DtGeracao    string          `xml:"dtGeracao"`
	DtRemessa    string          `xml:"dtRemessa"`
	Nome         string          `xml:"nome"`
	CPF          string          `xml:"cpf"`
	Perfil       string          `xml:"perfil"`
	TipoPerfilOM string          `xml:"tipoPerfilOM"`
	NIP          string          `xml:"nip"`
	CodPapem     string          `xml:"codPapem"`
	QtdeTotal    int             `xml:"qtdeTotal"`
	Folha        string          `xml:"folha"`
	Trigramas    []trigramaBlock `xml:"listaTrigrama>trigrama"`
}

type trigramaBlock struct {
	Trigrama string    `xml:"trigrama"`
	Comandos []comando `xml:"listaComandosPagamento>ComandoPagamento"`
}

type comando struct {
	Identificador int    `xml:"identificador"`
	Matricula     string `xml:"matricula"`
	Alterador     string `xml:"alterador"`
	Rubrica       string `xml:"rubrica"`
	TpRubrica     string `xml:"tpRubrica"`
	FormPagto     string `xml:"formPagto"`
	ValComando    string `xml:"valComando"`
}

// Group is the set of valid records sharing one trigrama.
type Group struct {
	Trigrama string
	Records  []types.CommandRecord
}

// GroupByTrigrama keeps the valid records and groups them by trigrama in
// first-seen order. Records keep their input order inside each group.
func GroupByTrigrama(records []types.CommandRecord) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, r := range records {
		if !r.IsValid {
			continue
		}
		i, ok := index[r.Trigrama]
		if !ok {
			i = len(groups)
			index[r.Trigrama] = i
			groups = append(groups, Group{Trigrama: r.Trigrama})
		}
		groups[i].Records = append(groups[i].Records, r)
	}

	return groups
}

// =============================================================================
// XML GENERATION FUNCTIONS
// =============================================================================

// Generate creates the ISO-8859-1 payload with the default options.
//
// PARAMETERS:
//   - records: Pipeline output. Rejected records are ignored.
//   - signer: The responsible party cited in the header. It is normalized
//     before use; the caller's value is not modified.
//   - folha: The MMYYYY period code.
//
// RETURNS:
//   - The complete document bytes, or nil and an error. Nothing is returned
//     on failure.
func Generate(records []types.CommandRecord, signer types.Responsible, folha string) ([]byte, error) {
	return GenerateWithOptions(records, signer, folha, DefaultGenerateOptions())
}

// GenerateWithOptions creates the payload with custom options.
//
// GENERATION PROCESS:
//  1. Check the period code and that at least one record is valid
//  2. Group valid records by trigrama and number them globally
//  3. Marshal with indentation behind the fixed declaration
//  4. Transcode the UTF-8 result to ISO-8859-1
func GenerateWithOptions(records []types.CommandRecord, signer types.Responsible, folha string, options GenerateOptions) ([]byte, error) {
	if !validation.IsValidPeriodCode(folha) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, folha)
	}

	groups := GroupByTrigrama(records)
	if len(groups) == 0 {
		return nil, ErrNoValidRecords
	}

	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Indent == "" {
		options.Indent = "  "
	}

	doc := buildDocument(groups, signer.Normalized(), folha, options.Now())

	body, err := xml.MarshalIndent(doc, "", options.Indent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}

	var buffer bytes.Buffer
	buffer.Grow(len(Declaration) + 1 + len(body))
	buffer.WriteString(Declaration)
	buffer.WriteByte('\n')
	buffer.Write(body)

	encoded, err := encodeLatin1(buffer.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to encode XML as ISO-8859-1: %w", err)
	}

	return encoded, nil
}

// buildDocument fills the document model from grouped records.
func buildDocument(groups []Group, signer types.Responsible, folha string, now time.Time) document {
	timestamp := now.Format(TimestampLayout)

	doc := document{
		Sistema:      SistemaCode,
		DtGeracao:    timestamp,
		DtRemessa:    timestamp,
		Nome:         signer.Nome,
		CPF:          signer.CPF,
		Perfil:       signer.Perfil,
		TipoPerfilOM: signer.TipoPerfilOM,
		NIP:          signer.NIP,
		CodPapem:     signer.CodPapem,
		Folha:        folha,
		Trigramas:    make([]trigramaBlock, 0, len(groups)),
	}

	identificador := 1
	for _, g := range groups {
		block := trigramaBlock{
			Trigrama: g.Trigrama,
			Comandos: make([]comando, 0, len(g.Records)),
		}
		for _, r := range g.Records {
			block.Comandos = append(block.Comandos, comando{
				Identificador: identificador,
				Matricula:     r.Matricula,
				Alterador:     AlteradorInsert,
				Rubrica:       r.Rubrica,
				TpRubrica:     r.Tipo,
				FormPagto:     FormPagtoAVista,
				ValComando:    r.ValorFormatado(),
			})
			identificador++
		}
		doc.QtdeTotal += len(g.Records)
		doc.Trigramas = append(doc.Trigramas, block)
	}

	return doc
}

// encodeLatin1 transcodes UTF-8 to ISO-8859-1, replacing unmappable runes by
// numeric character references.
func encodeLatin1(utf8Bytes []byte) ([]byte, error) {
	encoder := encoding.HTMLEscapeUnsupported(charmap.ISO8859_1.NewEncoder())
	return encoder.Bytes(utf8Bytes)
}

// DecodeLatin1 converts an ISO-8859-1 document back to a UTF-8 string.
// Useful for previews and tests.
func DecodeLatin1(latin1 []byte) (string, error) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(latin1)
	if err != nil {
		return "", fmt.Errorf("failed to decode ISO-8859-1: %w", err)
	}
	return string(decoded), nil
}
