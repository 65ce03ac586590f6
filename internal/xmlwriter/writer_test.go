package xmlwriter

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

var fixedNow = time.Date(2025, time.January, 31, 14, 5, 9, 0, time.Local)

func fixedOptions() GenerateOptions {
	opts := DefaultGenerateOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func validRecord(matricula, valor, tipo, trigrama string) types.CommandRecord {
	return types.CommandRecord{
		Matricula: matricula,
		Rubrica:   "1208000",
		Valor:     decimal.NewNullDecimal(decimal.RequireFromString(valor)),
		Tipo:      tipo,
		Trigrama:  trigrama,
		IsValid:   true,
	}
}

func testSigner() types.Responsible {
	return types.Responsible{
		ID:           1,
		Nome:         " responsável padrão ",
		CPF:          "529.982.247-25",
		NIP:          " 12345 ",
		Perfil:       "agi",
		TipoPerfilOM: "iqm",
		Ativo:        true,
	}
}

// parsed mirrors the document for assertions; the decoder needs a UTF-8
// reader, so tests decode the Latin-1 bytes first.
type parsed struct {
	Sistema      string `xml:"sistema"`
	DtGeracao    string `xml:"dtGeracao"`
	DtRemessa    string `xml:"dtRemessa"`
	Nome         string `xml:"nome"`
	CPF          string `xml:"cpf"`
	Perfil       string `xml:"perfil"`
	TipoPerfilOM string `xml:"tipoPerfilOM"`
	NIP          string `xml:"nip"`
	CodPapem     string `xml:"codPapem"`
	QtdeTotal    int    `xml:"qtdeTotal"`
	Folha        string `xml:"folha"`
	Trigramas    []struct {
		Trigrama string `xml:"trigrama"`
		Comandos []struct {
			Identificador int    `xml:"identificador"`
			Matricula     string `xml:"matricula"`
			Alterador     string `xml:"alterador"`
			Rubrica       string `xml:"rubrica"`
			TpRubrica     string `xml:"tpRubrica"`
			FormPagto     string `xml:"formPagto"`
			ValComando    string `xml:"valComando"`
		} `xml:"listaComandosPagamento>ComandoPagamento"`
	} `xml:"listaTrigrama>trigrama"`
}

func parse(t *testing.T, out []byte) parsed {
	t.Helper()
	text, err := DecodeLatin1(out)
	require.NoError(t, err)

	// Drop the declaration: encoding/xml refuses non-UTF-8 declared input
	// without a CharsetReader.
	_, body, found := strings.Cut(text, "\n")
	require.True(t, found)

	var doc parsed
	require.NoError(t, xml.Unmarshal([]byte(body), &doc))
	return doc
}

func TestGenerate_GroupsInFirstSeenOrderWithGlobalIdentifiers(t *testing.T) {
	records := []types.CommandRecord{
		validRecord("10024450", "12000", "NO", "BAA"),
		{Matricula: "ABCDE", IsValid: false, Error: "bad"},
		validRecord("97115215", "3066.09", "DE", "BAA"),
		validRecord("11111111", "0.5", "NO", "ZXC"),
	}

	out, err := GenerateWithOptions(records, testSigner(), "012025", fixedOptions())
	require.NoError(t, err)

	doc := parse(t, out)
	assert.Equal(t, "3", doc.Sistema)
	assert.Equal(t, "31/01/2025 14:05:09", doc.DtGeracao)
	assert.Equal(t, doc.DtGeracao, doc.DtRemessa)
	assert.Equal(t, 3, doc.QtdeTotal)
	assert.Equal(t, "012025", doc.Folha)

	require.Len(t, doc.Trigramas, 2)
	assert.Equal(t, "BAA", doc.Trigramas[0].Trigrama)
	assert.Equal(t, "ZXC", doc.Trigramas[1].Trigrama)

	baa := doc.Trigramas[0].Comandos
	require.Len(t, baa, 2)
	assert.Equal(t, 1, baa[0].Identificador)
	assert.Equal(t, "10024450", baa[0].Matricula)
	assert.Equal(t, "12000.00", baa[0].ValComando)
	assert.Equal(t, "I", baa[0].Alterador)
	assert.Equal(t, "AV", baa[0].FormPagto)
	assert.Equal(t, "NO", baa[0].TpRubrica)
	assert.Equal(t, 2, baa[1].Identificador)
	assert.Equal(t, "3066.09", baa[1].ValComando)

	zxc := doc.Trigramas[1].Comandos
	require.Len(t, zxc, 1)
	assert.Equal(t, 3, zxc[0].Identificador)
	assert.Equal(t, "0.50", zxc[0].ValComando)
}

func TestGenerate_NotSortedAlphabetically(t *testing.T) {
	records := []types.CommandRecord{
		validRecord("10024450", "1", "NO", "ZZZ"),
		validRecord("10024451", "1", "NO", "AAA"),
		validRecord("10024452", "1", "NO", "ZZZ"),
	}

	groups := GroupByTrigrama(records)
	require.Len(t, groups, 2)
	assert.Equal(t, "ZZZ", groups[0].Trigrama)
	assert.Len(t, groups[0].Records, 2)
	assert.Equal(t, "AAA", groups[1].Trigrama)
}

func TestGenerate_DeclarationAndLineEndings(t *testing.T) {
	out, err := GenerateWithOptions([]types.CommandRecord{validRecord("10024450", "1", "NO", "BAA")}, testSigner(), "122024", fixedOptions())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte(Declaration+"\n<ArquivoComandosPagamento>\n")))
	assert.Equal(t, `<?xml version="1.0" encoding="iso-8859-1" standalone="yes"?>`, Declaration)
	assert.NotContains(t, string(out), "\r")
	assert.Contains(t, string(out), "\n  <sistema>3</sistema>\n")
	assert.Contains(t, string(out), "\n      <trigrama>BAA</trigrama>\n")
}

func TestGenerate_SignerNormalizedAndLatin1Bytes(t *testing.T) {
	signer := testSigner()

	out, err := GenerateWithOptions([]types.CommandRecord{validRecord("10024450", "1", "NO", "BAA")}, signer, "012025", fixedOptions())
	require.NoError(t, err)

	latin1Name, err := charmap.ISO8859_1.NewEncoder().String("<nome>RESPONSÁVEL PADRÃO</nome>")
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte(latin1Name)), "name must be encoded as single Latin-1 bytes")
	assert.False(t, bytes.Contains(out, []byte("Á")), "no UTF-8 sequences in the output")

	doc := parse(t, out)
	assert.Equal(t, "52998224725", doc.CPF)
	assert.Equal(t, "12345", doc.NIP)
	assert.Equal(t, "AGI", doc.Perfil)
	assert.Equal(t, "IQM", doc.TipoPerfilOM)
	assert.Equal(t, types.DefaultCodPapem, doc.CodPapem)

	assert.Equal(t, " responsável padrão ", signer.Nome, "caller value untouched")
}

func TestGenerate_UnmappableRunesBecomeCharacterReferences(t *testing.T) {
	signer := testSigner()
	signer.Nome = "ANA €"

	out, err := GenerateWithOptions([]types.CommandRecord{validRecord("10024450", "1", "NO", "BAA")}, signer, "012025", fixedOptions())
	require.NoError(t, err)

	assert.Contains(t, string(out), "<nome>ANA &#8364;</nome>")
	assert.Equal(t, "ANA €", parse(t, out).Nome)
}

func TestGenerate_Failures(t *testing.T) {
	valid := []types.CommandRecord{validRecord("10024450", "1", "NO", "BAA")}

	tests := []struct {
		name    string
		records []types.CommandRecord
		folha   string
		wantErr error
	}{
		{name: "Blank folha", records: valid, folha: "", wantErr: ErrInvalidPeriod},
		{name: "Month 13", records: valid, folha: "132025", wantErr: ErrInvalidPeriod},
		{name: "Garbled folha", records: valid, folha: "01-2025", wantErr: ErrInvalidPeriod},
		{name: "No records", records: nil, folha: "012025", wantErr: ErrNoValidRecords},
		{
			name:    "Only invalid records",
			records: []types.CommandRecord{{Matricula: "x", IsValid: false}},
			folha:   "012025",
			wantErr: ErrNoValidRecords,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Generate(tt.records, testSigner(), tt.folha)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
