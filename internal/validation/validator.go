// =============================================================================
// Payment Command Converter - Validation Module
// =============================================================================
//
// This module holds the business rules for every datum that reaches the XML
// payload. Every function here is total: malformed input yields false (or a
// failed parse), never a panic.
//
// RULES:
//   - matricula : 6 to 10 ASCII digits
//   - rubrica   : exactly 7 ASCII digits
//   - valor     : non-negative decimal, "," accepted as decimal separator
//   - tipo      : NO or DE, case-insensitive
//   - trigrama  : 3 letters after trimming
//   - CPF       : 11 digits with two modulo-11 check digits
//   - folha     : MMYYYY, month 01-12, year 2000-2100
//
// =============================================================================

package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LENGTH LIMITS
// =============================================================================

const (
	MinMatriculaLength = 6
	MaxMatriculaLength = 10
	RubricaLength      = 7
	TrigramaLength     = 3
	NationalIDLength   = 11
	PeriodCodeLength   = 6

	MinPeriodYear = 2000
	MaxPeriodYear = 2100
)

// amountPattern accepts an optional leading sign, surrounding blanks and a
// single "." separator. Thousands separators and exponents are rejected.
var amountPattern = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)\s*$`)

// =============================================================================
// NATIONAL ID (CPF)
// =============================================================================

// CleanNationalID strips every non-digit character and returns what is left.
// The result may be empty.
func CleanNationalID(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			builder.WriteByte(s[i])
		}
	}
	return builder.String()
}

// IsValidNationalID reports whether s, once cleaned, is a CPF with correct
// check digits.
//
// ALGORITHM:
//   1. Clean to digits; require 11 digits that are not all identical.
//   2. First check digit: weights 10..2 over positions 0-8.
//   3. Second check digit: weights 11..2 over positions 0-9.
//   For both, r = sum mod 11 and the digit is 0 when r < 2, else 11 - r.
func IsValidNationalID(s string) bool {
	digits := CleanNationalID(s)
	if len(digits) != NationalIDLength {
		return false
	}

	if strings.Count(digits, digits[:1]) == NationalIDLength {
		return false
	}

	if checkDigit(digits[:9], 10) != int(digits[9]-'0') {
		return false
	}

	return checkDigit(digits[:10], 11) == int(digits[10]-'0')
}

// checkDigit computes one CPF check digit over digits with weights that
// start at firstWeight and descend by one per position.
func checkDigit(digits string, firstWeight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (firstWeight - i)
	}

	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

// =============================================================================
// PERIOD CODE (FOLHA)
// =============================================================================

// IsValidPeriodCode reports whether s is a six-digit MMYYYY payroll period.
//
// The first two characters are the month and the remaining four are the year.
func IsValidPeriodCode(s string) bool {
	if len(s) != PeriodCodeLength || !allDigits(s) {
		return false
	}

	month, _ := strconv.Atoi(s[:2])
	year, _ := strconv.Atoi(s[2:])

	if month < 1 || month > 12 {
		return false
	}

	return year >= MinPeriodYear && year <= MaxPeriodYear
}

// =============================================================================
// COMMAND FIELDS
// =============================================================================

// IsValidMatricula reports whether s has 6 to 10 digits and nothing else.
func IsValidMatricula(s string) bool {
	return allDigits(s) && len(s) >= MinMatriculaLength && len(s) <= MaxMatriculaLength
}

// IsValidRubrica reports whether s has exactly 7 digits.
func IsValidRubrica(s string) bool {
	return len(s) == RubricaLength && allDigits(s)
}

// TryParseAmount parses a monetary amount written with "." or "," as the
// decimal separator.
//
// RETURNS:
//   - The parsed amount (not rounded).
//   - false for blank, malformed or negative input.
func TryParseAmount(s string) (decimal.Decimal, bool) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, false
	}

	normalized := strings.ReplaceAll(s, ",", ".")
	if !amountPattern.MatchString(normalized) {
		return decimal.Zero, false
	}

	value, err := decimal.NewFromString(strings.TrimSpace(normalized))
	if err != nil {
		return decimal.Zero, false
	}

	if value.IsNegative() {
		return decimal.Zero, false
	}

	return value, true
}

// Tipo values accepted in the "tipo" column.
const (
	TipoNormal   = "NO" // credit
	TipoDesconto = "DE" // debit
)

// IsValidTipo reports whether s is NO or DE, ignoring case and blanks.
func IsValidTipo(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case TipoNormal, TipoDesconto:
		return true
	default:
		return false
	}
}

// IsValidTrigrama reports whether s is three letters once trimmed.
func IsValidTrigrama(s string) bool {
	trimmed := strings.TrimSpace(s)
	if utf8.RuneCountInString(trimmed) != TrigramaLength {
		return false
	}

	for _, r := range trimmed {
		if !unicode.IsLetter(r) {
			return false
		}
	}

	return true
}

// =============================================================================
// HELPERS
// =============================================================================

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// allDigits reports whether s is non-empty and made only of ASCII digits.
func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
