package ticket

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ranges of pictographic symbols the printer cannot render. Stripped rather
// than folded.
var symbolRanges = &unicode.RangeTable{
	R32: []unicode.Range32{
		{Lo: 0x2600, Hi: 0x26ff, Stride: 1},   // misc symbols
		{Lo: 0x2700, Hi: 0x27bf, Stride: 1},   // dingbats
		{Lo: 0x1f300, Hi: 0x1f5ff, Stride: 1}, // pictographs
		{Lo: 0x1f600, Hi: 0x1f64f, Stride: 1}, // emoticons
		{Lo: 0x1f680, Hi: 0x1f6ff, Stride: 1}, // transport
		{Lo: 0x1f900, Hi: 0x1f9ff, Stride: 1}, // supplemental symbols
	},
}

// foldDiacritics decomposes to NFD and drops the combining marks, turning
// "Jalapeño" into "Jalapeno".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Sanitize makes text safe for a thermal printer: strips emoji and symbol
// ranges, folds accented characters to ASCII, drops anything else outside the
// printable ASCII range, and trims surrounding whitespace. Total: never fails,
// any input produces some output.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.Is(symbolRanges, r) {
			return -1
		}
		return r
	}, s)

	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}

	s = strings.Map(func(r rune) rune {
		if r >= 0x20 && r <= 0x7e {
			return r
		}
		return -1
	}, s)

	return strings.TrimSpace(s)
}
