package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Peñafiel" -> "Penafiel").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// ASCIILabel folds s to printable ASCII for the bitmap overlay font.
// Characters without an ASCII form become '?'.
func ASCIILabel(s string) string {
	s = RemoveDiacritics(s)
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return '?'
		}
		return r
	}, s)
}

// MiddleInitial returns "M." for "maria", or "" for an empty middle name.
func MiddleInitial(middle string) string {
	middle = strings.TrimSpace(middle)
	if middle == "" {
		return ""
	}
	r := []rune(middle)
	return strings.ToUpper(string(r[0])) + "."
}

// DisplayName formats "First M. Last" with each part title-cased.
func DisplayName(first, middle, last string) string {
	// Casers are stateful and must not be shared between goroutines.
	title := cases.Title(language.Und)
	parts := make([]string, 0, 3)
	if f := strings.TrimSpace(first); f != "" {
		parts = append(parts, title.String(f))
	}
	if mi := MiddleInitial(middle); mi != "" {
		parts = append(parts, mi)
	}
	if l := strings.TrimSpace(last); l != "" {
		parts = append(parts, title.String(l))
	}
	return strings.Join(parts, " ")
}
