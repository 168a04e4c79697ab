// Package vn holds the Vietnamese-locale parsing and formatting used for
// spreadsheet cells: diacritic folding, đồng amounts, phone numbers and dates.
package vn

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var dReplacer = strings.NewReplacer("đ", "d", "Đ", "D")

// Fold strips diacritics: "Điện thoại" -> "Dien thoai".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return dReplacer.Replace(out)
}

var keyPunct = strings.NewReplacer("_", " ", "-", " ", ".", " ", "/", " ", "(", " ", ")", " ", ":", " ", "—", " ", "–", " ")

// Key folds s into a comparison key: lower case, no diacritics, punctuation
// turned into single spaces.
func Key(s string) string {
	s = strings.ToLower(Fold(strings.TrimSpace(s)))
	s = keyPunct.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeIMEI upper-cases an IMEI/serial and drops spaces and dashes.
func NormalizeIMEI(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", "'", "").Replace(s)
}
