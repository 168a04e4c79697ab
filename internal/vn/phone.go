package vn

import "strings"

// NormalizePhone reduces a phone cell to its canonical local form
// ("0912345678"). "+84 912 345 678", "84912345678" and "912345678" (leading
// zero eaten by a numeric cell) all normalise to the same key.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "84") && len(digits) >= 11:
		return "0" + digits[2:]
	case !strings.HasPrefix(digits, "0") && len(digits) == 9:
		return "0" + digits
	}
	return digits
}
