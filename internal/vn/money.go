package vn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

var currencyStripper = strings.NewReplacer("vnđ", "", "vnd", "", "đồng", "", "₫", "", "đ", "", " ", "", "\u00a0", "")

// ParseMoney reads a đồng amount the way shop staff type it into a sheet:
// "1.250.000", "1,250,000", "1250000đ", "12.5tr", "1tr2", "500k", "(200.000)".
func ParseMoney(raw string) (decimal.Decimal, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "-" {
		return decimal.Zero, ErrEmptyAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = currencyStripper.Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	multiplier := decimal.NewFromInt(1)
	for _, unit := range []struct {
		suffix string
		mult   decimal.Decimal
	}{
		{"triệu", million}, {"trieu", million}, {"tr", million}, {"m", million},
		{"nghìn", thousand}, {"ngàn", thousand}, {"ngan", thousand}, {"nghin", thousand}, {"k", thousand},
	} {
		idx := strings.Index(s, unit.suffix)
		if idx <= 0 {
			continue
		}
		head, tail := s[:idx], s[idx+len(unit.suffix):]
		if tail != "" {
			// "1tr2" means 1.2 million; "1tr250" means 1.25 million.
			if !isDigits(tail) || strings.ContainsAny(head, ".,") {
				return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
			}
			head = head + "." + tail
			s = head
		} else if unit.mult.Equal(thousand) {
			// "1.200k" groups thousands of thousands; a đồng has no fraction.
			s = normalizeSeparators(head)
		} else {
			// "1,250tr" is one and a quarter million.
			s = strings.ReplaceAll(head, ",", ".")
		}
		multiplier = unit.mult
		break
	}

	if multiplier.Equal(decimal.NewFromInt(1)) {
		s = normalizeSeparators(s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	d = d.Mul(multiplier)
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// MoneyOrZero is ParseMoney for optional cells.
func MoneyOrZero(raw string) decimal.Decimal {
	d, err := ParseMoney(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// normalizeSeparators turns grouping separators into nothing and a decimal
// separator into '.'. A single separator followed by exactly three digits is
// grouping, because đồng amounts have no minor unit.
func normalizeSeparators(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			return strings.ReplaceAll(s, ",", "")
		}
		s = strings.ReplaceAll(s, ".", "")
		return strings.ReplaceAll(s, ",", ".")
	case dot >= 0:
		if strings.Count(s, ".") > 1 || len(s[dot+1:]) == 3 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	case comma >= 0:
		if strings.Count(s, ",") > 1 || len(s[comma+1:]) == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.ReplaceAll(s, ",", ".")
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

var printer = message.NewPrinter(language.Vietnamese)

// FormatVND renders whole đồng with Vietnamese grouping: "1.250.000 ₫".
func FormatVND(d decimal.Decimal) string {
	return printer.Sprintf("%d", d.Round(0).IntPart()) + " ₫"
}

// CellAmount is the plain integer written back into money cells.
func CellAmount(d decimal.Decimal) string {
	return d.Round(0).String()
}
