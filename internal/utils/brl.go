package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	nonDigit    = regexp.MustCompile(`\D`)
	ordinalMark = strings.NewReplacer("º", "", "°", "", "ª", "", ".", "")
	brlCleaner  = strings.NewReplacer("R$", "", " ", "", "\u00a0", "", ".", "")
)

// ParseBRL parses a Brazilian formatted amount ("R$ 1.234.567,89") into an exact decimal.
// Empty values and "-" parse as zero.
func ParseBRL(text string) (decimal.Decimal, error) {
	cleaned := brlCleaner.Replace(strings.TrimSpace(text))
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, nil
	}

	if strings.Count(cleaned, ",") > 1 {
		return decimal.Zero, fmt.Errorf("invalid amount %q", text)
	}
	cleaned = strings.Replace(cleaned, ",", ".", 1)

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	return value, nil
}

// FormatBRL formats an amount with a decimal comma and no thousands separator,
// the layout spreadsheet tools in pt-BR locales read back as numbers.
func FormatBRL(value decimal.Decimal) string {
	return strings.Replace(value.StringFixed(2), ".", ",", 1)
}

// ParseOrdinal converts an order label such as "2º" or "1.034º" into its integer value
func ParseOrdinal(text string) (int, error) {
	cleaned := strings.TrimSpace(ordinalMark.Replace(strings.TrimSpace(text)))
	if cleaned == "" {
		return 0, fmt.Errorf("empty ordinal")
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid ordinal %q: %w", text, err)
	}
	return n, nil
}

// ParseCount extracts an integer from text such as "1.767" or "1767 precatórios"
func ParseCount(text string) int {
	digits := nonDigit.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
