package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// AmountStrategy extracts a monetary amount from normalized message
// text. Strategies run in a fixed priority order; the first non-nil
// result wins. Each strategy is independently testable.
type AmountStrategy interface {
	Name() string
	Extract(text string) *float64
}

// labeledAmountStrategy matches "Amount: <CUR> <number>" occurrences.
// Notification templates repeat the line for fees and partial amounts;
// the final settled amount is written with exactly two decimals, so the
// last two-decimal occurrence is preferred, falling back to the last
// occurrence of any shape.
type labeledAmountStrategy struct {
	pattern *regexp.Regexp
}

func newLabeledAmountStrategy(currency string) *labeledAmountStrategy {
	return &labeledAmountStrategy{
		pattern: regexp.MustCompile(`(?i)amount:\s*` + regexp.QuoteMeta(currency) + `\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
	}
}

func (s *labeledAmountStrategy) Name() string { return "labeled-amount" }

func (s *labeledAmountStrategy) Extract(text string) *float64 {
	matches := s.pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	last := matches[len(matches)-1][1]
	lastTwoDecimal := ""
	for _, m := range matches {
		if hasTwoDecimals(m[1]) {
			lastTwoDecimal = m[1]
		}
	}

	if lastTwoDecimal != "" {
		return parseAmount(lastTwoDecimal)
	}
	return parseAmount(last)
}

// bareAmountStrategy matches the first "<CUR> <number>" anywhere in the
// text. It only runs when no labeled occurrence exists at all.
type bareAmountStrategy struct {
	pattern *regexp.Regexp
}

func newBareAmountStrategy(currency string) *bareAmountStrategy {
	return &bareAmountStrategy{
		pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(currency) + `\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
	}
}

func (s *bareAmountStrategy) Name() string { return "bare-amount" }

func (s *bareAmountStrategy) Extract(text string) *float64 {
	m := s.pattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseAmount(m[1])
}

func hasTwoDecimals(number string) bool {
	_, frac, ok := strings.Cut(number, ".")
	return ok && len(frac) == 2
}

// parseAmount strips thousands separators, parses the decimal and
// rounds to two places, ties away from zero.
func parseAmount(number string) *float64 {
	cleaned := strings.ReplaceAll(number, ",", "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	rounded := math.Round(value*100) / 100
	return &rounded
}
