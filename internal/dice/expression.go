// Package dice parses roll expressions and evaluates them against the
// pre-rolled entropy stream.
package dice

import (
	"regexp"
	"strconv"
	"strings"

	"torchlight/internal/domain"
)

// Expression is a parsed NdX[+M][-M] roll.
type Expression struct {
	Raw      string
	Count    int
	Size     int
	Modifier int
}

var exprPattern = regexp.MustCompile(`^(\d*)d(\d+)((?:[+-]\d+)*)$`)
var modPattern = regexp.MustCompile(`[+-]\d+`)

const (
	maxDiceCount = 100
	maxDieSize   = 1000
)

// Parse reads an expression like "2d6+3" or "d20-1". A missing count
// means one die. Returns ExpressionInvalid on anything else.
func Parse(raw string) (Expression, error) {
	compact := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	m := exprPattern.FindStringSubmatch(compact)
	if m == nil {
		return Expression{}, domain.E(domain.KindExpressionInvalid, "cannot parse dice expression %q", raw)
	}

	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return Expression{}, domain.E(domain.KindExpressionInvalid, "invalid dice count in %q", raw)
		}
		count = n
	}
	if count > maxDiceCount {
		return Expression{}, domain.E(domain.KindExpressionInvalid, "too many dice in %q (max %d)", raw, maxDiceCount)
	}

	size, err := strconv.Atoi(m[2])
	if err != nil || size < 2 {
		return Expression{}, domain.E(domain.KindExpressionInvalid, "die size must be at least 2 in %q", raw)
	}
	if size > maxDieSize {
		return Expression{}, domain.E(domain.KindExpressionInvalid, "die size too large in %q (max %d)", raw, maxDieSize)
	}

	modifier := 0
	for _, part := range modPattern.FindAllString(m[3], -1) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return Expression{}, domain.E(domain.KindExpressionInvalid, "invalid modifier in %q", raw)
		}
		modifier += v
	}

	return Expression{Raw: raw, Count: count, Size: size, Modifier: modifier}, nil
}

// MapD20 maps a raw d20 value onto a die of the given size. The
// identity holds for size 20; size 100 values come from the d100 pool
// and pass through unchanged.
func MapD20(n, size int) int {
	return 1 + ((n - 1) % size)
}
