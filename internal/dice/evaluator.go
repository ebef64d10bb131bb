package dice

import (
	"context"
	"fmt"
	"strings"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/domain/repositories"
)

// Evaluator resolves parsed expressions against the entropy stream.
// Each expression draws from the pools of a single entry; an entry's
// d20 pool feeds every die size except 100, which uses the d100 pool.
type Evaluator struct {
	entropy repositories.EntropyRepository
}

func NewEvaluator(entropy repositories.EntropyRepository) *Evaluator {
	return &Evaluator{entropy: entropy}
}

// Evaluate resolves one expression using the entry at the given
// 1-based index. It returns EntropyMissing when the index is past the
// stream and EntropyExhausted when the entry's pool is too small for
// the expression.
func (e *Evaluator) Evaluate(ctx context.Context, raw string, index int) (models.RollResolution, error) {
	expr, err := Parse(raw)
	if err != nil {
		return models.RollResolution{}, err
	}

	entry, err := e.entropy.EntropyEntry(ctx, index)
	if err != nil {
		return models.RollResolution{}, err
	}

	pool := entry.D20
	if expr.Size == 100 {
		pool = entry.D100
	}
	if len(pool) < expr.Count {
		return models.RollResolution{}, domain.E(domain.KindEntropyExhausted,
			"entropy entry %d has %d values, expression %q needs %d", index, len(pool), raw, expr.Count)
	}

	values := make([]int, expr.Count)
	total := expr.Modifier
	for i := 0; i < expr.Count; i++ {
		v := pool[i]
		if expr.Size != 100 {
			v = MapD20(v, expr.Size)
		}
		values[i] = v
		total += v
	}

	return models.RollResolution{
		Expression:      raw,
		Total:           total,
		Breakdown:       breakdown(expr, values, total),
		ConsumedIndices: []int{index},
	}, nil
}

// DrawD20 pops the first n raw d20 values from the entry at index,
// for named checks where advantage draws two.
func (e *Evaluator) DrawD20(ctx context.Context, index, n int) ([]int, error) {
	entry, err := e.entropy.EntropyEntry(ctx, index)
	if err != nil {
		return nil, err
	}
	if len(entry.D20) < n {
		return nil, domain.E(domain.KindEntropyExhausted,
			"entropy entry %d has %d d20 values, need %d", index, len(entry.D20), n)
	}
	return entry.D20[:n], nil
}

func breakdown(expr Expression, values []int, total int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%dd%d [%s]", expr.Count, expr.Size, strings.Join(parts, " "))
	if expr.Modifier > 0 {
		fmt.Fprintf(&b, " + %d", expr.Modifier)
	} else if expr.Modifier < 0 {
		fmt.Fprintf(&b, " - %d", -expr.Modifier)
	}
	fmt.Fprintf(&b, " = %d", total)
	return b.String()
}
