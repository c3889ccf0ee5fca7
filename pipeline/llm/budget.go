package llm

import "context"

type budgetScaleKey struct{}

// WithBudgetScale marks every model call under ctx with an enlarged token
// budget. Used by the orchestrator for the single silent-exhaustion retry.
func WithBudgetScale(ctx context.Context, scale float64) context.Context {
	if scale <= 1 {
		return ctx
	}
	return context.WithValue(ctx, budgetScaleKey{}, scale)
}

// BudgetScale reports the budget multiplier on ctx, 1 when unset.
func BudgetScale(ctx context.Context) float64 {
	if v, ok := ctx.Value(budgetScaleKey{}).(float64); ok && v > 1 {
		return v
	}
	return 1
}

func scaledBudget(ctx context.Context, budget int64) int64 {
	if s := BudgetScale(ctx); s > 1 {
		return int64(float64(budget) * s)
	}
	return budget
}
