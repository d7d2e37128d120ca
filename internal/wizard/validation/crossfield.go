package validation

import (
	"fmt"
	"math"

	"sprout/internal/wizard/models"
)

// CheckInvariant evaluates one cross-field rule against the aggregate. It returns
// false when the invariant holds or cannot be evaluated yet because an input is
// missing or non-numeric; field rules report those inputs.
func CheckInvariant(r models.CrossFieldRule, agg models.Aggregate) (models.CrossFieldError, bool) {
	switch r.Kind {
	case models.CrossPercentageTotal:
		total := agg.Group(r.Group).Sum(r.ItemField)
		if lessThan(total, r.Min) || greaterThan(total, r.Max) {
			return violation(r, fmt.Sprintf("Total %s must be between %s%% and %s%% (currently %s%%)",
				r.ItemField, num(r.Min), num(r.Max), num(models.Round2(total)))), true
		}
	case models.CrossAmountCeiling:
		ref, ok := models.Number(agg.Fields[r.Reference])
		if !ok {
			return models.CrossFieldError{}, false
		}
		ceiling := ref * r.Factor
		total := agg.Group(r.Group).Sum(r.ItemField)
		if greaterThan(total, ceiling) {
			return violation(r, fmt.Sprintf("Total %s (%s) exceeds %s × %s = %s",
				r.ItemField, num(total), r.Reference, num(r.Factor), num(ceiling))), true
		}
	case models.CrossMaxRatio:
		v, ok1 := models.Number(agg.Fields[r.Field])
		ref, ok2 := models.Number(agg.Fields[r.Reference])
		if !ok1 || !ok2 {
			return models.CrossFieldError{}, false
		}
		limit := ref * r.Factor
		if greaterThan(v, limit) {
			return violation(r, fmt.Sprintf("%s (%s) must not exceed %s × %s = %s",
				r.Field, num(v), r.Reference, num(r.Factor), num(limit))), true
		}
	case models.CrossGreaterThan:
		v, ok1 := models.Number(agg.Fields[r.Field])
		ref, ok2 := models.Number(agg.Fields[r.Reference])
		if !ok1 || !ok2 {
			return models.CrossFieldError{}, false
		}
		if v <= ref {
			return violation(r, fmt.Sprintf("%s must be greater than %s", r.Field, r.Reference)), true
		}
	}
	return models.CrossFieldError{}, false
}

func violation(r models.CrossFieldRule, fallback string) models.CrossFieldError {
	msg := r.Message
	if msg == "" {
		msg = fallback
	}
	return models.CrossFieldError{
		RuleID:  r.ID,
		Kind:    r.Kind,
		Fields:  r.Scope(),
		Message: msg,
	}
}

// Comparisons tolerate float noise relative to the bound, so 150000 × 0.8 compares
// equal to 120000 and a 95% total assembled from fractions is still 95%.
func greaterThan(v, bound float64) bool {
	return v > bound+tolerance(bound)
}

func lessThan(v, bound float64) bool {
	return v < bound-tolerance(bound)
}

func tolerance(bound float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(bound))
}
