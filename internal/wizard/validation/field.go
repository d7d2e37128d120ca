package validation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"sprout/internal/wizard/models"
)

// ValidateField evaluates rules against value in declaration order. It is pure.
//
// A failed required rule is structural: it ends evaluation. A non-numeric value
// under a numeric_range rule is structural too. An empty optional value skips
// every non-required rule. Otherwise independent failures accumulate.
func ValidateField(key string, value any, rules []models.FieldRule) []models.FieldError {
	var errs []models.FieldError
	empty := models.IsEmpty(value)

	for _, r := range rules {
		if r.Kind == models.RuleRequired {
			if empty {
				return append(errs, fieldError(key, r, requiredMessage(key, r)))
			}
			continue
		}
		if empty {
			continue
		}

		switch r.Kind {
		case models.RuleLength:
			n := float64(utf8.RuneCountInString(strings.TrimSpace(models.Text(value))))
			if outside(n, r.Min, r.Max) {
				errs = append(errs, fieldError(key, r, lengthMessage(key, r)))
			}
		case models.RulePattern:
			if r.Pattern != nil && !r.Pattern.MatchString(strings.TrimSpace(models.Text(value))) {
				errs = append(errs, fieldError(key, r, patternMessage(key, r)))
			}
		case models.RuleNumericRange:
			n, ok := models.Number(value)
			if !ok {
				notNumber := r
				notNumber.Message = key + " must be a number"
				return append(errs, fieldError(key, notNumber, notNumber.Message))
			}
			if outside(n, r.Min, r.Max) {
				errs = append(errs, fieldError(key, r, rangeMessage(key, r)))
			}
		case models.RuleOneOf:
			if !slices.Contains(r.Options, models.Text(value)) {
				errs = append(errs, fieldError(key, r, oneOfMessage(key, r)))
			}
		}
	}
	return errs
}

// ApplicableRules drops conditional rules whose condition does not hold for values.
func ApplicableRules(rules []models.FieldRule, values map[string]any) []models.FieldRule {
	out := make([]models.FieldRule, 0, len(rules))
	for _, r := range rules {
		if r.When.Holds(values) {
			out = append(out, r)
		}
	}
	return out
}

func fieldError(key string, r models.FieldRule, msg string) models.FieldError {
	return models.FieldError{Field: key, Rule: r.Kind, Message: msg}
}

func outside(n float64, lo, hi *float64) bool {
	return (lo != nil && n < *lo) || (hi != nil && n > *hi)
}

func requiredMessage(key string, r models.FieldRule) string {
	if r.Message != "" {
		return r.Message
	}
	return key + " is required"
}

func lengthMessage(key string, r models.FieldRule) string {
	if r.Message != "" {
		return r.Message
	}
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("%s must be between %s and %s characters", key, num(*r.Min), num(*r.Max))
	case r.Min != nil:
		return fmt.Sprintf("%s must be at least %s characters", key, num(*r.Min))
	default:
		return fmt.Sprintf("%s must be at most %s characters", key, num(*r.Max))
	}
}

func patternMessage(key string, r models.FieldRule) string {
	if r.Message != "" {
		return r.Message
	}
	return key + " has an invalid format"
}

func rangeMessage(key string, r models.FieldRule) string {
	if r.Message != "" {
		return r.Message
	}
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("%s must be between %s and %s", key, num(*r.Min), num(*r.Max))
	case r.Min != nil:
		return fmt.Sprintf("%s must be at least %s", key, num(*r.Min))
	default:
		return fmt.Sprintf("%s must be at most %s", key, num(*r.Max))
	}
}

func oneOfMessage(key string, r models.FieldRule) string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("%s must be one of: %s", key, strings.Join(r.Options, ", "))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
