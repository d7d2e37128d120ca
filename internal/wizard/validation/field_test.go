package validation

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout/internal/wizard/models"
)

func ptr(f float64) *float64 { return &f }

func TestValidateField(t *testing.T) {
	required := models.FieldRule{Kind: models.RuleRequired, Message: "Email is required"}
	email := models.FieldRule{
		Kind:    models.RulePattern,
		Pattern: regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
		Message: "Please enter a valid email address",
	}
	short := models.FieldRule{Kind: models.RuleLength, Max: ptr(5), Message: "Too long"}

	t.Run("required but empty suppresses further checks", func(t *testing.T) {
		errs := ValidateField("email", "   ", []models.FieldRule{required, email, short})
		require.Len(t, errs, 1)
		assert.Equal(t, models.RuleRequired, errs[0].Rule)
		assert.Equal(t, "Email is required", errs[0].Message)
	})

	t.Run("independent failures accumulate in declaration order", func(t *testing.T) {
		errs := ValidateField("email", "not-an-email", []models.FieldRule{required, email, short})
		require.Len(t, errs, 2)
		assert.Equal(t, "Please enter a valid email address", errs[0].Message)
		assert.Equal(t, "Too long", errs[1].Message)
	})

	t.Run("empty optional field skips its rules", func(t *testing.T) {
		assert.Empty(t, ValidateField("website", "", []models.FieldRule{email, short}))
		assert.Empty(t, ValidateField("website", nil, []models.FieldRule{email}))
	})

	t.Run("length counts runes of the trimmed text", func(t *testing.T) {
		r := models.FieldRule{Kind: models.RuleLength, Min: ptr(2), Max: ptr(3)}
		assert.Empty(t, ValidateField("name", "  Ñoé ", []models.FieldRule{r}))
		errs := ValidateField("name", "Ñ", []models.FieldRule{r})
		require.Len(t, errs, 1)
		assert.Equal(t, "name must be between 2 and 3 characters", errs[0].Message)
	})

	t.Run("numeric range accepts numbers and numeric strings", func(t *testing.T) {
		r := models.FieldRule{Kind: models.RuleNumericRange, Min: ptr(1000), Max: ptr(10000000)}
		assert.Empty(t, ValidateField("fundingGoal", 150000, []models.FieldRule{r}))
		assert.Empty(t, ValidateField("fundingGoal", "150000", []models.FieldRule{r}))
		assert.Empty(t, ValidateField("fundingGoal", 1000.0, []models.FieldRule{r}))

		errs := ValidateField("fundingGoal", 999, []models.FieldRule{r})
		require.Len(t, errs, 1)
		assert.Equal(t, "fundingGoal must be between 1000 and 10000000", errs[0].Message)
	})

	t.Run("non-numeric value under a numeric rule is structural", func(t *testing.T) {
		r := models.FieldRule{Kind: models.RuleNumericRange, Min: ptr(0)}
		after := models.FieldRule{Kind: models.RuleLength, Max: ptr(1), Message: "never reached"}
		errs := ValidateField("amount", "abc", []models.FieldRule{r, after})
		require.Len(t, errs, 1)
		assert.Equal(t, "amount must be a number", errs[0].Message)
	})

	t.Run("one_of compares rendered text", func(t *testing.T) {
		r := models.FieldRule{Kind: models.RuleOneOf, Options: []string{"true"}, Message: "You must accept the terms"}
		assert.Empty(t, ValidateField("acceptTerms", true, []models.FieldRule{r}))
		errs := ValidateField("acceptTerms", false, []models.FieldRule{r})
		require.Len(t, errs, 1)
		assert.Equal(t, "You must accept the terms", errs[0].Message)
	})

	t.Run("default messages name the field", func(t *testing.T) {
		errs := ValidateField("crop", "wheat", []models.FieldRule{{Kind: models.RuleOneOf, Options: []string{"rice", "corn"}}})
		require.Len(t, errs, 1)
		assert.Equal(t, "crop must be one of: rice, corn", errs[0].Message)

		errs = ValidateField("crop", nil, []models.FieldRule{{Kind: models.RuleRequired}})
		require.Len(t, errs, 1)
		assert.Equal(t, "crop is required", errs[0].Message)
	})
}

func TestApplicableRules(t *testing.T) {
	conditional := models.FieldRule{
		Kind:    models.RuleRequired,
		Message: "Completion date is required for completed projects",
		When:    &models.Condition{Field: "completed", Equals: true},
	}
	always := models.FieldRule{Kind: models.RuleLength, Max: ptr(10)}

	t.Run("condition holds", func(t *testing.T) {
		rules := ApplicableRules([]models.FieldRule{conditional, always}, map[string]any{"completed": true})
		assert.Len(t, rules, 2)
	})

	t.Run("condition holds for the string form of the flag", func(t *testing.T) {
		rules := ApplicableRules([]models.FieldRule{conditional}, map[string]any{"completed": "true"})
		assert.Len(t, rules, 1)
	})

	t.Run("condition fails", func(t *testing.T) {
		rules := ApplicableRules([]models.FieldRule{conditional, always}, map[string]any{"completed": false})
		require.Len(t, rules, 1)
		assert.Equal(t, models.RuleLength, rules[0].Kind)
	})

	t.Run("missing sibling drops the rule", func(t *testing.T) {
		assert.Empty(t, ApplicableRules([]models.FieldRule{conditional}, map[string]any{}))
	})
}
