package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout/internal/flows"
	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
)

func TestBuildPayload(t *testing.T) {
	f, err := flows.MustLoad().Get(flows.InvestmentProject)
	require.NoError(t, err)

	agg := models.NewAggregate()
	agg.Fields["farmName"] = "Green Acres"
	agg.Fields["fundingGoal"] = 150000
	agg.Fields["cropType"] = "  "
	agg.Groups["budgetCategories"] = &models.Group{Items: []models.Item{
		{ID: id.NewItemID(), Values: map[string]any{"name": "Seeds", "amount": 75000, "percentage": 50.0}},
	}}

	p := BuildPayload(f, agg, map[string]models.Reference{"landCertificate": "ref-1"})

	t.Run("nested sections", func(t *testing.T) {
		assert.Equal(t, map[string]any{"farmName": "Green Acres"}, p["farmInfo"], "blank values are omitted")
		assert.Equal(t, map[string]any{"fundingGoal": 150000}, p["funding"])
		assert.Equal(t, map[string]any{"landCertificate": "ref-1"}, p["documents"])
	})

	t.Run("groups become lists of records without item ids", func(t *testing.T) {
		budget := p["budget"].(map[string]any)
		assert.Equal(t, []map[string]any{{"name": "Seeds", "amount": 75000, "percentage": 50.0}}, budget["budgetCategories"])

		milestones := p["milestones"].(map[string]any)
		assert.Equal(t, []map[string]any{}, milestones["milestones"])
	})

	t.Run("every section is present", func(t *testing.T) {
		for _, name := range []string{"farmInfo", "experience", "funding", "budget", "milestones", "documents", "agreements"} {
			assert.Contains(t, p, name)
		}
	})
}
