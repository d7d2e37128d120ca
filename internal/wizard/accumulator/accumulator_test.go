package accumulator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sprout/internal/flows"
	"sprout/internal/wizard/models"
	"sprout/internal/wizard/validation"
	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
)

type AccumulatorSuite struct {
	suite.Suite
	acc     *Accumulator
	project *models.Flow
	farmer  *models.Flow
}

func TestAccumulatorSuite(t *testing.T) {
	suite.Run(t, new(AccumulatorSuite))
}

func (s *AccumulatorSuite) SetupSuite() {
	acc, err := New(validation.NewEngine())
	s.Require().NoError(err)
	s.acc = acc

	catalog := flows.MustLoad()
	s.project, err = catalog.Get(flows.InvestmentProject)
	s.Require().NoError(err)
	s.farmer, err = catalog.Get(flows.FarmerRegistration)
	s.Require().NoError(err)
}

func (s *AccumulatorSuite) newSession(f *models.Flow) *models.Session {
	return models.NewSession(f, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func (s *AccumulatorSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
}

// =============================================================================
// CommitStep
// =============================================================================

func (s *AccumulatorSuite) TestCommitStep() {
	s.Run("valid data is merged and the step marked touched", func() {
		sess := s.newSession(s.farmer)
		next, res, err := s.acc.CommitStep(s.farmer, sess, "personal_info", Partial{
			"fullName": "Jane Doe",
			"email":    "jane@x.com",
		})
		s.Require().NoError(err)
		s.True(res.OK())
		s.Equal("Jane Doe", next.Data.Fields["fullName"])
		s.True(next.Steps["personal_info"].Touched)

		s.Empty(sess.Data.Fields, "input session must not change")
		s.False(sess.Steps["personal_info"].Touched)
	})

	s.Run("invalid data leaves the aggregate untouched", func() {
		sess := s.newSession(s.farmer)
		next, res, err := s.acc.CommitStep(s.farmer, sess, "personal_info", Partial{
			"fullName": "Jane Doe",
			"email":    "not-an-email",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Same(sess, next)
		s.Equal([]string{"Please enter a valid email address"}, res.Messages())
		s.Empty(next.Data.Fields)
	})

	s.Run("scalars overwrite", func() {
		sess := s.newSession(s.farmer)
		sess, _, err := s.acc.CommitStep(s.farmer, sess, "personal_info", Partial{"fullName": "Jane Doe"})
		s.Require().NoError(err)
		sess, _, err = s.acc.CommitStep(s.farmer, sess, "personal_info", Partial{"fullName": "Jane Roe"})
		s.Require().NoError(err)
		s.Equal("Jane Roe", sess.Data.Fields["fullName"])
	})

	s.Run("key from another step is rejected", func() {
		_, _, err := s.acc.CommitStep(s.farmer, s.newSession(s.farmer), "selfie", Partial{"fullName": "Jane"})
		s.ErrorIs(err, models.ErrUnknownField)
	})

	s.Run("unknown step", func() {
		_, _, err := s.acc.CommitStep(s.farmer, s.newSession(s.farmer), "nope", Partial{})
		s.ErrorIs(err, models.ErrUnknownStep)
	})

	s.Run("locked session", func() {
		sess := s.newSession(s.farmer)
		sess.Submission = models.SubmissionSubmitting
		_, _, err := s.acc.CommitStep(s.farmer, sess, "personal_info", Partial{"fullName": "Jane Doe"})
		s.ErrorIs(err, models.ErrSessionLocked)
	})

	s.Run("groups are replaced wholesale", func() {
		sess := s.newSession(s.project)
		sess, _, err := s.acc.CommitStep(s.project, sess, "milestones", Partial{
			"milestones": []map[string]any{
				{"title": "Land prep", "targetDate": "2026-03-01"},
				{"title": "Planting", "targetDate": "2026-04-01"},
			},
		})
		s.Require().NoError(err)
		s.Equal(2, sess.Data.Group("milestones").Len())
		s.Equal(0, sess.Data.Group("milestones").Items[0].Values["fundsReleasePercent"], "template default")

		sess, _, err = s.acc.CommitStep(s.project, sess, "milestones", Partial{
			"milestones": []map[string]any{{"title": "Harvest", "targetDate": "2026-09-01"}},
		})
		s.Require().NoError(err)
		s.Require().Equal(1, sess.Data.Group("milestones").Len())
		s.Equal("Harvest", sess.Data.Group("milestones").Items[0].Values["title"])
	})
}

// =============================================================================
// Group Items
// =============================================================================

func (s *AccumulatorSuite) TestGroupItems() {
	s.Run("add appends a template item without validating it", func() {
		sess := s.newSession(s.project)
		next, itemID, err := s.acc.AddGroupItem(s.project, sess, "budgetCategories")
		s.Require().NoError(err)
		item, ok := next.Data.Group("budgetCategories").Item(itemID)
		s.Require().True(ok)
		s.Equal("", item.Values["name"])
		s.Nil(sess.Data.Group("budgetCategories"))
		s.True(next.Steps["budget"].Touched)
	})

	s.Run("item ids survive removal of earlier items", func() {
		sess := s.newSession(s.project)
		sess, first, err := s.acc.AddGroupItem(s.project, sess, "milestones")
		s.Require().NoError(err)
		sess, second, err := s.acc.AddGroupItem(s.project, sess, "milestones")
		s.Require().NoError(err)

		sess, err = s.acc.RemoveGroupItem(s.project, sess, "milestones", first)
		s.Require().NoError(err)

		sess, _, err = s.acc.UpdateGroupItem(s.project, sess, "milestones", second, map[string]any{"title": "Harvest"})
		s.Require().NoError(err)
		item, ok := sess.Data.Group("milestones").Item(second)
		s.Require().True(ok)
		s.Equal("Harvest", item.Values["title"])
	})

	s.Run("removing the last required item fails", func() {
		sess := s.newSession(s.project)
		sess, only, err := s.acc.AddGroupItem(s.project, sess, "budgetCategories")
		s.Require().NoError(err)

		_, err = s.acc.RemoveGroupItem(s.project, sess, "budgetCategories", only)
		s.ErrorIs(err, models.ErrCannotRemoveLast)
		var re *models.RemovalError
		s.Require().True(errors.As(err, &re))
		s.Equal(only, re.ItemID)
	})

	s.Run("optional group may become empty", func() {
		sess := s.newSession(s.project)
		sess, only, err := s.acc.AddGroupItem(s.project, sess, "previousProjects")
		s.Require().NoError(err)
		sess, err = s.acc.RemoveGroupItem(s.project, sess, "previousProjects", only)
		s.Require().NoError(err)
		s.Equal(0, sess.Data.Group("previousProjects").Len())
	})

	s.Run("unknown item", func() {
		_, err := s.acc.RemoveGroupItem(s.project, s.newSession(s.project), "milestones", id.NewItemID())
		s.ErrorIs(err, models.ErrUnknownItem)
	})

	s.Run("update validates only edited fields", func() {
		sess := s.newSession(s.project)
		sess, itemID, err := s.acc.AddGroupItem(s.project, sess, "milestones")
		s.Require().NoError(err)

		next, res, err := s.acc.UpdateGroupItem(s.project, sess, "milestones", itemID, map[string]any{"targetDate": "March"})
		s.Require().Error(err)
		s.Same(sess, next)
		s.Require().Len(res.FieldErrors, 1)
		s.Equal("targetDate", res.FieldErrors[0].Field)
		s.Equal(itemID, res.FieldErrors[0].ItemID)
	})

	s.Run("update rejects unknown item fields", func() {
		sess := s.newSession(s.project)
		sess, itemID, err := s.acc.AddGroupItem(s.project, sess, "milestones")
		s.Require().NoError(err)
		_, _, err = s.acc.UpdateGroupItem(s.project, sess, "milestones", itemID, map[string]any{"colour": "red"})
		s.ErrorIs(err, models.ErrUnknownField)
	})
}

// =============================================================================
// Derived Fields
// =============================================================================

func (s *AccumulatorSuite) withGoal(goal float64) *models.Session {
	sess := s.newSession(s.project)
	sess, _, err := s.acc.CommitStep(s.project, sess, "funding", Partial{
		"fundingGoal":          goal,
		"minimumFunding":       goal / 2,
		"minInvestment":        10,
		"campaignDurationDays": 30,
	})
	s.Require().NoError(err)
	return sess
}

func (s *AccumulatorSuite) TestDerived() {
	s.Run("editing an amount recomputes its percentage", func() {
		sess := s.withGoal(150000)
		sess, itemID, err := s.acc.AddGroupItem(s.project, sess, "budgetCategories")
		s.Require().NoError(err)
		sess, _, err = s.acc.UpdateGroupItem(s.project, sess, "budgetCategories", itemID, map[string]any{"amount": 50000})
		s.Require().NoError(err)

		item, _ := sess.Data.Group("budgetCategories").Item(itemID)
		s.Equal(33.33, item.Values["percentage"])
	})

	s.Run("derived value stays editable", func() {
		sess := s.withGoal(150000)
		sess, itemID, err := s.acc.AddGroupItem(s.project, sess, "budgetCategories")
		s.Require().NoError(err)
		sess, _, err = s.acc.UpdateGroupItem(s.project, sess, "budgetCategories", itemID, map[string]any{"amount": 50000})
		s.Require().NoError(err)
		sess, _, err = s.acc.UpdateGroupItem(s.project, sess, "budgetCategories", itemID, map[string]any{"percentage": 34})
		s.Require().NoError(err)

		item, _ := sess.Data.Group("budgetCategories").Item(itemID)
		s.Equal(34, item.Values["percentage"])
	})

	s.Run("changing the funding goal recomputes every category", func() {
		sess := s.withGoal(100000)
		sess, _, err := s.acc.CommitStep(s.project, sess, "budget", Partial{
			"budgetCategories": []map[string]any{
				{"name": "Seeds", "amount": 60000},
				{"name": "Tools", "amount": 40000},
			},
		})
		s.Require().NoError(err)
		g := sess.Data.Group("budgetCategories")
		s.Equal(60.0, g.Items[0].Values["percentage"])
		s.Equal(40.0, g.Items[1].Values["percentage"])

		sess, _, err = s.acc.CommitStep(s.project, sess, "funding", Partial{"fundingGoal": 200000})
		s.Require().NoError(err)
		g = sess.Data.Group("budgetCategories")
		s.Equal(30.0, g.Items[0].Values["percentage"])
		s.Equal(20.0, g.Items[1].Values["percentage"])
	})

	s.Run("recalculate overwrites manual edits", func() {
		sess := s.withGoal(100000)
		sess, itemID, err := s.acc.AddGroupItem(s.project, sess, "budgetCategories")
		s.Require().NoError(err)
		sess, _, err = s.acc.UpdateGroupItem(s.project, sess, "budgetCategories", itemID, map[string]any{"amount": 25000, "percentage": 30})
		s.Require().NoError(err)

		item, _ := sess.Data.Group("budgetCategories").Item(itemID)
		s.Equal(30, item.Values["percentage"])

		sess, err = s.acc.RecalculateDerived(s.project, sess, "budgetCategories")
		s.Require().NoError(err)
		item, _ = sess.Data.Group("budgetCategories").Item(itemID)
		s.Equal(25.0, item.Values["percentage"])
	})

	s.Run("missing goal leaves percentages alone", func() {
		sess := s.newSession(s.project)
		sess, itemID, err := s.acc.AddGroupItem(s.project, sess, "budgetCategories")
		s.Require().NoError(err)
		sess, _, err = s.acc.UpdateGroupItem(s.project, sess, "budgetCategories", itemID, map[string]any{"amount": 500})
		s.Require().NoError(err)
		item, _ := sess.Data.Group("budgetCategories").Item(itemID)
		s.Equal(0, item.Values["percentage"])
	})

	s.Run("group without derived field", func() {
		_, err := s.acc.RecalculateDerived(s.project, s.newSession(s.project), "milestones")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
