package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"sprout/internal/flows"
	"sprout/internal/wizard/accumulator"
	"sprout/internal/wizard/attachment"
	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
	"sprout/pkg/testutil"
)

func TestFarmerRegistrationEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Context()

	var sessionID id.SessionID
	var govPhoto, selfie models.Attachment

	testutil.Given(t, "a new farmer registration", func(t *testing.T) {
		sess, err := h.svc.Start(ctx, flows.FarmerRegistration, StartOptions{})
		require.NoError(t, err)
		sessionID = sess.ID
		assert.Equal(t, 0, sess.CurrentStep)
		assert.Equal(t, models.SubmissionIdle, sess.Submission)
	})

	testutil.When(t, "personal information is committed", func(t *testing.T) {
		_, res, err := h.svc.CommitStep(ctx, sessionID, "personal_info", accumulator.Partial{
			"fullName":     "Jane Doe",
			"email":        "jane@x.com",
			"phoneNumber":  "+628123",
			"governmentId": "ID-99",
		})
		require.NoError(t, err)
		assert.True(t, res.OK())

		sess, err := h.svc.Advance(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 1, sess.CurrentStep)
	})

	testutil.When(t, "a 2 MB JPEG is attached as the government ID photo", func(t *testing.T) {
		_, att, err := h.svc.Attach(ctx, sessionID, "governmentIdPhoto", attachment.File{
			Name: "id.jpg", MimeType: "image/jpeg", Data: testutil.File(2 * testutil.MB),
		})
		require.NoError(t, err)
		govPhoto = att

		sess, err := h.svc.Advance(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 2, sess.CurrentStep)
	})

	testutil.When(t, "a 15 MB PNG is attached as the selfie", func(t *testing.T) {
		_, _, err := h.svc.Attach(ctx, sessionID, "selfiePhoto", attachment.File{
			Name: "selfie.png", MimeType: "image/png", Data: testutil.File(15 * testutil.MB),
		})
		require.ErrorIs(t, err, models.ErrTooLarge)
		var ae *models.AttachmentError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "selfiePhoto", ae.Field)
		assert.Equal(t, "Selfie must be at most 10 MB", ae.Message)

		sess, err := h.svc.Advance(ctx, sessionID)
		assert.ErrorIs(t, err, models.ErrStepInvalid)
		assert.Equal(t, 2, sess.CurrentStep)
		assert.Equal(t, 1.0, counter(t, h.metrics.AttachmentRejections.WithLabelValues("farmer_registration", "too_large")))
	})

	testutil.When(t, "a 1 MB JPEG is attached instead", func(t *testing.T) {
		_, att, err := h.svc.Attach(ctx, sessionID, "selfiePhoto", attachment.File{
			Name: "selfie.jpg", MimeType: "image/jpeg", Data: testutil.File(testutil.MB),
		})
		require.NoError(t, err)
		selfie = att

		sess, err := h.svc.Advance(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 3, sess.CurrentStep, "review step")

		ok, err := h.svc.CanSubmit(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	testutil.When(t, "the registration service answers Success(42)", func(t *testing.T) {
		h.registrar.EXPECT().
			Register(gomock.Any(), flows.FarmerRegistration, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.FlowID, p models.Payload) (models.Result, error) {
				assert.Equal(t, "Jane Doe", p["fullName"])
				assert.Equal(t, "blake2b:"+govPhoto.Digest, p["governmentIdPhoto"])
				assert.Equal(t, "blake2b:"+selfie.Digest, p["selfiePhoto"])
				return models.Success{EntityID: "42"}, nil
			}).
			Times(1)

		out, err := h.svc.Submit(ctx, sessionID)
		require.NoError(t, err)
		outcome, ok := <-out
		require.True(t, ok)
		assert.Equal(t, models.ClassSucceeded, outcome.Classification)
		assert.Equal(t, models.AffordanceDashboard, outcome.Affordance)
		assert.Equal(t, id.EntityID("42"), outcome.EntityID)
	})

	testutil.Then(t, "the session is succeeded on the terminal step", func(t *testing.T) {
		sess, err := h.svc.Get(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionSucceeded, sess.Submission)
		assert.Equal(t, 3, sess.CurrentStep)
		assert.True(t, sess.Completed)

		ok, err := h.svc.CanSubmit(ctx, sessionID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, err = h.svc.CommitStep(ctx, sessionID, "personal_info", accumulator.Partial{"fullName": "Other"})
		assert.ErrorIs(t, err, models.ErrSessionLocked)
	})

	testutil.Then(t, "completing the flow destroys the session and its files", func(t *testing.T) {
		h.attachments.Wait()
		require.NoError(t, h.svc.Complete(ctx, sessionID))

		_, err := h.svc.Get(ctx, sessionID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		_, held := h.attachments.Blob(selfie.ID)
		assert.False(t, held)

		assert.Equal(t, []string{
			"session_started",
			"step_committed",
			"step_advanced",
			"attachment_added",
			"step_advanced",
			"attachment_rejected",
			"attachment_added",
			"step_advanced",
			"submission_started",
			"submission_resolved",
			"session_completed",
		}, h.audit.Actions(sessionID))
	})
}

func TestFundingRatioEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Context()

	var sessionID id.SessionID

	testutil.Given(t, "an investment project past farm info and experience", func(t *testing.T) {
		sess, err := h.svc.Start(ctx, flows.InvestmentProject, StartOptions{})
		require.NoError(t, err)
		sessionID = sess.ID

		_, _, err = h.svc.CommitStep(ctx, sessionID, "farm_info", accumulator.Partial{
			"farmName":         "Green Acres",
			"farmLocation":     "Bali",
			"farmSizeHectares": 12,
			"cropType":         "coffee",
		})
		require.NoError(t, err)
		_, err = h.svc.Advance(ctx, sessionID)
		require.NoError(t, err)

		_, _, err = h.svc.CommitStep(ctx, sessionID, "experience", accumulator.Partial{"yearsFarming": 5})
		require.NoError(t, err)
		sess, err = h.svc.Advance(ctx, sessionID)
		require.NoError(t, err)
		require.Equal(t, 2, sess.CurrentStep)
	})

	testutil.When(t, "minimum funding exceeds 80% of the goal", func(t *testing.T) {
		_, _, err := h.svc.CommitStep(ctx, sessionID, "funding", accumulator.Partial{
			"fundingGoal":          150000,
			"minimumFunding":       130000,
			"minInvestment":        1000,
			"campaignDurationDays": 30,
		})
		require.NoError(t, err)

		res, err := h.svc.ValidateStep(ctx, sessionID, "funding")
		require.NoError(t, err)
		assert.True(t, res.HasCrossRule("minimum_funding_ceiling"))
		assert.Contains(t, res.Messages(), "Minimum funding cannot exceed 80% of the funding goal")

		sess, err := h.svc.Advance(ctx, sessionID)
		var nav *models.NavigationError
		require.True(t, errors.As(err, &nav))
		assert.Equal(t, models.NavStepInvalid, nav.Reason)
		assert.Equal(t, 2, sess.CurrentStep)
		assert.False(t, sess.Steps["funding"].Valid)
	})

	testutil.Then(t, "lowering it to 100000 lets the step pass", func(t *testing.T) {
		_, _, err := h.svc.CommitStep(ctx, sessionID, "funding", accumulator.Partial{"minimumFunding": 100000})
		require.NoError(t, err)

		sess, err := h.svc.Advance(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 3, sess.CurrentStep)
		assert.True(t, sess.Steps["funding"].Valid)
	})
}
