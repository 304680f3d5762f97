package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/database/testutil"
	"github.com/oitdesk/oitdesk/internal/models"
)

func newChangeService(t *testing.T) (*ChangeService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	changes, err := NewChangeService(db, notifications)
	require.NoError(t, err)
	return changes, db
}

func TestChangeWorkflowApproval(t *testing.T) {
	changes, db := newChangeService(t)
	requester := seedUser(t, db, "proposer")
	approver := seedUser(t, db, "approver")

	ctx := context.Background()
	change, err := changes.Create(ctx, CreateChangeInput{
		Title:       "Upgrade mail server",
		Risk:        models.ChangeRiskHigh,
		RequesterID: requester.ID,
	})
	require.NoError(t, err)
	require.Equal(t, models.ChangeStatusDraft, change.Status)

	change, err = changes.Submit(ctx, change.ID, requester.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChangeStatusSubmitted, change.Status)
	require.NotNil(t, change.SubmittedAt)

	change, err = changes.Decide(ctx, change.ID, approver.ID, true, "Window on Saturday")
	require.NoError(t, err)
	require.Equal(t, models.ChangeStatusApproved, change.Status)
	require.NotNil(t, change.ApproverID)
	require.Equal(t, approver.ID, *change.ApproverID)
	require.NotNil(t, change.DecidedAt)

	change, err = changes.MarkImplemented(ctx, change.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChangeStatusImplemented, change.Status)
	require.NotNil(t, change.ImplementedAt)
}

func TestChangeRejectionStopsWorkflow(t *testing.T) {
	changes, db := newChangeService(t)
	requester := seedUser(t, db, "hopeful")
	approver := seedUser(t, db, "gatekeeper")

	ctx := context.Background()
	change, err := changes.Create(ctx, CreateChangeInput{
		Title:       "Disable the firewall",
		RequesterID: requester.ID,
	})
	require.NoError(t, err)

	change, err = changes.Submit(ctx, change.ID, requester.ID)
	require.NoError(t, err)

	change, err = changes.Decide(ctx, change.ID, approver.ID, false, "No")
	require.NoError(t, err)
	require.Equal(t, models.ChangeStatusRejected, change.Status)

	_, err = changes.MarkImplemented(ctx, change.ID)
	require.ErrorIs(t, err, ErrChangeWorkflow)
}

func TestChangeSelfApprovalForbidden(t *testing.T) {
	changes, db := newChangeService(t)
	requester := seedUser(t, db, "sneaky")

	ctx := context.Background()
	change, err := changes.Create(ctx, CreateChangeInput{
		Title:       "Grant myself admin",
		RequesterID: requester.ID,
	})
	require.NoError(t, err)

	change, err = changes.Submit(ctx, change.ID, requester.ID)
	require.NoError(t, err)

	_, err = changes.Decide(ctx, change.ID, requester.ID, true, "looks good")
	require.ErrorIs(t, err, ErrChangeWorkflow)
}

func TestChangeSubmitGuards(t *testing.T) {
	changes, db := newChangeService(t)
	requester := seedUser(t, db, "owner")
	other := seedUser(t, db, "bystander")

	ctx := context.Background()
	change, err := changes.Create(ctx, CreateChangeInput{
		Title:       "Rotate certificates",
		RequesterID: requester.ID,
	})
	require.NoError(t, err)

	_, err = changes.Submit(ctx, change.ID, other.ID)
	require.ErrorIs(t, err, ErrChangeWorkflow)

	change, err = changes.Submit(ctx, change.ID, requester.ID)
	require.NoError(t, err)

	_, err = changes.Submit(ctx, change.ID, requester.ID)
	require.ErrorIs(t, err, ErrChangeWorkflow)
}
