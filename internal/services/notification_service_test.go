package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/database/testutil"
	"github.com/oitdesk/oitdesk/internal/models"
)

type recordingBroadcaster struct {
	delivered []string
}

func (r *recordingBroadcaster) Broadcast(userID string, _ *models.Notification) {
	r.delivered = append(r.delivered, userID)
}

func TestNotificationCreateBroadcasts(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	hub := &recordingBroadcaster{}
	notifications, err := NewNotificationService(db, hub)
	require.NoError(t, err)
	user := seedUser(t, db, "listener")

	_, err = notifications.Create(context.Background(), NotificationInput{
		UserID:  user.ID,
		Type:    "ticket.status",
		Title:   "Ticket #42 is now resolved",
		Message: "Printer fixed",
	})
	require.NoError(t, err)
	require.Equal(t, []string{user.ID}, hub.delivered)
}

func TestNotificationReadFlow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	user := seedUser(t, db, "reader")
	other := seedUser(t, db, "other")

	ctx := context.Background()
	created, err := notifications.Create(ctx, NotificationInput{
		UserID: user.ID,
		Title:  "Welcome",
	})
	require.NoError(t, err)

	unread, err := notifications.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)

	// Another user must not be able to read someone else's notification.
	require.ErrorIs(t, notifications.MarkRead(ctx, other.ID, created.ID), gorm.ErrRecordNotFound)

	require.NoError(t, notifications.MarkRead(ctx, user.ID, created.ID))
	unread, err = notifications.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, unread)

	require.NoError(t, notifications.MarkUnread(ctx, user.ID, created.ID))
	unread, err = notifications.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)
}

func TestNotificationMarkAllReadAndDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	user := seedUser(t, db, "bulk")

	ctx := context.Background()
	var last *models.Notification
	for i := 0; i < 3; i++ {
		last, err = notifications.Create(ctx, NotificationInput{
			UserID: user.ID,
			Title:  "Update",
		})
		require.NoError(t, err)
	}

	affected, err := notifications.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, affected)

	require.NoError(t, notifications.Delete(ctx, user.ID, last.ID))
	_, total, err := notifications.List(ctx, user.ID, NotificationListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
}

func TestNotificationUnreadOnlyList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	user := seedUser(t, db, "filterer")

	ctx := context.Background()
	first, err := notifications.Create(ctx, NotificationInput{UserID: user.ID, Title: "First"})
	require.NoError(t, err)
	_, err = notifications.Create(ctx, NotificationInput{UserID: user.ID, Title: "Second"})
	require.NoError(t, err)

	require.NoError(t, notifications.MarkRead(ctx, user.ID, first.ID))

	result, total, err := notifications.List(ctx, user.ID, NotificationListOptions{UnreadOnly: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, result, 1)
	require.Equal(t, "Second", result[0].Title)
}
