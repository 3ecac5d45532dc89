package adapters

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("closed")
}

func decodeNotifications(t *testing.T, out *bytes.Buffer) []Notification {
	var notifications []Notification
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var n Notification
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &n))
		notifications = append(notifications, n)
	}
	return notifications
}

func TestNotificationDispatcher(t *testing.T) {
	out := &bytes.Buffer{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	dispatcher := NewNotificationDispatcher(NotificationDispatcherParams{
		Out: out,
		Now: func() time.Time { return now },
	})

	dispatcher.NotifyAlert("D1", "speeding")
	dispatcher.NotifyVideo("f.mp4", "D1")
	dispatcher.NotifyConnectionStatus(true)
	dispatcher.NotifyConnectionStatus(false)

	notifications := decodeNotifications(t, out)
	require.Len(t, notifications, 4)

	assert.Equal(t, NotificationChannelAlert, notifications[0].Channel)
	assert.Equal(t, "D1: speeding", notifications[0].Body)
	assert.Equal(t, now, notifications[0].CreatedAt)

	assert.Equal(t, NotificationChannelVideo, notifications[1].Channel)
	assert.Equal(t, "D1 uploaded a new video: f.mp4", notifications[1].Body)

	assert.Equal(t, NotificationChannelStatus, notifications[2].Channel)
	assert.Equal(t, "Live feed connected", notifications[2].Title)
	assert.Equal(t, "Live feed disconnected", notifications[3].Title)

	ids := map[string]bool{}
	for _, n := range notifications {
		assert.NotEmpty(t, n.ID)
		ids[n.ID] = true
	}
	assert.Len(t, ids, 4)
}

func TestNotificationDispatcher_WriteError(t *testing.T) {
	dispatcher := NewNotificationDispatcher(NotificationDispatcherParams{Out: failingWriter{}})

	assert.NotPanics(t, func() {
		dispatcher.NotifyAlert("D1", "speeding")
		dispatcher.NotifyVideo("f.mp4", "D1")
	})
}
