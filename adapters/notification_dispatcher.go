package adapters

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"xgos-feed/application"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	NotificationChannelAlert  = "alert_channel"
	NotificationChannelVideo  = "video_channel"
	NotificationChannelStatus = "mqtt_service_channel"

	notificationThreadAlerts = "xgosapp_alerts"
	notificationThreadVideos = "xgosapp_videos"
)

type Notification struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Thread    string    `json:"thread,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationDispatcherParams struct {
	// Out receives one JSON line per notification. Defaults to stdout.
	Out io.Writer

	Now func() time.Time

	Log zerolog.Logger
}

func (p *NotificationDispatcherParams) EnsureDefaults() {
	if p.Out == nil {
		p.Out = os.Stdout
	}
	if p.Now == nil {
		p.Now = time.Now
	}
}

// NotificationDispatcher renders feed events as notification records on a writer.
type NotificationDispatcher struct {
	params NotificationDispatcherParams

	mu sync.Mutex

	log zerolog.Logger
}

func NewNotificationDispatcher(params NotificationDispatcherParams) *NotificationDispatcher {
	params.EnsureDefaults()
	return &NotificationDispatcher{params: params, log: params.Log}
}

func (n *NotificationDispatcher) NotifyAlert(deviceID, message string) {
	n.send(Notification{
		Channel: NotificationChannelAlert,
		Thread:  notificationThreadAlerts,
		Title:   "Vehicle alert",
		Body:    fmt.Sprintf("%s: %s", deviceID, message),
	})
}

func (n *NotificationDispatcher) NotifyVideo(filename, deviceID string) {
	n.send(Notification{
		Channel: NotificationChannelVideo,
		Thread:  notificationThreadVideos,
		Title:   "New video available",
		Body:    fmt.Sprintf("%s uploaded a new video: %s", deviceID, filename),
	})
}

func (n *NotificationDispatcher) NotifyConnectionStatus(connected bool) {
	notification := Notification{
		Channel: NotificationChannelStatus,
		Title:   "Live feed disconnected",
		Body:    "Real-time alerts are paused",
	}
	if connected {
		notification.Title = "Live feed connected"
		notification.Body = "Real-time alerts are enabled"
	}
	n.send(notification)
}

func (n *NotificationDispatcher) send(notification Notification) {
	notification.ID = uuid.NewString()
	notification.CreatedAt = n.params.Now()

	data, err := json.Marshal(notification)
	if err != nil {
		n.log.Error().Err(err).Str("channel", notification.Channel).Msg("failed to encode notification")
		return
	}
	data = append(data, '\n')

	n.mu.Lock()
	_, err = n.params.Out.Write(data)
	n.mu.Unlock()
	if err != nil {
		n.log.Error().Err(err).Str("channel", notification.Channel).Msg("failed to send notification")
		return
	}

	n.log.Info().Str("channel", notification.Channel).Str("id", notification.ID).Msg("notification sent")
}

var _ application.NotificationDispatcher = &NotificationDispatcher{}
var _ application.ConnectionStatusNotifier = &NotificationDispatcher{}
