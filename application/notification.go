package application

// NotificationDispatcher turns classified events into user-visible
// notifications. Calls are fire-and-forget; implementations log their own errors.
type NotificationDispatcher interface {
	NotifyAlert(deviceID, message string)
	NotifyVideo(filename, deviceID string)
}

// ConnectionStatusNotifier is optionally implemented by a NotificationDispatcher
// that also wants to tell the user when the live feed goes up or down.
type ConnectionStatusNotifier interface {
	NotifyConnectionStatus(connected bool)
}
