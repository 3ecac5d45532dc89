package application

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RawMessage struct {
	ID         string
	Topic      string
	Payload    string
	ReceivedAt time.Time
}

func NewRawMessage(topic, payload string, receivedAt time.Time) RawMessage {
	return RawMessage{
		ID:         uuid.NewString(),
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: receivedAt,
	}
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity is case-insensitive and falls back to SeverityMedium.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

type EventKind int

const (
	EventKindUnrecognized EventKind = iota
	EventKindAlert
	EventKindVideo
)

func (k EventKind) String() string {
	switch k {
	case EventKindAlert:
		return "alert"
	case EventKindVideo:
		return "video"
	default:
		return "unrecognized"
	}
}

// ClassifiedEvent is one of AlertEvent, VideoEvent or UnrecognizedEvent.
type ClassifiedEvent interface {
	Kind() EventKind
}

type AlertEvent struct {
	DeviceID     string
	Message      string
	Severity     Severity
	RawTimestamp string

	// Malformed is set when the payload was not a JSON object and every field is defaulted.
	Malformed bool
}

type VideoEvent struct {
	VideoID  string
	Filename string
	DeviceID string

	Malformed bool
}

type UnrecognizedEvent struct {
	Raw RawMessage
}

func (AlertEvent) Kind() EventKind        { return EventKindAlert }
func (VideoEvent) Kind() EventKind        { return EventKindVideo }
func (UnrecognizedEvent) Kind() EventKind { return EventKindUnrecognized }
