package application

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	alertTopicSuffix = "/alert/notification"
	videoTopicSuffix = "/video/available"
)

// Classify decides what a raw broker message means. It is total: malformed or
// partial payloads produce defaulted fields instead of errors.
func Classify(raw RawMessage) ClassifiedEvent {
	switch {
	case strings.Contains(raw.Topic, alertTopicSuffix):
		return parseAlert(raw.Payload)
	case strings.Contains(raw.Topic, videoTopicSuffix):
		return parseVideo(raw.Payload)
	default:
		return UnrecognizedEvent{Raw: raw}
	}
}

func parseAlert(payload string) AlertEvent {
	obj, ok := parseObject(payload)
	if !ok {
		return AlertEvent{Severity: SeverityMedium, Malformed: true}
	}

	return AlertEvent{
		DeviceID:     stringField(obj, "deviceId"),
		Message:      stringField(obj, "message"),
		Severity:     ParseSeverity(stringField(obj, "severity")),
		RawTimestamp: stringField(obj, "timestamp"),
	}
}

func parseVideo(payload string) VideoEvent {
	obj, ok := parseObject(payload)
	if !ok {
		return VideoEvent{Malformed: true}
	}

	return VideoEvent{
		VideoID:  stringField(obj, "videoId"),
		Filename: stringField(obj, "filename"),
		DeviceID: stringField(obj, "deviceId"),
	}
}

func parseObject(payload string) (gjson.Result, bool) {
	if !gjson.Valid(payload) {
		return gjson.Result{}, false
	}
	obj := gjson.Parse(payload)
	if !obj.IsObject() {
		return gjson.Result{}, false
	}
	return obj, true
}

// stringField only accepts JSON strings; anything else reads as "".
func stringField(obj gjson.Result, key string) string {
	v := obj.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
