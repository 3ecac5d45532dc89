package application

import "fmt"

// Topics builds the per-user topic names the backend publishes on.
type Topics struct{}

// AlertTopic example: user/42/alert/notification
func (Topics) AlertTopic(userID string) string {
	return fmt.Sprintf("user/%s%s", userID, alertTopicSuffix)
}

// VideoTopic example: user/42/video/available
func (Topics) VideoTopic(userID string) string {
	return fmt.Sprintf("user/%s%s", userID, videoTopicSuffix)
}

func (t Topics) ForUser(userID string) []string {
	return []string{t.AlertTopic(userID), t.VideoTopic(userID)}
}
