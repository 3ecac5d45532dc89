package application

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type Subscriber interface {
	Subscribe(topic string, qos byte) error
	Unsubscribe(topics ...string) error
}

type SubscriptionControllerParams struct {
	Subscriber Subscriber
	QoS        byte

	Log zerolog.Logger
}

// SubscriptionController keeps the broker subscribed to exactly one user's
// topics at a time.
type SubscriptionController struct {
	params SubscriptionControllerParams

	topics Topics

	mu         sync.Mutex
	subscribed string

	log zerolog.Logger
}

func NewSubscriptionController(params SubscriptionControllerParams) (*SubscriptionController, error) {
	if params.Subscriber == nil {
		return nil, fmt.Errorf("Subscriber is nil")
	}
	return &SubscriptionController{params: params, log: params.Log}, nil
}

// SubscribedUser is the user whose topics are currently subscribed, or "".
func (s *SubscriptionController) SubscribedUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// OnConnected subscribes both topics for userID. If another user's topics are
// still recorded as subscribed they are removed first.
func (s *SubscriptionController) OnConnected(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == "" {
		return fmt.Errorf("user id is empty")
	}

	if s.subscribed != "" && s.subscribed != userID {
		s.unsubscribeLocked(s.subscribed)
	}
	return s.subscribeLocked(userID)
}

// Unsubscribe removes exactly the two topics of userID. Failures are logged only.
func (s *SubscriptionController) Unsubscribe(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubscribeLocked(userID)
}

// SwitchUser unsubscribes the previous user before subscribing next.
func (s *SubscriptionController) SwitchUser(next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next == "" {
		return fmt.Errorf("user id is empty")
	}
	if s.subscribed == next {
		return nil
	}
	if s.subscribed != "" {
		s.unsubscribeLocked(s.subscribed)
	}
	return s.subscribeLocked(next)
}

// Reset forgets the current subscription without talking to the broker; used
// when the session is gone and the broker dropped the subscriptions itself.
func (s *SubscriptionController) Reset() {
	s.mu.Lock()
	s.subscribed = ""
	s.mu.Unlock()
}

func (s *SubscriptionController) subscribeLocked(userID string) error {
	// recorded up front so a half-finished subscribe is still cleaned up later
	s.subscribed = userID

	for _, topic := range s.topics.ForUser(userID) {
		if err := s.params.Subscriber.Subscribe(topic, s.params.QoS); err != nil {
			s.log.Error().Err(err).Str("topic", topic).Msg("subscribe failed")
			return err
		}
		s.log.Info().Str("topic", topic).Msg("subscribed")
	}
	return nil
}

func (s *SubscriptionController) unsubscribeLocked(userID string) {
	if userID == "" {
		return
	}

	topics := s.topics.ForUser(userID)
	if err := s.params.Subscriber.Unsubscribe(topics...); err != nil {
		s.log.Warn().Err(err).Strs("topics", topics).Msg("unsubscribe failed")
	} else {
		s.log.Info().Strs("topics", topics).Msg("unsubscribed")
	}

	if s.subscribed == userID {
		s.subscribed = ""
	}
}
