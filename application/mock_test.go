package application

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockNotificationDispatcher struct {
	mock.Mock
}

func (m *MockNotificationDispatcher) NotifyAlert(deviceID, message string) {
	m.Called(deviceID, message)
}

func (m *MockNotificationDispatcher) NotifyVideo(filename, deviceID string) {
	m.Called(filename, deviceID)
}

var _ NotificationDispatcher = &MockNotificationDispatcher{}

type MockStatusNotifier struct {
	mock.Mock
}

func (m *MockStatusNotifier) NotifyConnectionStatus(connected bool) {
	m.Called(connected)
}

var _ ConnectionStatusNotifier = &MockStatusNotifier{}

type MockSubscriber struct {
	mock.Mock
}

func (m *MockSubscriber) Subscribe(topic string, qos byte) error {
	var err error
	if errInt := m.Called(topic, qos).Get(0); errInt != nil {
		err = errInt.(error)
	}
	return err
}

func (m *MockSubscriber) Unsubscribe(topics ...string) error {
	var err error
	if errInt := m.Called(topics).Get(0); errInt != nil {
		err = errInt.(error)
	}
	return err
}

var _ Subscriber = &MockSubscriber{}

type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) GetActiveUser() (ActiveUser, bool) {
	args := m.Called()
	return args.Get(0).(ActiveUser), args.Bool(1)
}

var _ CredentialStore = &MockCredentialStore{}

// fakeSession tracks the live subscription set the broker would hold.
type fakeSession struct {
	mu     sync.Mutex
	active map[string]byte
	log    []string
	closed bool

	subscribeErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{active: map[string]byte{}}
}

func (s *fakeSession) Subscribe(topic string, qos byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.active[topic] = qos
	s.log = append(s.log, "sub "+topic)
	return nil
}

func (s *fakeSession) Unsubscribe(topics ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, topic := range topics {
		delete(s.active, topic)
		s.log = append(s.log, "unsub "+topic)
	}
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) activeTopics() map[string]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]byte, len(s.active))
	for k, v := range s.active {
		out[k] = v
	}
	return out
}

type fakeDial struct {
	creds   Credentials
	emit    func(BrokerEvent)
	session *fakeSession
}

type fakeDialer struct {
	mu    sync.Mutex
	dials []*fakeDial
	err   error
}

func (d *fakeDialer) Dial(creds Credentials, emit func(BrokerEvent)) (BrokerSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		d.dials = append(d.dials, &fakeDial{creds: creds, emit: emit})
		return nil, d.err
	}

	dial := &fakeDial{creds: creds, emit: emit, session: newFakeSession()}
	d.dials = append(d.dials, dial)
	return dial.session, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) last() *fakeDial {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[len(d.dials)-1]
}

func (d *fakeDialer) openSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	open := 0
	for _, dial := range d.dials {
		if dial.session != nil && !dial.session.isClosed() {
			open++
		}
	}
	return open
}

var _ BrokerDialer = &fakeDialer{}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fire runs the callback even if the timer was stopped, like a timer that
// raced its Stop call.
func (t *fakeTimer) fire() {
	t.fired = true
	t.f()
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}
