package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

const DefaultReconnectDelay = 5 * time.Second

// Timer is the handle of a scheduled callback; *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type ConnectionManagerParams struct {
	Dialer     BrokerDialer
	Dispatcher NotificationDispatcher

	// CredentialStore is optional. When set, a reconnect only happens while
	// the store still reports an active user.
	CredentialStore CredentialStore

	// Buffer is optional; a buffer of DefaultBufferCapacity is created otherwise.
	Buffer *MessageBuffer

	ReconnectDelay     time.Duration
	RetryOnAuthFailure bool

	// OnEvent receives every classified event after the dispatcher, in arrival order.
	// It runs inside delivery and must not call Connect, Disconnect or Logout.
	OnEvent func(ClassifiedEvent)

	AfterFunc AfterFunc
	Now       func() time.Time

	Log zerolog.Logger
}

func (p *ConnectionManagerParams) EnsureDefaults() {
	if p.Buffer == nil {
		p.Buffer = NewMessageBuffer(DefaultBufferCapacity)
	}
	if p.ReconnectDelay == 0 {
		p.ReconnectDelay = DefaultReconnectDelay
	}
	if p.AfterFunc == nil {
		p.AfterFunc = timeAfterFunc
	}
	if p.Now == nil {
		p.Now = time.Now
	}
}

type FeedStatus struct {
	State             ConnectionState
	MessageCount      uint64
	AlertCount        uint64
	VideoCount        uint64
	UnrecognizedCount uint64
	LastReceived      time.Time
	Buffered          int
}

// ConnectionManager owns the broker connection, its lifecycle state and the
// reconnect timer. Inbound broker events are queued by transport goroutines
// and handled in arrival order by Run.
//
// Every connect attempt gets a new generation number. Events and timers carry
// the generation they were created for and are dropped once it is stale, which
// is how callbacks from a torn down session are suppressed.
type ConnectionManager struct {
	params ConnectionManagerParams

	state  *StateObservable
	buffer *MessageBuffer
	subs   *SubscriptionController
	inbox  *inbox

	// userMu orders user switches against the subscribe that follows a connect ack.
	userMu sync.Mutex
	// deliveryMu spans one message from the generation check to the end of dispatch,
	// so teardown waits for a delivery in flight.
	deliveryMu sync.Mutex

	mu             sync.Mutex
	generation     uint64
	session        BrokerSession
	creds          Credentials
	userID         string
	reconnectTimer Timer

	msgCount          uint64
	alertCount        uint64
	videoCount        uint64
	unrecognizedCount uint64
	lastReceived      atomic.Pointer[time.Time]

	log zerolog.Logger
}

func NewConnectionManager(params ConnectionManagerParams) (*ConnectionManager, error) {
	if params.Dialer == nil {
		return nil, fmt.Errorf("Dialer is nil")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("Dispatcher is nil")
	}
	params.EnsureDefaults()

	m := &ConnectionManager{
		params: params,
		state:  NewStateObservable(),
		buffer: params.Buffer,
		inbox:  newInbox(),
		log:    params.Log,
	}

	subs, err := NewSubscriptionController(SubscriptionControllerParams{
		Subscriber: m,
		QoS:        QoSAtLeastOnce,
		Log:        params.Log,
	})
	if err != nil {
		return nil, err
	}
	m.subs = subs

	t := time.Unix(0, 0)
	m.lastReceived.Store(&t)

	return m, nil
}

func (m *ConnectionManager) State() *StateObservable {
	return m.state
}

func (m *ConnectionManager) Buffer() *MessageBuffer {
	return m.buffer
}

func (m *ConnectionManager) ActiveUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

func (m *ConnectionManager) Status() FeedStatus {
	return FeedStatus{
		State:             m.state.Current(),
		MessageCount:      atomic.LoadUint64(&m.msgCount),
		AlertCount:        atomic.LoadUint64(&m.alertCount),
		VideoCount:        atomic.LoadUint64(&m.videoCount),
		UnrecognizedCount: atomic.LoadUint64(&m.unrecognizedCount),
		LastReceived:      *m.lastReceived.Load(),
		Buffered:          m.buffer.Len(),
	}
}

// Connect tears down any previous session and starts a new connect attempt.
// It returns once the attempt is started; the outcome is published on State.
func (m *ConnectionManager) Connect(creds Credentials, userID string) error {
	creds.EnsureDefaults()
	if err := creds.Validate(); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is empty", ErrInvalidCredentials)
	}

	m.deliveryMu.Lock()
	defer m.deliveryMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
	m.creds = creds
	m.userID = userID

	m.log.Info().
		Str("broker", creds.BrokerURL()).
		Str("client_id", creds.ClientIdentity).
		Str("user_id", userID).
		Msg("connecting")
	m.dialLocked()
	return nil
}

// Disconnect cancels any pending reconnect, drops the session and discards the
// credentials. State is Disconnected when it returns.
func (m *ConnectionManager) Disconnect() {
	m.shutdown(false)
	m.log.Info().Msg("disconnected")
}

// Logout is Disconnect plus dropping the buffered messages of the session.
func (m *ConnectionManager) Logout() {
	m.shutdown(true)
	m.log.Info().Msg("logged out")
}

func (m *ConnectionManager) shutdown(clearBuffer bool) {
	m.deliveryMu.Lock()
	defer m.deliveryMu.Unlock()

	m.mu.Lock()
	m.teardownLocked()
	m.creds = Credentials{}
	m.userID = ""
	m.mu.Unlock()

	m.subs.Reset()
	if clearBuffer {
		m.buffer.Clear()
	}
}

func (m *ConnectionManager) Subscribe(topic string, qos byte) error {
	session, err := m.connectedSession()
	if err != nil {
		return err
	}
	return session.Subscribe(topic, qos)
}

func (m *ConnectionManager) Unsubscribe(topics ...string) error {
	session, err := m.connectedSession()
	if err != nil {
		return err
	}
	return session.Unsubscribe(topics...)
}

// SwitchUser moves the live subscriptions to userID. While not connected it
// only records the user; the next connect subscribes it.
func (m *ConnectionManager) SwitchUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is empty", ErrInvalidCredentials)
	}

	m.userMu.Lock()
	defer m.userMu.Unlock()

	m.mu.Lock()
	m.userID = userID
	connected := m.state.Current().IsConnected()
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.subs.SwitchUser(userID)
}

// Run consumes broker events until ctx is done.
func (m *ConnectionManager) Run(ctx context.Context) error {
	m.processPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.inbox.ready:
			m.processPending()
		}
	}
}

func (m *ConnectionManager) processPending() {
	for {
		items := m.inbox.drain()
		if len(items) == 0 {
			return
		}
		for _, item := range items {
			m.handle(item)
		}
	}
}

func (m *ConnectionManager) handle(item inboxItem) {
	switch ev := item.event.(type) {
	case BrokerConnected:
		m.handleConnected(item.generation)
	case BrokerDisconnected:
		m.handleDisconnected(item.generation, ev.Err)
	case BrokerMessage:
		m.handleMessage(item.generation, ev, item.receivedAt)
	}
}

func (m *ConnectionManager) handleConnected(gen uint64) {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.log.Debug().Uint64("generation", gen).Msg("stale connect ack ignored")
		return
	}
	if !m.transitionLocked(Connected()) {
		m.mu.Unlock()
		return
	}
	userID := m.userID
	m.mu.Unlock()

	if err := m.subs.OnConnected(userID); err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Msg("failed to subscribe user topics")
	}
}

func (m *ConnectionManager) handleDisconnected(gen uint64, reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		m.log.Debug().Uint64("generation", gen).Msg("stale disconnect ignored")
		return
	}

	if reason == nil {
		m.closeSessionLocked()
		m.transitionLocked(Disconnected())
		return
	}

	if !m.transitionLocked(Faulted(reason)) {
		return
	}
	m.closeSessionLocked()

	if errors.Is(reason, ErrAuthentication) && !m.params.RetryOnAuthFailure {
		m.log.Warn().Err(reason).Msg("credentials rejected, not reconnecting")
		return
	}
	m.scheduleReconnectLocked()
}

func (m *ConnectionManager) handleMessage(gen uint64, ev BrokerMessage, receivedAt time.Time) {
	m.deliveryMu.Lock()
	defer m.deliveryMu.Unlock()

	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()
	if stale {
		m.log.Debug().Str("topic", ev.Topic).Msg("message from stale session dropped")
		return
	}

	raw := NewRawMessage(ev.Topic, ev.Payload, receivedAt)
	m.log.Debug().Str("topic", raw.Topic).Str("id", raw.ID).Msg("message received")

	m.buffer.Append(raw)
	atomic.AddUint64(&m.msgCount, 1)
	m.lastReceived.Store(&receivedAt)

	m.route(Classify(raw))
}

func (m *ConnectionManager) route(event ClassifiedEvent) {
	switch e := event.(type) {
	case AlertEvent:
		atomic.AddUint64(&m.alertCount, 1)
		if e.Malformed {
			m.log.Warn().Msg("alert payload malformed, not dispatched")
			break
		}
		m.log.Info().Str("device_id", e.DeviceID).Str("severity", string(e.Severity)).Msg("alert received")
		m.guard("dispatcher", func() { m.params.Dispatcher.NotifyAlert(e.DeviceID, e.Message) })
	case VideoEvent:
		atomic.AddUint64(&m.videoCount, 1)
		if e.Malformed {
			m.log.Warn().Msg("video payload malformed, not dispatched")
			break
		}
		m.log.Info().Str("filename", e.Filename).Str("device_id", e.DeviceID).Msg("video available")
		m.guard("dispatcher", func() { m.params.Dispatcher.NotifyVideo(e.Filename, e.DeviceID) })
	case UnrecognizedEvent:
		atomic.AddUint64(&m.unrecognizedCount, 1)
		m.log.Debug().Str("topic", e.Raw.Topic).Msg("unrecognized topic, not dispatched")
	}

	if m.params.OnEvent != nil {
		m.guard("event consumer", func() { m.params.OnEvent(event) })
	}
}

// guard keeps a panicking consumer from taking down the dispatch loop.
func (m *ConnectionManager) guard(consumer string, f func()) {
	var pc panics.Catcher
	pc.Try(f)
	if r := pc.Recovered(); r != nil {
		m.log.Error().Str("consumer", consumer).Interface("panic", r.Value).Msg("consumer panic recovered")
	}
}

func (m *ConnectionManager) connectedSession() (BrokerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || !m.state.Current().IsConnected() {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

func (m *ConnectionManager) emitter(gen uint64) func(BrokerEvent) {
	return func(ev BrokerEvent) {
		m.inbox.push(inboxItem{generation: gen, event: ev, receivedAt: m.params.Now()})
	}
}

func (m *ConnectionManager) dialLocked() {
	m.generation++
	gen := m.generation

	if !m.transitionLocked(Connecting()) {
		return
	}

	session, err := m.params.Dialer.Dial(m.creds, m.emitter(gen))
	if err != nil {
		m.log.Error().Err(err).Msg("dial failed")
		if !errors.Is(err, ErrTransport) && !errors.Is(err, ErrAuthentication) {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		// queued rather than handled inline so the fault goes through the same path
		m.emitter(gen)(BrokerDisconnected{Err: err})
		return
	}
	m.session = session
}

func (m *ConnectionManager) teardownLocked() {
	m.stopReconnectLocked()
	m.generation++
	m.closeSessionLocked()
	m.transitionLocked(Disconnected())
}

func (m *ConnectionManager) closeSessionLocked() {
	if m.session == nil {
		return
	}
	m.session.Close()
	m.session = nil
}

func (m *ConnectionManager) scheduleReconnectLocked() {
	m.stopReconnectLocked()

	gen := m.generation
	m.reconnectTimer = m.params.AfterFunc(m.params.ReconnectDelay, func() {
		m.reconnect(gen)
	})
	m.log.Info().Dur("delay", m.params.ReconnectDelay).Msg("reconnect scheduled")
}

func (m *ConnectionManager) stopReconnectLocked() {
	if m.reconnectTimer == nil {
		return
	}
	m.reconnectTimer.Stop()
	m.reconnectTimer = nil
}

func (m *ConnectionManager) hasPendingReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectTimer != nil
}

func (m *ConnectionManager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.reconnectTimer == nil {
		return
	}
	m.reconnectTimer = nil

	if m.state.Current().Status != StatusFaulted {
		return
	}
	if m.userID == "" {
		m.log.Info().Msg("no active user, skipping reconnect")
		return
	}
	if m.params.CredentialStore != nil {
		if _, ok := m.params.CredentialStore.GetActiveUser(); !ok {
			m.log.Info().Msg("credential store has no active user, skipping reconnect")
			return
		}
	}

	m.log.Info().Str("user_id", m.userID).Msg("attempting to reconnect")
	m.dialLocked()
}

func (m *ConnectionManager) transitionLocked(next ConnectionState) bool {
	cur := m.state.Current()
	if cur.Status == StatusDisconnected && next.Status == StatusDisconnected {
		return true
	}
	if !cur.CanTransitionTo(next) {
		m.log.Warn().Str("from", cur.String()).Str("to", next.String()).Msg("illegal state transition ignored")
		return false
	}

	m.state.publish(next)
	var ev *zerolog.Event
	if next.Reason != nil {
		ev = m.log.Error().Err(next.Reason)
	} else {
		ev = m.log.Info()
	}
	ev.Str("from", cur.Status.String()).Str("to", next.Status.String()).Msg("connection state changed")
	return true
}
