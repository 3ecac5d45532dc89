package adapters

import (
	"errors"
	"fmt"
	"time"
	"xgos-feed/application"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/rs/zerolog"
)

const (
	MQTTDefaultConnectTimeout    = 30 * time.Second
	MQTTDefaultOperationTimeout  = 5 * time.Second
	MQTTDefaultDisconnectQuiesce = 250 // milliseconds
)

var (
	ErrMQTTConnectTimeout     = fmt.Errorf("connect timeout")
	ErrMQTTSubscribeTimeout   = fmt.Errorf("subscribe timeout")
	ErrMQTTUnsubscribeTimeout = fmt.Errorf("unsubscribe timeout")
)

type MQTTDialerParams struct {
	ConnectTimeout    time.Duration
	OperationTimeout  time.Duration
	DisconnectQuiesce uint

	NewClientFunc func(options *mqtt.ClientOptions) mqtt.Client

	Log zerolog.Logger
}

func (m *MQTTDialerParams) EnsureDefaults() {
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = MQTTDefaultConnectTimeout
	}

	if m.OperationTimeout == 0 {
		m.OperationTimeout = MQTTDefaultOperationTimeout
	}

	if m.DisconnectQuiesce == 0 {
		m.DisconnectQuiesce = MQTTDefaultDisconnectQuiesce
	}

	if m.NewClientFunc == nil {
		m.NewClientFunc = mqtt.NewClient
	}
}

// MQTTDialer opens paho sessions. Paho's own reconnect logic is switched off;
// the ConnectionManager decides when to try again.
type MQTTDialer struct {
	params MQTTDialerParams

	log zerolog.Logger
}

func NewMQTTDialer(params MQTTDialerParams) *MQTTDialer {
	params.EnsureDefaults()
	return &MQTTDialer{params: params, log: params.Log}
}

func (d *MQTTDialer) Dial(creds application.Credentials, emit func(application.BrokerEvent)) (application.BrokerSession, error) {
	if emit == nil {
		return nil, fmt.Errorf("emit is nil")
	}

	s := &MQTTSession{params: d.params, emit: emit, log: d.log.With().Str("client_id", creds.ClientIdentity).Logger()}
	s.client = d.params.NewClientFunc(s.clientOptions(creds))

	token := s.client.Connect()
	go func() {
		if !token.WaitTimeout(d.params.ConnectTimeout) {
			emit(application.BrokerDisconnected{Err: fmt.Errorf("%w: %v", application.ErrTransport, ErrMQTTConnectTimeout)})
			return
		}
		if err := token.Error(); err != nil {
			emit(application.BrokerDisconnected{Err: classifyMQTTError(err)})
		}
	}()

	return s, nil
}

type MQTTSession struct {
	params MQTTDialerParams

	client mqtt.Client
	emit   func(application.BrokerEvent)

	log zerolog.Logger
}

func (s *MQTTSession) Subscribe(topic string, qos byte) error {
	token := s.client.Subscribe(topic, qos, s.MessageHandler)
	if !token.WaitTimeout(s.params.OperationTimeout) {
		return ErrMQTTSubscribeTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}
	return nil
}

func (s *MQTTSession) Unsubscribe(topics ...string) error {
	token := s.client.Unsubscribe(topics...)
	if !token.WaitTimeout(s.params.OperationTimeout) {
		return ErrMQTTUnsubscribeTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}
	return nil
}

// Close returns immediately; the quiesce period runs in the background.
func (s *MQTTSession) Close() {
	go s.client.Disconnect(s.params.DisconnectQuiesce)
}

// MessageHandler also serves as the default handler, which catches messages the
// broker replays from the persistent session before we resubscribe.
func (s *MQTTSession) MessageHandler(client mqtt.Client, msg mqtt.Message) {
	s.emit(application.BrokerMessage{Topic: msg.Topic(), Payload: string(msg.Payload())})
}

func (s *MQTTSession) OnConnect(client mqtt.Client) {
	s.log.Info().Msg("connected")
	s.emit(application.BrokerConnected{})
}

func (s *MQTTSession) OnConnectionLost(client mqtt.Client, err error) {
	s.log.Info().Msgf("connect lost: %v", err)
	if err == nil {
		err = errors.New("connection lost")
	}
	s.emit(application.BrokerDisconnected{Err: classifyMQTTError(err)})
}

func (s *MQTTSession) clientOptions(creds application.Credentials) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(creds.BrokerURL())
	opts.SetClientID(creds.ClientIdentity)
	opts.SetUsername(creds.Username)
	opts.SetPassword(creds.Password)
	opts.SetKeepAlive(creds.KeepAlive)
	opts.SetCleanSession(creds.CleanSession)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(s.params.ConnectTimeout)
	opts.SetOrderMatters(true)

	opts.SetDefaultPublishHandler(s.MessageHandler)
	opts.OnConnect = s.OnConnect
	opts.OnConnectionLost = s.OnConnectionLost

	return opts
}

func classifyMQTTError(err error) error {
	if errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) || errors.Is(err, packets.ErrorRefusedNotAuthorised) {
		return fmt.Errorf("%w: %v", application.ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %v", application.ErrTransport, err)
}

var _ application.BrokerDialer = &MQTTDialer{}
var _ application.BrokerSession = &MQTTSession{}
