package application

import "fmt"

var (
	ErrTransport          = fmt.Errorf("broker transport error")
	ErrAuthentication     = fmt.Errorf("broker rejected credentials")
	ErrNotConnected       = fmt.Errorf("not connected")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
)

const QoSAtLeastOnce byte = 1

// BrokerEvent is everything a live broker session reports back to the
// ConnectionManager. Implementations: BrokerConnected, BrokerDisconnected, BrokerMessage.
type BrokerEvent interface {
	brokerEvent()
}

type BrokerConnected struct{}

// BrokerDisconnected covers failed connect attempts and dropped connections.
// A nil Err means the broker closed the session cleanly.
type BrokerDisconnected struct {
	Err error
}

type BrokerMessage struct {
	Topic   string
	Payload string
}

func (BrokerConnected) brokerEvent()    {}
func (BrokerDisconnected) brokerEvent() {}
func (BrokerMessage) brokerEvent()      {}

// BrokerSession is one live transport connection.
type BrokerSession interface {
	Subscribe(topic string, qos byte) error
	Unsubscribe(topics ...string) error
	Close()
}

// BrokerDialer starts a connection attempt and returns without waiting for the
// handshake. Every outcome of the attempt is reported through emit, and emit
// must never block for longer than it takes to enqueue.
type BrokerDialer interface {
	Dial(creds Credentials, emit func(BrokerEvent)) (BrokerSession, error)
}
