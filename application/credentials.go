package application

import (
	"fmt"
	"time"
)

const (
	DefaultBrokerHost = "192.168.1.100"
	DefaultBrokerPort = 1883
	DefaultKeepAlive  = 30 * time.Second

	clientIdentityPrefix = "xgos-feed"
)

// Credentials are fixed for one connection attempt; Connect replaces them as a whole.
type Credentials struct {
	BrokerHost     string
	BrokerPort     int
	ClientIdentity string
	Username       string
	Password       string
	KeepAlive      time.Duration
	CleanSession   bool
}

// DefaultClientIdentity is stable per username so the broker can keep the
// persistent session across reconnects.
func DefaultClientIdentity(username string) string {
	if username == "" {
		return clientIdentityPrefix
	}
	return fmt.Sprintf("%s-%s", clientIdentityPrefix, username)
}

func (c *Credentials) EnsureDefaults() {
	if c.BrokerHost == "" {
		c.BrokerHost = DefaultBrokerHost
	}
	if c.BrokerPort == 0 {
		c.BrokerPort = DefaultBrokerPort
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ClientIdentity == "" {
		c.ClientIdentity = DefaultClientIdentity(c.Username)
	}
}

func (c Credentials) Validate() error {
	if c.BrokerHost == "" {
		return fmt.Errorf("%w: broker host is empty", ErrInvalidCredentials)
	}
	if c.BrokerPort <= 0 || c.BrokerPort > 65535 {
		return fmt.Errorf("%w: broker port %d out of range", ErrInvalidCredentials, c.BrokerPort)
	}
	if c.ClientIdentity == "" {
		return fmt.Errorf("%w: client identity is empty", ErrInvalidCredentials)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("%w: negative keep-alive", ErrInvalidCredentials)
	}
	return nil
}

func (c Credentials) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.BrokerHost, c.BrokerPort)
}

type ActiveUser struct {
	UserID   string
	Username string
}

// CredentialStore is read-only from the core's point of view.
type CredentialStore interface {
	GetActiveUser() (ActiveUser, bool)
}
