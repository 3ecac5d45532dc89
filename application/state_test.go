package application

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionState_CanTransitionTo(t *testing.T) {
	fault := Faulted(fmt.Errorf("reset"))

	testCases := map[string]struct {
		from     ConnectionState
		to       ConnectionState
		expected bool
	}{
		"DisconnectedToConnecting": {Disconnected(), Connecting(), true},
		"DisconnectedToConnected":  {Disconnected(), Connected(), false},
		"DisconnectedToFaulted":    {Disconnected(), fault, false},
		"ConnectingToConnected":    {Connecting(), Connected(), true},
		"ConnectingToFaulted":      {Connecting(), fault, true},
		"ConnectingToDisconnected": {Connecting(), Disconnected(), true},
		"ConnectingToConnecting":   {Connecting(), Connecting(), false},
		"ConnectedToFaulted":       {Connected(), fault, true},
		"ConnectedToDisconnected":  {Connected(), Disconnected(), true},
		"ConnectedToConnecting":    {Connected(), Connecting(), false},
		"FaultedToConnecting":      {fault, Connecting(), true},
		"FaultedToDisconnected":    {fault, Disconnected(), true},
		"FaultedToConnected":       {fault, Connected(), false},
		"FaultedToFaulted":         {fault, fault, false},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected().String())
	assert.Equal(t, "connecting", Connecting().String())
	assert.Equal(t, "connected", Connected().String())
	assert.Equal(t, "faulted: reset", Faulted(fmt.Errorf("reset")).String())
	assert.Equal(t, "unknown(9)", ConnectionStatus(9).String())

	assert.True(t, Connected().IsConnected())
	assert.False(t, Faulted(fmt.Errorf("reset")).IsConnected())
}

func TestStateObservable_Subscribe(t *testing.T) {
	o := NewStateObservable()
	require.Equal(t, Disconnected(), o.Current())

	states, cancel := o.Subscribe()
	defer cancel()

	assert.Equal(t, Disconnected(), <-states)

	o.publish(Connecting())
	assert.Equal(t, Connecting(), <-states)
	assert.Equal(t, Connecting(), o.Current())
}

func TestStateObservable_ConflatesSlowReaders(t *testing.T) {
	o := NewStateObservable()

	states, cancel := o.Subscribe()
	defer cancel()

	o.publish(Connecting())
	o.publish(Connected())

	assert.Equal(t, Connected(), <-states)
	select {
	case s := <-states:
		t.Fatalf("unexpected extra state %s", s)
	default:
	}
}

func TestStateObservable_LateSubscriberSeesCurrent(t *testing.T) {
	o := NewStateObservable()
	o.publish(Connecting())

	states, cancel := o.Subscribe()
	defer cancel()

	assert.Equal(t, Connecting(), <-states)
}

func TestStateObservable_Cancel(t *testing.T) {
	o := NewStateObservable()

	states, cancel := o.Subscribe()
	<-states
	cancel()
	cancel()

	_, ok := <-states
	assert.False(t, ok)

	assert.NotPanics(t, func() { o.publish(Connecting()) })
}
