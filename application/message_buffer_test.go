package application

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferMessage(i int) RawMessage {
	return RawMessage{ID: fmt.Sprint(i), Topic: "user/42/heartbeat", Payload: fmt.Sprint(i), ReceivedAt: time.Unix(int64(i), 0)}
}

func payloads(msgs []RawMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Payload)
	}
	return out
}

func TestNewMessageBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultBufferCapacity, NewMessageBuffer(0).Capacity())
	assert.Equal(t, DefaultBufferCapacity, NewMessageBuffer(-3).Capacity())
	assert.Equal(t, 3, NewMessageBuffer(3).Capacity())
}

func TestMessageBuffer_Append(t *testing.T) {
	b := NewMessageBuffer(3)
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Snapshot())

	b.Append(bufferMessage(1))
	b.Append(bufferMessage(2))
	assert.Equal(t, []string{"1", "2"}, payloads(b.Snapshot()))

	b.Append(bufferMessage(3))
	b.Append(bufferMessage(4))
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"2", "3", "4"}, payloads(b.Snapshot()))
}

func TestMessageBuffer_KeepsLastCapacityAcrossCompaction(t *testing.T) {
	b := NewMessageBuffer(5)

	for i := 1; i <= 1000; i++ {
		b.Append(bufferMessage(i))

		expectedLen := i
		if expectedLen > 5 {
			expectedLen = 5
		}
		require.Equal(t, expectedLen, b.Len(), "after %d appends", i)
	}

	assert.Equal(t, []string{"996", "997", "998", "999", "1000"}, payloads(b.Snapshot()))
}

func TestMessageBuffer_SnapshotIsCopy(t *testing.T) {
	b := NewMessageBuffer(3)
	b.Append(bufferMessage(1))

	snapshot := b.Snapshot()
	snapshot[0].Payload = "changed"
	b.Append(bufferMessage(2))

	assert.Equal(t, "changed", snapshot[0].Payload)
	assert.Len(t, snapshot, 1)
	assert.Equal(t, []string{"1", "2"}, payloads(b.Snapshot()))
}

func TestMessageBuffer_Clear(t *testing.T) {
	b := NewMessageBuffer(3)
	b.Append(bufferMessage(1))
	b.Append(bufferMessage(2))

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())

	b.Append(bufferMessage(3))
	assert.Equal(t, []string{"3"}, payloads(b.Snapshot()))
}

func TestMessageBuffer_Concurrent(t *testing.T) {
	b := NewMessageBuffer(50)

	wg := sync.WaitGroup{}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Append(bufferMessage(w*1000 + i))
				_ = b.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 50, b.Len())
}
