package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushN(rb *ringBuffer, from, to int) {
	for i := from; i < to; i++ {
		rb.push(bufferedMsg{topic: Topic, payload: []byte{byte(i)}})
	}
}

func payloads(msgs []bufferedMsg) []byte {
	out := make([]byte, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	assert.Nil(t, rb.drainAll())
	assert.Equal(t, 0, rb.len())
}

func TestRingBufferFIFO(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushed   int
		want     []byte
	}{
		{"partial", 10, 5, []byte{0, 1, 2, 3, 4}},
		{"exactly full", 4, 4, []byte{0, 1, 2, 3}},
		{"overflow drops oldest", 5, 8, []byte{3, 4, 5, 6, 7}},
		{"zero capacity holds one", 0, 3, []byte{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity)
			pushN(rb, 0, tt.pushed)

			got := rb.drainAll()
			assert.Equal(t, tt.want, payloads(got))
			assert.Nil(t, rb.drainAll(), "second drain")
		})
	}
}

func TestRingBufferReuseAfterDrain(t *testing.T) {
	rb := newRingBuffer(5)

	pushN(rb, 0, 3)
	require.Len(t, rb.drainAll(), 3)

	pushN(rb, 10, 14)
	assert.Equal(t, 4, rb.len())
	assert.Equal(t, []byte{10, 11, 12, 13}, payloads(rb.drainAll()))
	assert.False(t, rb.overflow)
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10)
	rb.push(bufferedMsg{
		topic:    TopicSystem,
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	})

	got := rb.drainAll()
	require.Len(t, got, 1)
	assert.Equal(t, TopicSystem, got[0].topic)
	assert.Equal(t, `{"test":true}`, string(got[0].payload))
	assert.Equal(t, byte(1), got[0].qos)
	assert.True(t, got[0].retained)
}
