package mailbox

import (
	"sync"
	"testing"

	"github.com/samsamfire/goethercat/pkg/wire"
	"github.com/stretchr/testify/assert"
)

func TestCounterSequence(t *testing.T) {
	expected := []uint8{1, 2, 3, 4, 5, 6, 7, 1, 2, 3, 4, 5, 6, 7, 1}
	counter := NewCounter()
	for _, want := range expected {
		assert.Equal(t, want, counter.Next())
	}
	var zero Counter
	assert.EqualValues(t, 1, zero.Peek())
	for _, want := range expected {
		assert.Equal(t, want, zero.Next())
	}
}

func TestCounterConcurrent(t *testing.T) {
	counter := NewCounter()
	const workers = 7
	const perWorker = 100
	results := make(chan uint8, workers*perWorker)
	wg := sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- counter.Next()
			}
		}()
	}
	wg.Wait()
	close(results)
	seen := map[uint8]int{}
	for v := range results {
		seen[v]++
	}
	assert.Len(t, seen, 7)
	for v, count := range seen {
		assert.True(t, v >= 1 && v <= 7)
		assert.Equal(t, perWorker, count)
	}
	assert.EqualValues(t, 1, counter.Peek())
}

func TestHeader(t *testing.T) {
	header := Header{Length: 10, Type: TypeCoE, Counter: 3, Priority: PriorityHigh, Channel: 1}
	buf, err := wire.Marshal(header)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x0a, 0x00, 0x00, 0x00, 0x81, 0x33}, buf)
	decoded, err := wire.Decode[Header](buf)
	assert.Nil(t, err)
	assert.Equal(t, header, decoded)

	// Reserved bit is ignored
	decoded, err = wire.Decode[Header]([]byte{0x0a, 0x00, 0x00, 0x00, 0x00, 0xf3})
	assert.Nil(t, err)
	assert.EqualValues(t, 7, decoded.Counter)

	_, err = wire.Decode[Header]([]byte{0x0a, 0x00, 0x00, 0x00, 0x00, 0x09})
	assert.ErrorIs(t, err, wire.ErrUnknownDiscriminant)
}

func TestErrorReply(t *testing.T) {
	frame := []byte{0x04, 0x00, 0x00, 0x00, 0x00, 0x20, 0x01, 0x00, 0x02, 0x00}
	reply, ok := ParseErrorReply(frame)
	assert.True(t, ok)
	assert.Equal(t, ErrorUnsupportedProtocol, reply.Detail)
	assert.Contains(t, reply.Error(), "not supported")

	_, ok = ParseErrorReply([]byte{0x04, 0x00, 0x00, 0x00, 0x00, 0x23, 0x01, 0x00, 0x02, 0x00})
	assert.False(t, ok)
}

func TestProtocols(t *testing.T) {
	p := ProtocolCoE | ProtocolFoE
	assert.True(t, p.Has(ProtocolCoE))
	assert.False(t, p.Has(ProtocolEoE))
	assert.Equal(t, "coe,foe", p.String())
	parsed, err := ParseProtocol(" CoE ")
	assert.Nil(t, err)
	assert.Equal(t, ProtocolCoE, parsed)
	_, err = ParseProtocol("xyz")
	assert.NotNil(t, err)
}
