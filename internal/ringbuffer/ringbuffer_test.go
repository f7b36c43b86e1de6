package ringbuffer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWriteReadRoundTrip(t *testing.T) {
	rb := New(16)
	src := []float32{1, 2, 3, 4}
	ok := rb.Write(src, len(src))
	require.True(t, ok)
	require.Equal(t, 4, rb.Available())

	dst := make([]float32, 4)
	n := rb.Read(dst, 4)
	assert.Equal(t, 4, n)
	assert.Equal(t, src, dst)
	assert.Equal(t, 0, rb.Available())
}

func TestWriteDropsWholeBlockOnOverflow(t *testing.T) {
	rb := New(4)
	ok := rb.Write([]float32{1, 2, 3, 4, 5}, 5)
	assert.False(t, ok)
	assert.Equal(t, 0, rb.Available())
	overflow, _ := rb.Counters()
	assert.Equal(t, uint64(1), overflow)
}

func TestReadZeroPadsOnPartialUnderrun(t *testing.T) {
	rb := New(8)
	rb.Write([]float32{1, 2}, 2)

	dst := make([]float32, 5)
	n := rb.Read(dst, 5)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{1, 2, 0, 0, 0}, dst)
}

func TestReadReturnsZeroOnFullUnderrun(t *testing.T) {
	rb := New(8)
	dst := []float32{9, 9, 9}
	n := rb.Read(dst, 3)
	assert.Equal(t, 0, n)
	assert.Equal(t, []float32{0, 0, 0}, dst)
	_, underrun := rb.Counters()
	assert.Equal(t, uint64(1), underrun)
}

func TestClearResetsIndicesAndCounters(t *testing.T) {
	rb := New(8)
	rb.Write([]float32{1, 2, 3}, 3)
	rb.Read(make([]float32, 10), 10) // causes an underrun
	rb.Clear()

	assert.Equal(t, 0, rb.Available())
	dst := make([]float32, 4)
	n := rb.Read(dst, 4)
	assert.Equal(t, 0, n)
	assert.Equal(t, []float32{0, 0, 0, 0}, dst)

	overflow, underrun := rb.Counters()
	assert.Equal(t, uint64(0), overflow)
	assert.Equal(t, uint64(0), underrun)
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	rb := New(4)
	rb.Write([]float32{1, 2, 3}, 3)
	out := make([]float32, 2)
	rb.Read(out, 2) // read index now at 2, write at 3

	rb.Write([]float32{4, 5, 6}, 3) // wraps: (3-2)+3=4 <= capacity(4)

	dst := make([]float32, 4)
	n := rb.Read(dst, 4)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{3, 4, 5, 6}, dst)
}

// TestConcurrentProducerConsumerFIFO drives random write/read interleavings
// across two goroutines (the SPSC contract) and verifies every sample that
// was actually accepted by Write is later observed in FIFO order by Read.
// The producer hands each accepted chunk to the consumer before writing the
// next, so the buffer never overflows and the sample values have no gaps.
func TestConcurrentProducerConsumerFIFO(t *testing.T) {
	const capacity = 64
	const total = 20000

	rb := New(capacity)

	produced := make(chan []float32, 1)
	done := make(chan struct{})

	var written int64
	go func() {
		defer close(produced)
		val := float32(0)
		r := rand.New(rand.NewSource(1))
		for written < total {
			chunkLen := 1 + r.Intn(8)
			chunk := make([]float32, chunkLen)
			for i := range chunk {
				chunk[i] = val
				val++
			}
			if rb.Write(chunk, chunkLen) {
				written += int64(chunkLen)
				produced <- chunk
			}
		}
	}()

	var consumed []float32
	go func() {
		defer close(done)
		buf := make([]float32, 8)
		for range produced {
			n := rb.Read(buf, len(buf))
			consumed = append(consumed, buf[:n]...)
		}
		// Drain whatever remains after the producer finishes.
		for {
			n := rb.Read(buf, len(buf))
			if n == 0 {
				break
			}
			consumed = append(consumed, buf[:n]...)
		}
	}()

	<-done

	for i, v := range consumed {
		assert.Equal(t, float32(i), v, "sample %d out of order or corrupted", i)
	}
}

// TestAvailableNeverExceedsCapacity is a property test: no sequence of
// Write/Read calls should ever make Available() report more than capacity.
func TestAvailableNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		rb := New(capacity)

		ops := rapid.SliceOfN(rapid.IntRange(-32, 32), 0, 50).Draw(rt, "ops")
		for _, op := range ops {
			if op >= 0 {
				chunk := make([]float32, op)
				rb.Write(chunk, op)
			} else {
				rb.Read(make([]float32, -op), -op)
			}
			if rb.Available() > capacity {
				rt.Fatalf("available %d exceeds capacity %d", rb.Available(), capacity)
			}
		}
	})
}
