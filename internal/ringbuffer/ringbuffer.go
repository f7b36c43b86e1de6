// Package ringbuffer implements the lock-free single-producer/single-consumer
// sample queue that bridges the real-time audio thread to everything else.
package ringbuffer

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RingBuffer is a fixed-capacity SPSC queue of float32 samples. The writer
// (Tap Bridge) is the sole caller of Write; the reader (an Audio Engine
// source node) is the sole caller of Read. Both indices are monotonically
// increasing and observed with a release/acquire barrier around the index
// update, per the teacher's buffer.RingBuffer (int64 write/read cursors,
// atomic publish). Write and Read never allocate, lock, or block.
type RingBuffer struct {
	buf      []float32
	capacity int64

	// write is advanced only by the producer; read only by the consumer.
	write atomic.Int64
	read  atomic.Int64

	overflow  atomic.Uint64
	underrun  atomic.Uint64
	lastLog   atomic.Int64 // unix nanos of the last rate-limited diagnostic line
	clearLock sync.Mutex   // serializes clear() against itself; never touched by the RT thread
}

// New creates a RingBuffer with the given sample capacity.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		buf:      make([]float32, capacity),
		capacity: int64(capacity),
	}
}

// Write copies count samples from src into the buffer. It returns false and
// drops the entire block without copying anything if there isn't enough
// free capacity. Must not allocate, lock, or suspend — safe to call from the
// real-time audio callback.
func (r *RingBuffer) Write(src []float32, count int) bool {
	w := r.write.Load()
	rd := r.read.Load()

	free := r.capacity - (w - rd)
	if int64(count) > free {
		r.overflow.Add(1)
		r.logRateLimited("ring buffer overflow, dropping block", count)
		return false
	}

	pos := w % r.capacity
	first := r.capacity - pos
	if first > int64(count) {
		first = int64(count)
	}
	copy(r.buf[pos:pos+first], src[:first])
	if first < int64(count) {
		copy(r.buf[0:int64(count)-first], src[first:count])
	}

	// Publish with a release barrier: the atomic store is the synchronization
	// point the consumer's acquire-load pairs with.
	r.write.Store(w + int64(count))
	return true
}

// Read fills dst[:count] with the next count samples. If fewer than count
// samples are available, the remainder of dst is zero-padded. Returns the
// number of real (non-padded) samples copied; 0 on a full underrun, in which
// case dst is entirely zeroed.
func (r *RingBuffer) Read(dst []float32, count int) int {
	// Acquire the writer's published index before computing availability.
	w := r.write.Load()
	rd := r.read.Load()

	avail := w - rd
	if avail < 0 {
		avail = 0
	}
	n := int64(count)
	if avail < n {
		n = avail
	}

	if n > 0 {
		pos := rd % r.capacity
		first := r.capacity - pos
		if first > n {
			first = n
		}
		copy(dst[:first], r.buf[pos:pos+first])
		if first < n {
			copy(dst[first:n], r.buf[0:n-first])
		}
	}
	// Zero-pad whatever wasn't filled.
	for i := n; i < int64(count); i++ {
		dst[i] = 0
	}

	r.read.Store(rd + n)

	if n == 0 {
		r.underrun.Add(1)
		r.logRateLimited("ring buffer underrun, emitting silence", count)
	}

	return int(n)
}

// Available returns a snapshot of write-read. May race by a bounded amount
// against a concurrent Write/Read; this is acceptable per spec.
func (r *RingBuffer) Available() int {
	w := r.write.Load()
	rd := r.read.Load()
	avail := w - rd
	if avail < 0 {
		return 0
	}
	return int(avail)
}

// Capacity returns the buffer's fixed sample capacity.
func (r *RingBuffer) Capacity() int {
	return int(r.capacity)
}

// Clear resets both indices to zero and zeroes the backing storage. Takes a
// non-RT lock and must never be called from the audio callback. Also resets
// the overflow/underrun counters.
func (r *RingBuffer) Clear() {
	r.clearLock.Lock()
	defer r.clearLock.Unlock()

	r.write.Store(0)
	r.read.Store(0)
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.overflow.Store(0)
	r.underrun.Store(0)
}

// Counters returns the cumulative overflow (dropped blocks) and underrun
// (zero-filled reads) counts since creation or the last Clear.
func (r *RingBuffer) Counters() (overflow, underrun uint64) {
	return r.overflow.Load(), r.underrun.Load()
}

// logRateLimited emits at most one diagnostic line per second, regardless of
// how often overflow/underrun occurs — called from the RT path, so the log
// call itself must stay cheap (a single atomic CAS in the common case).
func (r *RingBuffer) logRateLimited(msg string, count int) {
	now := time.Now().UnixNano()
	last := r.lastLog.Load()
	if now-last < int64(time.Second) {
		return
	}
	if !r.lastLog.CompareAndSwap(last, now) {
		return
	}
	overflow, underrun := r.Counters()
	slog.Warn(msg, "requested", count, "overflow_total", overflow, "underrun_total", underrun)
}
