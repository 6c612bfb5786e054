// ABOUTME: Fixed-capacity byte ring buffer for network audio packets
// ABOUTME: Length-prefixed FIFO with drop-on-full and a one-shot pre-roll gate
package jitter

import (
	"sync"
	"time"
)

// headerSize is the 2-byte little-endian packet length prefix.
const headerSize = 2

// Buffer absorbs delivery-time variance between the network producer and
// the audio consumer. Packets are stored as [u16 LE length][payload] and
// come back out whole, in push order. A push either fully succeeds or
// fully fails; partial packets are never visible to the consumer.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	head     int
	size     int
	trigger  int
	filled   bool
	dropped  uint64
	accepted uint64

	// notify wakes a consumer blocked in Pop. Capacity 1: coalescing
	// wakeups is fine because Pop re-checks size under the lock.
	notify chan struct{}
}

// New creates a buffer with the given byte capacity and pre-roll trigger
// level. Filled flips true once buffered bytes reach triggerBytes and
// stays true until Reset.
func New(capacity, triggerBytes int) *Buffer {
	if capacity < headerSize {
		capacity = headerSize
	}
	return &Buffer{
		data:    make([]byte, capacity),
		trigger: triggerBytes,
		notify:  make(chan struct{}, 1),
	}
}

// Push appends one packet. It fails and drops the packet when the buffer
// lacks room for the header plus payload; this is a counted event, never
// an error condition.
func (b *Buffer) Push(p []byte) bool {
	if len(p) == 0 || len(p) > 0xFFFF {
		return false
	}

	b.mu.Lock()
	need := headerSize + len(p)
	if need > len(b.data)-b.size {
		b.dropped++
		b.mu.Unlock()
		return false
	}

	b.writeByte(byte(len(p)))
	b.writeByte(byte(len(p) >> 8))
	for _, c := range p {
		b.writeByte(c)
	}
	b.accepted++

	if !b.filled && b.size >= b.trigger {
		b.filled = true
	}
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the oldest packet, waiting at most timeout for
// one to arrive. Returns false on timeout so the caller can emit silence
// and keep its cadence.
func (b *Buffer) Pop(timeout time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(timeout)

	for {
		b.mu.Lock()
		if b.size >= headerSize {
			length := int(b.readByte()) | int(b.readByte())<<8
			p := make([]byte, length)
			for i := range p {
				p[i] = b.readByte()
			}
			b.mu.Unlock()
			return p, true
		}
		b.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}

		select {
		case <-b.notify:
		case <-time.After(remaining):
			return nil, false
		}
	}
}

// Reset discards all buffered bytes and re-arms the pre-roll gate. Used
// on stream session start and stop.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.head = 0
	b.size = 0
	b.filled = false
	b.mu.Unlock()

	select {
	case <-b.notify:
	default:
	}
}

// Filled reports whether the pre-roll trigger has been reached this
// session. The gate is one-shot: it never re-arms when the buffer later
// drains, only on Reset.
func (b *Buffer) Filled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filled
}

// Len returns the number of buffered bytes, headers included.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the total byte capacity.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Dropped returns the count of packets rejected for lack of space.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// writeByte appends one byte; caller holds the lock and has checked space.
func (b *Buffer) writeByte(c byte) {
	b.data[(b.head+b.size)%len(b.data)] = c
	b.size++
}

// readByte consumes one byte; caller holds the lock and has checked size.
func (b *Buffer) readByte() byte {
	c := b.data[b.head]
	b.head = (b.head + 1) % len(b.data)
	b.size--
	return c
}
