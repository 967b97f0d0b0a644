package kernel

import "encoding/binary"

const msgHeaderBytes = 2

// MessageBuffer is a byte-stream FIFO that stores a length with every
// message, so variable-length payloads come back out with their original
// framing. Intended for one writer and one reader, the usual ISR-to-task
// or task-to-task streaming arrangement; waiters re-check after every wake.
type MessageBuffer struct {
	k *Kernel

	buf  []byte
	head int // offset of the oldest stored byte
	used int

	sendWait listHead
	recvWait listHead
}

// NewMessageBuffer creates a message buffer with the given byte capacity.
// Each message additionally consumes a 2-byte length header, so the largest
// single message is capacity-2 bytes.
func (k *Kernel) NewMessageBuffer(capacity int) *MessageBuffer {
	return k.InitMessageBuffer(&MessageBuffer{}, make([]byte, capacity))
}

// InitMessageBuffer initializes a caller-supplied zero-valued control block
// over caller-supplied storage. Runtime semantics are identical to
// NewMessageBuffer.
func (k *Kernel) InitMessageBuffer(b *MessageBuffer, storage []byte) *MessageBuffer {
	if b.k != nil {
		k.fault("InitMessageBuffer: control block already in use")
	}
	if len(storage) <= msgHeaderBytes {
		k.fault("message buffer storage %d bytes is too small", len(storage))
	}
	b.k = k
	b.buf = storage
	b.sendWait.init()
	b.recvWait.init()
	return b
}

func (b *MessageBuffer) freeLocked() int { return len(b.buf) - b.used }

func (b *MessageBuffer) writeLocked(p []byte) {
	at := (b.head + b.used) % len(b.buf)
	n := copy(b.buf[at:], p)
	copy(b.buf, p[n:])
	b.used += len(p)
}

func (b *MessageBuffer) readLocked(dst []byte) {
	n := copy(dst, b.buf[b.head:])
	copy(dst[n:], b.buf)
	b.head = (b.head + len(dst)) % len(b.buf)
	b.used -= len(dst)
}

func (b *MessageBuffer) nextLenLocked() int {
	if b.used == 0 {
		return 0
	}
	var hdr [msgHeaderBytes]byte
	hdr[0] = b.buf[b.head]
	hdr[1] = b.buf[(b.head+1)%len(b.buf)]
	return int(binary.LittleEndian.Uint16(hdr[:]))
}

func (b *MessageBuffer) check(k *Kernel) {
	if b.k != k {
		k.fault("message buffer used across kernel instances")
	}
}

func (b *MessageBuffer) trySendLocked(k *Kernel, msg []byte) error {
	needed := msgHeaderBytes + len(msg)
	if b.freeLocked() < needed {
		return ErrWouldBlock
	}
	var hdr [msgHeaderBytes]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(msg)))
	b.writeLocked(hdr[:])
	b.writeLocked(msg)
	if w := k.arena.front(&b.recvWait); w != nil {
		k.makeReadyLocked(w, wakeHandoff)
	}
	return nil
}

func (b *MessageBuffer) tryRecvLocked(k *Kernel, dst []byte) (int, error) {
	if b.used == 0 {
		return 0, ErrWouldBlock
	}
	n := b.nextLenLocked()
	if len(dst) < n {
		// Leave the message in place; the caller's buffer is too small.
		return 0, ErrCapacityExceeded
	}
	var hdr [msgHeaderBytes]byte
	b.readLocked(hdr[:])
	b.readLocked(dst[:n])
	if s := k.arena.front(&b.sendWait); s != nil {
		k.makeReadyLocked(s, wakeHandoff)
	}
	return n, nil
}

// Send copies one message into the buffer, blocking up to timeout ticks
// for space. Messages larger than the buffer can ever hold fail with
// ErrCapacityExceeded; zero-length messages are a programming error.
func (b *MessageBuffer) Send(c *Context, msg []byte, timeout Ticks) error {
	c.enter()
	k, t := c.k, c.t
	b.check(k)
	if len(msg) == 0 {
		k.fault("empty message sent to message buffer")
	}
	if msgHeaderBytes+len(msg) > len(b.buf) || len(msg) > 0xffff {
		c.exit()
		return ErrCapacityExceeded
	}

	var deadline uint64
	if timeout != Forever {
		deadline = k.ticks + uint64(timeout)
	}
	for {
		err := b.trySendLocked(k, msg)
		if err == nil {
			c.exit()
			return nil
		}
		if timeout == NoWait {
			c.exit()
			return ErrWouldBlock
		}
		remaining := Forever
		if timeout != Forever {
			if k.ticks >= deadline {
				c.exit()
				return ErrTimedOut
			}
			remaining = Ticks(deadline - k.ticks)
		}
		if k.blockLocked(t, &b.sendWait, remaining) == wakeTimeout {
			c.exit()
			return ErrTimedOut
		}
	}
}

// SendISR copies one message into the buffer from interrupt context,
// failing immediately when it does not fit.
func (b *MessageBuffer) SendISR(i *ISR, msg []byte) error {
	i.check()
	b.check(i.k)
	if len(msg) == 0 {
		i.k.fault("empty message sent to message buffer")
	}
	if msgHeaderBytes+len(msg) > len(b.buf) || len(msg) > 0xffff {
		return ErrCapacityExceeded
	}
	return b.trySendLocked(i.k, msg)
}

// Receive copies the oldest message into dst and returns its length,
// blocking up to timeout ticks while the buffer is empty. A dst shorter
// than the next message fails with ErrCapacityExceeded and consumes
// nothing.
func (b *MessageBuffer) Receive(c *Context, dst []byte, timeout Ticks) (int, error) {
	c.enter()
	k, t := c.k, c.t
	b.check(k)

	var deadline uint64
	if timeout != Forever {
		deadline = k.ticks + uint64(timeout)
	}
	for {
		n, err := b.tryRecvLocked(k, dst)
		if err == nil || err == ErrCapacityExceeded {
			c.exit()
			return n, err
		}
		if timeout == NoWait {
			c.exit()
			return 0, ErrWouldBlock
		}
		remaining := Forever
		if timeout != Forever {
			if k.ticks >= deadline {
				c.exit()
				return 0, ErrTimedOut
			}
			remaining = Ticks(deadline - k.ticks)
		}
		if k.blockLocked(t, &b.recvWait, remaining) == wakeTimeout {
			c.exit()
			return 0, ErrTimedOut
		}
	}
}

// ReceiveISR copies the oldest message into dst from interrupt context,
// failing immediately when the buffer is empty.
func (b *MessageBuffer) ReceiveISR(i *ISR, dst []byte) (int, error) {
	i.check()
	b.check(i.k)
	return b.tryRecvLocked(i.k, dst)
}

// NextMessageLength returns the length of the oldest stored message, or 0
// when the buffer is empty.
func (b *MessageBuffer) NextMessageLength() int {
	b.k.mu.Lock()
	defer b.k.mu.Unlock()
	return b.nextLenLocked()
}

// Spaces returns the free byte count, headers included.
func (b *MessageBuffer) Spaces() int {
	b.k.mu.Lock()
	defer b.k.mu.Unlock()
	return b.freeLocked()
}

// IsEmpty reports whether no message is stored.
func (b *MessageBuffer) IsEmpty() bool {
	b.k.mu.Lock()
	defer b.k.mu.Unlock()
	return b.used == 0
}

// IsFull reports whether not a single further byte fits.
func (b *MessageBuffer) IsFull() bool {
	return b.Spaces() == 0
}
