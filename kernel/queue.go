package kernel

// Queue is a bounded queue of fixed-size items with copy semantics: Send
// copies the item in, Receive copies it out. When a send or receive
// satisfies a blocked task on the other side, the item is handed to that
// task directly, so the head waiter gets the slot no matter who runs next.
type Queue struct {
	k        *Kernel
	itemSize int
	capacity int

	storage []byte
	head    int // index of the oldest item
	count   int

	sendWait listHead
	recvWait listHead
}

// NewQueue creates a queue holding up to capacity items of itemSize bytes.
func (k *Kernel) NewQueue(capacity, itemSize int) *Queue {
	return k.InitQueue(&Queue{}, make([]byte, capacity*itemSize), capacity, itemSize)
}

// InitQueue initializes a caller-supplied zero-valued control block over
// caller-supplied storage. Runtime semantics are identical to NewQueue.
func (k *Kernel) InitQueue(q *Queue, storage []byte, capacity, itemSize int) *Queue {
	if q.k != nil {
		k.fault("InitQueue: control block already in use")
	}
	if capacity <= 0 || itemSize <= 0 {
		k.fault("queue capacity %d / item size %d invalid", capacity, itemSize)
	}
	if len(storage) < capacity*itemSize {
		k.fault("queue storage %d bytes, need %d", len(storage), capacity*itemSize)
	}
	q.k = k
	q.itemSize = itemSize
	q.capacity = capacity
	q.storage = storage
	q.sendWait.init()
	q.recvWait.init()
	return q
}

func (q *Queue) slot(i int) []byte {
	off := (i % q.capacity) * q.itemSize
	return q.storage[off : off+q.itemSize]
}

func (q *Queue) pushLocked(item []byte) {
	copy(q.slot(q.head+q.count), item[:q.itemSize])
	q.count++
}

func (q *Queue) popLocked(dst []byte) {
	copy(dst, q.slot(q.head))
	q.head = (q.head + 1) % q.capacity
	q.count--
}

func (q *Queue) checkItem(k *Kernel, item []byte, what string) {
	if q.k != k {
		k.fault("queue used across kernel instances")
	}
	if len(item) < q.itemSize {
		k.fault("queue %s buffer %d bytes, item size %d", what, len(item), q.itemSize)
	}
}

// trySendLocked is the common non-blocking send path.
func (q *Queue) trySendLocked(k *Kernel, item []byte) error {
	if w := k.arena.front(&q.recvWait); w != nil {
		// Empty queue with a blocked receiver: hand the item over.
		w.setXfer(item[:q.itemSize])
		k.makeReadyLocked(w, wakeHandoff)
		return nil
	}
	if q.count == q.capacity {
		return ErrWouldBlock
	}
	q.pushLocked(item)
	return nil
}

// tryRecvLocked is the common non-blocking receive path.
func (q *Queue) tryRecvLocked(k *Kernel, dst []byte) error {
	if q.count == 0 {
		return ErrWouldBlock
	}
	q.popLocked(dst[:q.itemSize])
	if s := k.arena.front(&q.sendWait); s != nil {
		// A sender was blocked on the slot we just freed.
		q.pushLocked(s.xfer[:q.itemSize])
		k.makeReadyLocked(s, wakeHandoff)
	}
	return nil
}

// Send copies an item into the queue, blocking up to timeout ticks while
// the queue is full. A timed-out send leaves the queue untouched.
func (q *Queue) Send(c *Context, item []byte, timeout Ticks) error {
	c.enter()
	q.checkItem(c.k, item, "send")
	err := q.sendLocked(c, item, timeout)
	c.exit()
	return err
}

func (q *Queue) sendLocked(c *Context, item []byte, timeout Ticks) error {
	k, t := c.k, c.t
	err := q.trySendLocked(k, item)
	if err == nil || timeout == NoWait {
		return err
	}
	t.setXfer(item[:q.itemSize])
	if k.blockLocked(t, &q.sendWait, timeout) == wakeHandoff {
		return nil
	}
	return ErrTimedOut
}

// SendISR copies an item into the queue from interrupt context, failing
// immediately when the queue is full.
func (q *Queue) SendISR(i *ISR, item []byte) error {
	i.check()
	q.checkItem(i.k, item, "send")
	return q.trySendLocked(i.k, item)
}

// Receive copies the oldest item into dst, blocking up to timeout ticks
// while the queue is empty.
func (q *Queue) Receive(c *Context, dst []byte, timeout Ticks) error {
	c.enter()
	k, t := c.k, c.t
	q.checkItem(k, dst, "receive")

	err := q.tryRecvLocked(k, dst)
	if err == nil || timeout == NoWait {
		c.exit()
		return err
	}

	reason := k.blockLocked(t, &q.recvWait, timeout)
	if reason == wakeHandoff {
		copy(dst[:q.itemSize], t.xfer[:q.itemSize])
	}
	c.exit()
	if reason == wakeHandoff {
		return nil
	}
	return ErrTimedOut
}

// ReceiveISR copies the oldest item into dst from interrupt context,
// failing immediately when the queue is empty.
func (q *Queue) ReceiveISR(i *ISR, dst []byte) error {
	i.check()
	q.checkItem(i.k, dst, "receive")
	return q.tryRecvLocked(i.k, dst)
}

// Len returns the number of items waiting in the queue.
func (q *Queue) Len() int {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.count
}

// Spaces returns the number of free item slots.
func (q *Queue) Spaces() int {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.capacity - q.count
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue) IsEmpty() bool { return q.Len() == 0 }

// IsFull reports whether the queue has no free slots.
func (q *Queue) IsFull() bool { return q.Spaces() == 0 }

// Capacity returns the queue's item capacity.
func (q *Queue) Capacity() int { return q.capacity }

// ItemSize returns the fixed per-item size in bytes.
func (q *Queue) ItemSize() int { return q.itemSize }
