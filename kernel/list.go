package kernel

// The scheduler's ready, delayed, and wait lists are index-linked nodes in a
// fixed arena rather than pointer-chained elements. Every task owns two node
// slots: a state node (ready / delayed / suspended list) and an event node
// (a primitive's wait list), so a task can wait on a primitive with a
// timeout armed at the same time. List heads are plain index pairs.

const nilNode = ^uint16(0)

type listNode struct {
	next, prev uint16
	key        int64
	owner      *Task
}

type listHead struct {
	first, last uint16
	n           int
}

func (h *listHead) init() {
	h.first = nilNode
	h.last = nilNode
	h.n = 0
}

func (h *listHead) empty() bool { return h.n == 0 }

type nodeArena struct {
	nodes []listNode
}

func newNodeArena(n int) *nodeArena {
	a := &nodeArena{nodes: make([]listNode, n)}
	for i := range a.nodes {
		a.nodes[i].next = nilNode
		a.nodes[i].prev = nilNode
	}
	return a
}

func (a *nodeArena) front(h *listHead) *Task {
	if h.first == nilNode {
		return nil
	}
	return a.nodes[h.first].owner
}

func (a *nodeArena) pushBack(h *listHead, i uint16) {
	nd := &a.nodes[i]
	nd.next = nilNode
	nd.prev = h.last
	if h.last != nilNode {
		a.nodes[h.last].next = i
	} else {
		h.first = i
	}
	h.last = i
	h.n++
}

func (a *nodeArena) pushFront(h *listHead, i uint16) {
	nd := &a.nodes[i]
	nd.prev = nilNode
	nd.next = h.first
	if h.first != nilNode {
		a.nodes[h.first].prev = i
	} else {
		h.last = i
	}
	h.first = i
	h.n++
}

// insertByKeyDesc inserts keeping the list sorted by descending key,
// FIFO among equal keys.
func (a *nodeArena) insertByKeyDesc(h *listHead, i uint16, key int64) {
	a.nodes[i].key = key

	at := h.first
	for at != nilNode && a.nodes[at].key >= key {
		at = a.nodes[at].next
	}
	if at == nilNode {
		a.pushBack(h, i)
		return
	}
	a.insertBefore(h, i, at)
}

// insertDelta inserts into a delta list: each node's key is the number of
// ticks to wait beyond the node before it.
func (a *nodeArena) insertDelta(h *listHead, i uint16, delay int64) {
	at := h.first
	for at != nilNode && a.nodes[at].key <= delay {
		delay -= a.nodes[at].key
		at = a.nodes[at].next
	}
	a.nodes[i].key = delay
	if at == nilNode {
		a.pushBack(h, i)
		return
	}
	a.nodes[at].key -= delay
	a.insertBefore(h, i, at)
}

// removeDelta unlinks a node from a delta list, folding its remaining delay
// into the node after it.
func (a *nodeArena) removeDelta(h *listHead, i uint16) {
	next := a.nodes[i].next
	if next != nilNode {
		a.nodes[next].key += a.nodes[i].key
	}
	a.remove(h, i)
}

func (a *nodeArena) insertBefore(h *listHead, i, at uint16) {
	nd := &a.nodes[i]
	prev := a.nodes[at].prev
	nd.prev = prev
	nd.next = at
	a.nodes[at].prev = i
	if prev != nilNode {
		a.nodes[prev].next = i
	} else {
		h.first = i
	}
	h.n++
}

func (a *nodeArena) remove(h *listHead, i uint16) {
	nd := &a.nodes[i]
	if nd.prev != nilNode {
		a.nodes[nd.prev].next = nd.next
	} else {
		h.first = nd.next
	}
	if nd.next != nilNode {
		a.nodes[nd.next].prev = nd.prev
	} else {
		h.last = nd.prev
	}
	nd.next = nilNode
	nd.prev = nilNode
	h.n--
}

func (a *nodeArena) popFront(h *listHead) *Task {
	i := h.first
	if i == nilNode {
		return nil
	}
	a.remove(h, i)
	return a.nodes[i].owner
}
