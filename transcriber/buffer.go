package transcriber

// BufferCapacity is how many 200ms audio blocks survive an outage (~30s).
const BufferCapacity = 150

// ringBuffer holds unsent audio blocks, evicting the oldest when full.
type ringBuffer struct {
	items [][]byte
	head  int
	size  int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{items: make([][]byte, capacity)}
}

// push appends b and reports whether the oldest block was evicted for it.
func (r *ringBuffer) push(b []byte) bool {
	if len(r.items) == 0 {
		return true
	}
	if r.size == len(r.items) {
		r.items[r.head] = b
		r.head = (r.head + 1) % len(r.items)
		return true
	}
	r.items[(r.head+r.size)%len(r.items)] = b
	r.size++
	return false
}

func (r *ringBuffer) peek() ([]byte, bool) {
	if r.size == 0 {
		return nil, false
	}
	return r.items[r.head], true
}

func (r *ringBuffer) pop() {
	if r.size == 0 {
		return
	}
	r.items[r.head] = nil
	r.head = (r.head + 1) % len(r.items)
	r.size--
}

func (r *ringBuffer) buffered() int { return r.size }
