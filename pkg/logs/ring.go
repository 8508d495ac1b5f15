package logs

// ring is a fixed-capacity FIFO of entries. It is not safe for concurrent
// use; Buffer guards it.
type ring struct {
	items []LogEntry
	head  int // index of the oldest entry
	size  int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{items: make([]LogEntry, capacity)}
}

func (r *ring) capacity() int { return len(r.items) }

func (r *ring) len() int { return r.size }

// push appends e. When full, the oldest entry is evicted and returned.
func (r *ring) push(e LogEntry) (evicted LogEntry, ok bool) {
	if r.size == len(r.items) {
		evicted = r.items[r.head]
		r.items[r.head] = e
		r.head = (r.head + 1) % len(r.items)
		return evicted, true
	}
	r.items[(r.head+r.size)%len(r.items)] = e
	r.size++
	return LogEntry{}, false
}

// at returns the i-th oldest entry.
func (r *ring) at(i int) LogEntry {
	return r.items[(r.head+i)%len(r.items)]
}

// slice copies the contents oldest first.
func (r *ring) slice() []LogEntry {
	out := make([]LogEntry, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.at(i)
	}
	return out
}

func (r *ring) reset() {
	for i := range r.items {
		r.items[i] = LogEntry{}
	}
	r.head = 0
	r.size = 0
}
