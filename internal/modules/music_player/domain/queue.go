package domain

// Queue is the FIFO of pending track requests for one guild. Order is
// insertion order except for explicit removal by position. Queue is not
// safe for concurrent use; each guild player serializes access.
type Queue struct {
	items []*TrackRequest
}

// NewQueue creates an empty Queue.
func NewQueue() Queue {
	return Queue{items: make([]*TrackRequest, 0)}
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	return len(q.items)
}

// IsEmpty returns true if nothing is queued.
func (q *Queue) IsEmpty() bool {
	return len(q.items) == 0
}

// Append adds a request to the back of the queue.
func (q *Queue) Append(t *TrackRequest) {
	q.items = append(q.items, t)
}

// PushFront puts a request at the head of the queue, ahead of everything
// queued. Used to replay the current track when looping is enabled.
func (q *Queue) PushFront(t *TrackRequest) {
	q.items = append([]*TrackRequest{t}, q.items...)
}

// PopFront removes and returns the head of the queue, or nil if empty.
func (q *Queue) PopFront() *TrackRequest {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

// At returns the request at the given position without removing it, or nil
// if the position is out of bounds.
func (q *Queue) At(position int) *TrackRequest {
	if position < 0 || position >= len(q.items) {
		return nil
	}
	return q.items[position]
}

// RemoveAt removes and returns the request at the given position. Remaining
// entries keep their relative order. Returns nil if the position is out of
// bounds, leaving the queue unchanged.
func (q *Queue) RemoveAt(position int) *TrackRequest {
	if position < 0 || position >= len(q.items) {
		return nil
	}
	t := q.items[position]
	q.items = append(q.items[:position], q.items[position+1:]...)
	return t
}

// Snapshot returns a copy of the queue contents in order.
func (q *Queue) Snapshot() []*TrackRequest {
	out := make([]*TrackRequest, len(q.items))
	copy(out, q.items)
	return out
}

// Clear discards all queued requests and returns how many were dropped.
func (q *Queue) Clear() int {
	n := len(q.items)
	q.items = q.items[:0]
	return n
}
