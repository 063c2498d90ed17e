package decode

// MaxQueue bounds the presentation queue.
const MaxQueue = 10

// Queue is the bounded FIFO between the producer and the presentation
// clock. Frames are kept in non-decreasing timestamp order.
type Queue struct {
	frames []*Frame
	limit  int
}

// NewQueue returns an empty queue holding at most limit frames. A limit
// below 1 selects MaxQueue.
func NewQueue(limit int) *Queue {
	if limit < 1 {
		limit = MaxQueue
	}
	return &Queue{frames: make([]*Frame, 0, limit), limit: limit}
}

// Push appends f. It reports false, leaving the queue unchanged, when the
// queue is full or f would break timestamp order.
func (q *Queue) Push(f *Frame) bool {
	if f == nil || len(q.frames) >= q.limit {
		return false
	}
	if n := len(q.frames); n > 0 && f.PTS < q.frames[n-1].PTS {
		return false
	}
	q.frames = append(q.frames, f)
	return true
}

// Pop removes and returns the front frame, or nil when empty.
func (q *Queue) Pop() *Frame {
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	if len(q.frames) == 0 {
		q.frames = q.frames[:0:0]
	}
	return f
}

// Front returns the front frame without removing it, or nil when empty.
func (q *Queue) Front() *Frame {
	if len(q.frames) == 0 {
		return nil
	}
	return q.frames[0]
}

// Clear drops all queued frames.
func (q *Queue) Clear() {
	clear(q.frames)
	q.frames = q.frames[:0]
}

// Len returns the number of queued frames.
func (q *Queue) Len() int { return len(q.frames) }

// Cap returns the queue limit.
func (q *Queue) Cap() int { return q.limit }

// Full reports whether the queue is at its limit.
func (q *Queue) Full() bool { return len(q.frames) >= q.limit }
