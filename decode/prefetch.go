package decode

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Prefetcher decodes on a background goroutine into a channel of MaxQueue
// frames. It produces CPU payloads only; uploads stay on the caller's
// goroutine.
//
// While running, the goroutine owns the producer. Stop it before seeking.
type Prefetcher struct {
	producer *Producer

	mu      sync.Mutex
	frames  chan *Frame
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	peeked  *Frame
	running bool
}

// NewPrefetcher returns a stopped prefetcher over p.
func NewPrefetcher(p *Producer) *Prefetcher {
	return &Prefetcher{producer: p}
}

// Start launches the decode goroutine. Frames already queued in the
// producer move to the channel first, so they are ready immediately.
// Start on a running prefetcher is a no-op.
func (pf *Prefetcher) Start() {
	pf.StartContext(context.Background())
}

// StartContext is Start with a parent context; cancelling it stops the
// goroutine.
func (pf *Prefetcher) StartContext(parent context.Context) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.running {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	q := pf.producer.Queue()
	frames := make(chan *Frame, max(q.Cap(), q.Len()))
	for f := q.Pop(); f != nil; f = q.Pop() {
		frames <- f
	}
	done := make(chan struct{})
	pf.frames, pf.cancel, pf.done = frames, cancel, done
	pf.err, pf.peeked = nil, nil
	pf.running = true

	go pf.run(ctx, frames, done)
}

func (pf *Prefetcher) run(ctx context.Context, frames chan<- *Frame, done chan<- struct{}) {
	defer close(done)
	defer close(frames)

	send := func(f *Frame) bool {
		select {
		case frames <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for ctx.Err() == nil {
		f, err := pf.producer.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			pf.mu.Lock()
			pf.err = err
			pf.mu.Unlock()
			return
		}
		if !send(f) {
			return
		}
	}
}

// TryNext returns the next decoded frame without blocking. It reports
// false when no frame is ready.
func (pf *Prefetcher) TryNext() (*Frame, bool) {
	if f := pf.peeked; f != nil {
		pf.peeked = nil
		return f, true
	}
	if pf.frames == nil {
		return nil, false
	}
	select {
	case f, ok := <-pf.frames:
		return f, ok && f != nil
	default:
		return nil, false
	}
}

// Peek returns the next frame without consuming it, or nil when none is
// ready.
func (pf *Prefetcher) Peek() *Frame {
	if pf.peeked == nil {
		pf.peeked, _ = pf.TryNext()
	}
	return pf.peeked
}

// Next blocks until a frame is decoded, the stream ends (io.EOF) or ctx is
// done.
func (pf *Prefetcher) Next(ctx context.Context) (*Frame, error) {
	if f := pf.peeked; f != nil {
		pf.peeked = nil
		return f, nil
	}
	if pf.frames == nil {
		return nil, io.EOF
	}
	select {
	case f, ok := <-pf.frames:
		if !ok {
			if err := pf.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the decode error that stopped the goroutine, if any.
func (pf *Prefetcher) Err() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.err
}

// Running reports whether the goroutine is active.
func (pf *Prefetcher) Running() bool {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.running
}

// Stop cancels the goroutine and waits for it to exit. Undelivered frames
// are discarded.
func (pf *Prefetcher) Stop() {
	pf.mu.Lock()
	if !pf.running {
		pf.mu.Unlock()
		return
	}
	cancel, done, frames := pf.cancel, pf.done, pf.frames
	pf.running = false
	pf.mu.Unlock()

	cancel()
	for range frames {
	}
	<-done

	pf.mu.Lock()
	pf.frames, pf.peeked = nil, nil
	pf.mu.Unlock()
}
