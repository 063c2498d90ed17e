package decode

import (
	"errors"
	"io"
	"math"
	"time"

	"github.com/gogpu/vidfx/backend"
	"github.com/gogpu/vidfx/internal/cache"
)

// Player drives a Producer at its frame rate. Update is called once per
// redraw and returns the frame to show.
//
// A Player is not safe for concurrent use.
type Player struct {
	producer *Producer
	clock    *Clock
	prefetch *Prefetcher

	playing  bool
	dragging bool

	// current is the frame on screen.
	current *Frame

	// scrub holds recently shown frames by number. During a drag a seek to
	// a cached frame only swaps current and defers the container seek to
	// pending.
	scrub      *cache.Cache[int64, *Frame]
	pending    int64
	hasPending bool

	now func() time.Time
}

// NewPlayer returns a playing Player over p. The producer should already be
// pre-buffered.
func NewPlayer(p *Producer) *Player {
	return &Player{
		producer: p,
		clock:    NewClock(p.FPS()),
		playing:  true,
		now:      time.Now,
	}
}

// Producer returns the underlying producer.
func (pl *Player) Producer() *Producer { return pl.producer }

// EnablePrefetch moves decoding to a background goroutine. The producer must
// not be used directly while prefetching; Seek and Close stop and restart
// the goroutine as needed.
func (pl *Player) EnablePrefetch() {
	if pl.prefetch != nil {
		return
	}
	pl.prefetch = NewPrefetcher(pl.producer)
	pl.prefetch.Start()
}

// Prefetching reports whether decoding runs in the background.
func (pl *Player) Prefetching() bool { return pl.prefetch != nil }

// EnableScrubCache keeps the last n shown frames. While dragging, Seek to
// one of them shows it at once; the container is repositioned at EndSeek or
// Play. A size below 1 disables the cache.
func (pl *Player) EnableScrubCache(n int) {
	if n < 1 {
		pl.scrub = nil
		return
	}
	pl.scrub = cache.New[int64, *Frame](n)
}

// ScrubStats returns the scrub cache counters, or zero stats when the cache
// is disabled.
func (pl *Player) ScrubStats() cache.Stats {
	if pl.scrub == nil {
		return cache.Stats{}
	}
	return pl.scrub.Stats()
}

// show makes f the frame on screen.
func (pl *Player) show(f *Frame) {
	pl.current = f
	if pl.scrub != nil {
		pl.scrub.Set(f.Number, f)
	}
}

// Update returns the frame to present at this tick.
//
// While playing, a frame is released when the clock says one is due: the
// queue front is popped and the queue is topped up with one more decoded
// frame. Between releases the queue front is returned without popping it,
// giving one frame of look-ahead. While paused, a copy of the queue front
// is returned. The frame on screen stands in when the queue is empty, and
// during a drag that a scrub cache hit has put on screen.
//
// A decode error while topping up is returned together with the released
// frame, which remains valid.
func (pl *Player) Update() (*Frame, error) {
	if !pl.playing {
		f := pl.front()
		if f == nil || pl.hasPending {
			f = pl.current
		}
		if f == nil {
			return nil, nil
		}
		return f.Clone(), nil
	}

	if !pl.clock.ShouldRelease(pl.now()) {
		if f := pl.front(); f != nil {
			return f, nil
		}
		return pl.current, nil
	}

	f, err := pl.release()
	if f != nil {
		pl.show(f)
	}
	if pl.current == nil {
		return nil, err
	}
	return pl.current, err
}

// front peeks at the next frame without consuming it.
func (pl *Player) front() *Frame {
	if pl.prefetch != nil {
		return pl.prefetch.Peek()
	}
	return pl.producer.Queue().Front()
}

// release pops the next frame and tops up the queue.
func (pl *Player) release() (*Frame, error) {
	if pl.prefetch != nil {
		f, ok := pl.prefetch.TryNext()
		if !ok {
			return nil, pl.prefetch.Err()
		}
		return f, nil
	}

	q := pl.producer.Queue()
	f := q.Pop()
	if f == nil {
		// Underrun: decode synchronously.
		if _, err := pl.producer.DecodeNextFrame(); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		f = q.Pop()
	}
	if _, err := pl.producer.DecodeNextFrame(); err != nil && !errors.Is(err, io.EOF) {
		backend.Logger().Warn("decode: top-up failed", "frame", pl.producer.CurrentFrame(), "error", err)
		return f, err
	}
	return f, nil
}

// Play resumes playback. The next Update releases a frame immediately. A
// seek deferred by the scrub cache is completed first.
func (pl *Player) Play() {
	if err := pl.settle(); err != nil {
		backend.Logger().Warn("decode: deferred seek failed", "frame", pl.pending, "error", err)
	}
	pl.playing = true
	pl.dragging = false
	pl.clock.Reset()
}

// Pause stops releasing frames.
func (pl *Player) Pause() { pl.playing = false }

// TogglePlay switches between play and pause.
func (pl *Player) TogglePlay() {
	if pl.playing {
		pl.Pause()
	} else {
		pl.Play()
	}
}

// IsPlaying reports whether playback is running.
func (pl *Player) IsPlaying() bool { return pl.playing }

// Dragging reports whether a seek drag is in progress.
func (pl *Player) Dragging() bool { return pl.dragging }

// BeginSeek starts a seek drag: playback pauses and queued frames are
// dropped.
func (pl *Player) BeginSeek() {
	pl.dragging = true
	pl.playing = false
	pl.stopPrefetch()
	pl.producer.Queue().Clear()
	pl.startPrefetch()
}

// EndSeek finishes a seek drag and completes a seek deferred by the scrub
// cache. Playback stays paused until Play.
func (pl *Player) EndSeek() error {
	pl.dragging = false
	return pl.settle()
}

// Seek moves to frame. The target frame becomes the frame on screen.
func (pl *Player) Seek(frame int64) error {
	if pl.dragging && pl.scrub != nil {
		if f, ok := pl.scrub.Get(frame); ok {
			pl.current = f
			pl.pending, pl.hasPending = frame, true
			return nil
		}
	}
	pl.hasPending = false
	pl.stopPrefetch()
	defer pl.startPrefetch()

	if err := pl.producer.SeekToFrame(frame); err != nil {
		return err
	}
	return pl.afterSeek()
}

// SeekToTime moves to the frame at the given number of seconds.
func (pl *Player) SeekToTime(seconds float64) error {
	if pl.dragging && pl.scrub != nil && seconds >= 0 && !math.IsInf(seconds, 1) {
		return pl.Seek(int64(math.Round(seconds * pl.producer.FPS())))
	}
	pl.hasPending = false
	pl.stopPrefetch()
	defer pl.startPrefetch()

	if err := pl.producer.SeekToTime(seconds); err != nil {
		return err
	}
	return pl.afterSeek()
}

// settle performs a seek deferred by the scrub cache.
func (pl *Player) settle() error {
	if !pl.hasPending {
		return nil
	}
	pl.hasPending = false
	pl.stopPrefetch()
	defer pl.startPrefetch()

	if err := pl.producer.SeekToFrame(pl.pending); err != nil {
		return err
	}
	return pl.afterSeek()
}

// afterSeek shows the seek target, which stays at the queue front so the
// next release presents it.
func (pl *Player) afterSeek() error {
	if f := pl.producer.Queue().Front(); f != nil {
		pl.show(f)
	}
	pl.clock.Reset()
	return nil
}

// Current returns the frame on screen, or nil before the first release.
func (pl *Player) Current() *Frame { return pl.current }

// CurrentFrame returns the index of the frame on screen, or the start frame
// before the first release.
func (pl *Player) CurrentFrame() int64 {
	if pl.current == nil {
		return pl.producer.StartFrame()
	}
	return pl.current.Number
}

// CurrentTime returns the position of the frame on screen in seconds.
func (pl *Player) CurrentTime() float64 {
	return float64(pl.CurrentFrame()) / pl.producer.FPS()
}

func (pl *Player) stopPrefetch() {
	if pl.prefetch != nil {
		pl.prefetch.Stop()
	}
}

func (pl *Player) startPrefetch() {
	if pl.prefetch != nil {
		pl.prefetch.Start()
	}
}

// Close stops prefetching and closes the producer.
func (pl *Player) Close() error {
	pl.stopPrefetch()
	pl.prefetch = nil
	if pl.scrub != nil {
		pl.scrub.Clear()
	}
	return pl.producer.Close()
}
