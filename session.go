package vidfx

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gogpu/vidfx/decode"
	"github.com/gogpu/vidfx/render"
)

// nextVideoID hands out pipeline slots. Ids are never reused within a
// process, so a closed session's GPU entry can't be confused with a new one.
var nextVideoID atomic.Uint64

// Session is one playing video: a frame producer, its player, and the
// pipeline slot its frames are uploaded to.
//
// A Session is driven from the render loop:
//
//	s, err := vidfx.Open(ctx, "clip.mp4")
//	...
//	// every redraw
//	if _, err := s.Update(); err != nil { ... }
//	r.BeginFrame()
//	if err := s.Render(r, bounds); err != nil { ... }
//	_ = r.Draw(encoder, view, clip, s.VideoID())
//
// A Session is not safe for concurrent use.
type Session struct {
	id      uuid.UUID
	videoID uint64
	path    string

	producer *decode.Producer
	player   *decode.Player
	log      *slog.Logger

	// frame is the frame returned by the last Update.
	frame *decode.Frame

	// uploaded identifies the frame last uploaded and where.
	uploaded  frameKey
	renderers map[*render.GPURenderer]struct{}

	closed bool
}

// frameKey identifies an uploaded frame. Looping playback shifts
// timestamps, so number and PTS together are unique within a session.
type frameKey struct {
	renderer *render.GPURenderer
	number   int64
	pts      int64
}

// Open opens path with the registered decode backends and returns a
// playing session, pre-buffered up to the queue size.
func Open(ctx context.Context, path string, opts ...Option) (*Session, error) {
	o := collect(opts)
	p, err := decode.Open(ctx, path, o.start, o.end, o.decodeOptions()...)
	if err != nil {
		return nil, fmt.Errorf("vidfx: open %s: %w", path, err)
	}
	s, err := newSession(path, p, o)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

// NewSession wraps an already opened producer, for callers that build
// producers over their own backend.Demuxer. Only the playback options
// (WithPrefetch, WithScrubCache) apply; decode options were fixed when p was created.
func NewSession(p *decode.Producer, opts ...Option) (*Session, error) {
	return newSession("", p, collect(opts))
}

func newSession(path string, p *decode.Producer, o options) (*Session, error) {
	if err := p.PreBuffer(); err != nil {
		return nil, fmt.Errorf("vidfx: pre-buffer: %w", err)
	}
	s := &Session{
		id:        uuid.New(),
		videoID:   nextVideoID.Add(1),
		path:      path,
		producer:  p,
		player:    decode.NewPlayer(p),
		renderers: make(map[*render.GPURenderer]struct{}),
	}
	s.log = Logger().With("session", s.id.String())
	if o.prefetch {
		s.player.EnablePrefetch()
	}
	s.player.EnableScrubCache(o.scrubCache)
	s.log.Info("vidfx: session opened",
		"path", path,
		"video_id", s.videoID,
		"frames", p.TotalFrames(),
		"fps", p.FPS(),
		"prefetch", o.prefetch,
		"scrub_cache", o.scrubCache,
	)
	return s, nil
}

// ID returns the session's correlation id, attached to its log records.
func (s *Session) ID() uuid.UUID { return s.id }

// VideoID returns the pipeline slot the session renders into.
func (s *Session) VideoID() uint64 { return s.videoID }

// Path returns the file the session was opened from.
func (s *Session) Path() string { return s.path }

// Producer returns the underlying frame producer.
func (s *Session) Producer() *decode.Producer { return s.producer }

// Update advances playback and returns the frame to show. The frame is
// retained for the next Render. A decode error after a successful release
// is returned together with the frame.
func (s *Session) Update() (*decode.Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	f, err := s.player.Update()
	if f != nil {
		s.frame = f
	}
	if err != nil {
		s.log.Warn("vidfx: update", "frame", s.player.CurrentFrame(), "error", err)
	}
	return f, err
}

// Frame returns the frame returned by the last Update.
func (s *Session) Frame() *decode.Frame { return s.frame }

// Render uploads the current frame to r if it changed since the last
// upload there, and prepares it for this redraw at bounds. Call it after
// r.BeginFrame and before r.Draw with VideoID.
func (s *Session) Render(r *render.GPURenderer, bounds render.Bounds) error {
	if s.closed {
		return ErrClosed
	}
	if s.frame == nil {
		s.frame = s.player.Current()
	}
	if s.frame == nil {
		if _, err := s.Update(); err != nil && s.frame == nil {
			return err
		}
		if s.frame == nil {
			return fmt.Errorf("%w: no frame decoded", ErrDecode)
		}
	}
	f := s.frame
	key := frameKey{renderer: r, number: f.Number, pts: f.PTS}
	if key != s.uploaded {
		if err := r.Upload(s.videoID, f.Width, f.Height, f.Data, true); err != nil {
			return err
		}
		s.uploaded = key
		s.renderers[r] = struct{}{}
		s.log.Debug("vidfx: frame uploaded", "frame", f.Number, "pts", f.PTS)
	}
	return r.Prepare(s.videoID, bounds)
}

// Play resumes playback.
func (s *Session) Play() { s.player.Play() }

// Pause stops playback; Update returns copies of the next queued frame.
func (s *Session) Pause() { s.player.Pause() }

// TogglePlay switches between playing and paused.
func (s *Session) TogglePlay() { s.player.TogglePlay() }

// IsPlaying reports whether playback is running.
func (s *Session) IsPlaying() bool { return s.player.IsPlaying() }

// BeginSeek starts a seek drag: playback pauses and queued frames are
// dropped until Seek and EndSeek.
func (s *Session) BeginSeek() { s.player.BeginSeek() }

// EndSeek finishes a seek drag. With a scrub cache, this is when the
// decoder catches up with the frame on screen.
func (s *Session) EndSeek() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.player.EndSeek(); err != nil {
		return err
	}
	s.frame = s.player.Current()
	return nil
}

// Dragging reports whether a seek drag is in progress.
func (s *Session) Dragging() bool { return s.player.Dragging() }

// Seek moves to frame, which becomes the frame on screen.
func (s *Session) Seek(frame int64) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.player.Seek(frame); err != nil {
		return err
	}
	s.frame = s.player.Current()
	s.log.Debug("vidfx: seek", "frame", frame)
	return nil
}

// SeekToTime moves to the frame at seconds.
func (s *Session) SeekToTime(seconds float64) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.player.SeekToTime(seconds); err != nil {
		return err
	}
	s.frame = s.player.Current()
	s.log.Debug("vidfx: seek", "seconds", seconds)
	return nil
}

// SetLooping sets whether playback restarts at the start frame.
func (s *Session) SetLooping(looping bool) { s.producer.SetLooping(looping) }

// Looping reports whether playback loops.
func (s *Session) Looping() bool { return s.producer.Looping() }

// CurrentFrame returns the index of the frame on screen.
func (s *Session) CurrentFrame() int64 { return s.player.CurrentFrame() }

// CurrentTime returns the position of the frame on screen in seconds.
func (s *Session) CurrentTime() float64 { return s.player.CurrentTime() }

// EndFrame returns the last frame of the playback range.
func (s *Session) EndFrame() int64 { return s.producer.EndFrame() }

// TotalFrames returns the number of frames in the stream.
func (s *Session) TotalFrames() int64 { return s.producer.TotalFrames() }

// Duration returns the stream length in seconds.
func (s *Session) Duration() float64 { return s.producer.TotalTime() }

// FPS returns the playback frame rate.
func (s *Session) FPS() float64 { return s.producer.FPS() }

// Size returns the dimensions of produced frames.
func (s *Session) Size() (width, height int) {
	return s.producer.Width(), s.producer.Height()
}

// Close stops playback, releases the decoder and marks the session's GPU
// entries not alive in every renderer it uploaded to. The entries are
// freed at each renderer's next Prepare. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for r := range s.renderers {
		r.Release(s.videoID)
	}
	s.renderers = nil
	s.frame = nil
	s.log.Info("vidfx: session closed", "video_id", s.videoID)
	return s.player.Close()
}
