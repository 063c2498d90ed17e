package vidfx

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"
	"github.com/google/uuid"

	"github.com/gogpu/vidfx/backend"
	"github.com/gogpu/vidfx/decode"
	"github.com/gogpu/vidfx/render"
)

// stripeDemuxer serves I420 frames whose luma bytes equal the frame index.
// Every frame is a keyframe.
type stripeDemuxer struct {
	info backend.StreamInfo
	next int64
}

func newStripeDemuxer(w, h int, frames int64) *stripeDemuxer {
	return &stripeDemuxer{info: backend.StreamInfo{
		Width:     w,
		Height:    h,
		FrameRate: backend.Rational{Num: 30, Den: 1},
		TimeBase:  backend.Rational{Num: 1, Den: 30},
		Frames:    frames,
		Codec:     "rawvideo",
	}}
}

func (d *stripeDemuxer) BestVideoStream() (backend.StreamInfo, error) { return d.info, nil }

func (d *stripeDemuxer) ReadPacket() (backend.Packet, error) {
	if d.next >= d.info.Frames {
		return backend.Packet{}, io.EOF
	}
	w, h := d.info.Width, d.info.Height
	data := make([]byte, backend.I420Size(w, h))
	for i := range data {
		data[i] = 128
	}
	for i := 0; i < w*h; i++ {
		data[i] = byte(d.next)
	}
	pkt := backend.Packet{PTS: d.next, Data: data}
	d.next++
	return pkt, nil
}

func (d *stripeDemuxer) SeekRange(_, ts, _ int64) error {
	d.next = ts
	return nil
}

func (d *stripeDemuxer) OpenDecoder(s backend.StreamInfo) (backend.Decoder, error) {
	return backend.NewRawDecoder(s.Width, s.Height)
}

func (d *stripeDemuxer) Close() error { return nil }

func newTestSession(t *testing.T, frames int64, opts ...Option) *Session {
	t.Helper()
	p, err := decode.NewProducer(newStripeDemuxer(16, 8, frames), 0, decode.EndOfStream)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	s, err := NewSession(p, opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRenderer(t *testing.T, opts ...Option) (*render.GPURenderer, *render.HeadlessDevice) {
	t.Helper()
	d, err := render.OpenHeadless(gputypes.BackendEmpty)
	if err != nil {
		t.Fatalf("OpenHeadless: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	r, err := NewRenderer(d, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r, d
}

func TestSessionQueries(t *testing.T) {
	s := newTestSession(t, 20)

	if s.ID() == uuid.Nil {
		t.Error("session has no id")
	}
	if s.VideoID() == 0 {
		t.Error("video id 0 is reserved")
	}
	if other := newTestSession(t, 5); other.VideoID() == s.VideoID() {
		t.Error("two sessions share a video id")
	}
	if s.TotalFrames() != 20 || s.EndFrame() != 19 {
		t.Errorf("frames = %d, end = %d", s.TotalFrames(), s.EndFrame())
	}
	if s.FPS() != 30 {
		t.Errorf("fps = %v", s.FPS())
	}
	if math.Abs(s.Duration()-20.0/30) > 1e-9 {
		t.Errorf("duration = %v", s.Duration())
	}
	if w, h := s.Size(); w != 16 || h != 8 {
		t.Errorf("size = %dx%d", w, h)
	}
	if !s.IsPlaying() {
		t.Error("new session is not playing")
	}
}

func TestSessionControls(t *testing.T) {
	s := newTestSession(t, 30)

	s.Pause()
	f, err := s.Update()
	if err != nil || f == nil {
		t.Fatalf("Update = %v, %v", f, err)
	}
	if f.Number != 0 || f.Data[0] != 0 {
		t.Errorf("paused first frame = %d (luma %d), want 0", f.Number, f.Data[0])
	}

	if err := s.Seek(12); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if s.CurrentFrame() != 12 || s.Frame() == nil || s.Frame().Data[0] != 12 {
		t.Errorf("after Seek(12): current = %d", s.CurrentFrame())
	}
	if err := s.SeekToTime(0.5); err != nil {
		t.Fatalf("SeekToTime: %v", err)
	}
	if s.CurrentFrame() != 15 {
		t.Errorf("after SeekToTime(0.5): current = %d, want 15", s.CurrentFrame())
	}
	if math.Abs(s.CurrentTime()-0.5) > 1e-9 {
		t.Errorf("current time = %v", s.CurrentTime())
	}
	if err := s.Seek(99); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("Seek(99) err = %v, want ErrInvalidTimestamp", err)
	}

	s.BeginSeek()
	if !s.Dragging() || s.IsPlaying() {
		t.Error("BeginSeek must pause and start dragging")
	}
	if err := s.EndSeek(); err != nil {
		t.Fatal(err)
	}
	if s.Dragging() {
		t.Error("EndSeek left dragging set")
	}
	s.TogglePlay()
	if !s.IsPlaying() {
		t.Error("TogglePlay did not resume")
	}

	s.SetLooping(true)
	if !s.Looping() {
		t.Error("SetLooping(true) not applied")
	}
}

func TestSessionClose(t *testing.T) {
	s := newTestSession(t, 10)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.Update(); !errors.Is(err, ErrClosed) {
		t.Errorf("Update after Close: err = %v", err)
	}
	if err := s.Seek(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Seek after Close: err = %v", err)
	}
}

func TestSessionPrefetch(t *testing.T) {
	s := newTestSession(t, 40, WithPrefetch(true))
	s.Pause()
	f, err := s.Update()
	if err != nil || f == nil || f.Number != 0 {
		t.Fatalf("Update = %+v, %v", f, err)
	}
	if err := s.Seek(20); err != nil {
		t.Fatal(err)
	}
	if s.Frame().Number != 20 {
		t.Errorf("frame after seek = %d", s.Frame().Number)
	}
}

func TestSessionScrubCache(t *testing.T) {
	s := newTestSession(t, 30, WithScrubCache(4))
	s.Pause()
	if err := s.Seek(5); err != nil {
		t.Fatal(err)
	}
	s.BeginSeek()
	if err := s.Seek(9); err != nil {
		t.Fatal(err)
	}
	if err := s.Seek(5); err != nil {
		t.Fatal(err)
	}
	if s.Frame().Number != 5 {
		t.Errorf("frame = %d, want the cached 5", s.Frame().Number)
	}
	if st := s.player.ScrubStats(); st.Hits != 1 {
		t.Errorf("scrub stats = %+v, want one hit", st)
	}
	if err := s.EndSeek(); err != nil {
		t.Fatal(err)
	}
	if s.CurrentFrame() != 5 || s.Frame().Data[0] != 5 {
		t.Errorf("after EndSeek: frame %d", s.CurrentFrame())
	}
}

func TestSessionRender(t *testing.T) {
	r, d := newTestRenderer(t, WithUpscale(0.1, 2), WithComparison(0.3))
	if got, want := r.Effects(), []string{render.EffectUpscale, render.EffectComparison}; !slices.Equal(got, want) {
		t.Fatalf("effects = %v, want %v", got, want)
	}
	if on, pos := r.Comparison(); !on || pos != 0.3 {
		t.Errorf("comparison = %v, %v", on, pos)
	}

	s := newTestSession(t, 10)
	device, _, err := render.HALObjects(d)
	if err != nil {
		t.Fatal(err)
	}
	target, err := render.NewTextureTarget(device, 32, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer target.Destroy()

	for i := 0; i < 3; i++ {
		if _, err := s.Update(); err != nil {
			t.Fatal(err)
		}
		r.BeginFrame()
		if err := s.Render(r, target.Bounds()); err != nil {
			t.Fatalf("Render #%d: %v", i, err)
		}
		if err := r.RenderToTexture(target, s.VideoID()); err != nil {
			t.Fatalf("RenderToTexture #%d: %v", i, err)
		}
	}

	// Closing releases the slot; the next Prepare of another video frees it.
	other := newTestSession(t, 10)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Render(r, target.Bounds()); !errors.Is(err, ErrClosed) {
		t.Errorf("Render after Close: err = %v", err)
	}
	r.BeginFrame()
	if err := other.Render(r, target.Bounds()); err != nil {
		t.Fatal(err)
	}
	if err := r.Prepare(s.VideoID(), target.Bounds()); !errors.Is(err, render.ErrUnknownVideo) {
		t.Errorf("closed session still on the GPU: err = %v", err)
	}
}

func TestNewRenderer(t *testing.T) {
	r, _ := newTestRenderer(t)
	if r.Format() != render.TargetFormat {
		t.Errorf("format = %v, want the headless surface format", r.Format())
	}
	if len(r.Effects()) != 0 {
		t.Errorf("effects = %v with no options", r.Effects())
	}

	r2, _ := newTestRenderer(t, WithFormat(gputypes.TextureFormatRGBA8Unorm))
	if r2.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("format = %v, want the WithFormat value", r2.Format())
	}

	if _, err := NewRenderer(render.NullDeviceHandle{}); !errors.Is(err, ErrGPU) {
		t.Errorf("null handle: err = %v, want ErrGPU", err)
	}
}

func TestOpenErrors(t *testing.T) {
	// No backend is linked into this test binary.
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "clip.mp4"))
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
}
