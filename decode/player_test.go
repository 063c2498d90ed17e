package decode

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// newTestPlayer returns a pre-buffered player on a fake clock that
// advances step per Update.
func newTestPlayer(t *testing.T, frames int, start, end int64, step time.Duration) *Player {
	t.Helper()
	p := newTestProducer(t, newFakeDemuxer(8, 8, frames), start, end)
	if err := p.PreBuffer(); err != nil {
		t.Fatal(err)
	}
	pl := NewPlayer(p)
	now := time.Unix(0, 0)
	pl.now = func() time.Time {
		n := now
		now = now.Add(step)
		return n
	}
	return pl
}

func TestPlayerHoldsBetweenReleases(t *testing.T) {
	// Ticks at 10ms against a 33ms interval: each frame is shown for
	// several ticks and none is skipped.
	pl := newTestPlayer(t, 30, 0, 29, 10*time.Millisecond)

	var shown []int
	for i := 0; i < 20; i++ {
		f, err := pl.Update()
		if err != nil {
			t.Fatal(err)
		}
		if len(shown) == 0 || shown[len(shown)-1] != lumaOf(f) {
			shown = append(shown, lumaOf(f))
		}
	}
	for i, v := range shown {
		if v != i {
			t.Fatalf("frames shown = %v, want consecutive from 0", shown)
		}
	}
	if len(shown) < 4 || len(shown) > 7 {
		t.Errorf("released %d frames in 200ms at 30 fps", len(shown))
	}
}

func TestPlayerLooksAheadBetweenReleases(t *testing.T) {
	pl := newTestPlayer(t, 30, 0, 29, 10*time.Millisecond)

	f0, err := pl.Update()
	if err != nil || lumaOf(f0) != 0 {
		t.Fatalf("first release = %v, %v", f0, err)
	}
	q := pl.Producer().Queue()
	n := q.Len()

	// 10ms later no frame is due: the front is returned and stays queued.
	f, err := pl.Update()
	if err != nil {
		t.Fatal(err)
	}
	if f != q.Front() {
		t.Error("tick between releases did not return the queue front")
	}
	if lumaOf(f) != 1 {
		t.Errorf("look-ahead frame = %d, want 1", lumaOf(f))
	}
	if q.Len() != n {
		t.Errorf("queue length %d -> %d between releases", n, q.Len())
	}
	if pl.CurrentFrame() != 0 {
		t.Errorf("CurrentFrame() = %d, want the released 0", pl.CurrentFrame())
	}
}

func TestPlayerPause(t *testing.T) {
	pl := newTestPlayer(t, 30, 0, 29, 50*time.Millisecond)

	f0, _ := pl.Update()
	pl.Pause()
	if pl.IsPlaying() {
		t.Fatal("IsPlaying after Pause")
	}
	front := pl.Producer().Queue().Front()
	for i := 0; i < 3; i++ {
		f, err := pl.Update()
		if err != nil {
			t.Fatal(err)
		}
		if lumaOf(f) != lumaOf(f0)+1 {
			t.Fatalf("paused update returned frame %d, want the front %d", lumaOf(f), lumaOf(f0)+1)
		}
		if f == front {
			t.Fatal("paused update must return a copy")
		}
	}

	pl.TogglePlay()
	f1, _ := pl.Update()
	if lumaOf(f1) != lumaOf(f0)+1 {
		t.Errorf("after resume got frame %d, want %d", lumaOf(f1), lumaOf(f0)+1)
	}
}

func TestPlayerSeekDrag(t *testing.T) {
	pl := newTestPlayer(t, 30, 0, 29, 50*time.Millisecond)
	_, _ = pl.Update()

	pl.BeginSeek()
	if pl.IsPlaying() || !pl.Dragging() {
		t.Fatal("BeginSeek must pause and mark dragging")
	}
	if pl.Producer().Queue().Len() != 0 {
		t.Error("BeginSeek must flush the queue")
	}
	for _, frame := range []int64{20, 12} {
		if err := pl.Seek(frame); err != nil {
			t.Fatal(err)
		}
		if pl.CurrentFrame() != frame {
			t.Errorf("CurrentFrame() = %d, want %d", pl.CurrentFrame(), frame)
		}
	}
	if err := pl.EndSeek(); err != nil {
		t.Fatal(err)
	}
	if pl.IsPlaying() || pl.Dragging() {
		t.Error("EndSeek must leave the player paused")
	}
	f, _ := pl.Update()
	if lumaOf(f) != 12 {
		t.Errorf("paused frame after seek = %d, want 12", lumaOf(f))
	}

	// The seek target waits at the queue front for the first release.
	pl.Play()
	f, _ = pl.Update()
	if lumaOf(f) != 12 {
		t.Errorf("first frame after resume = %d, want 12", lumaOf(f))
	}
	f, _ = pl.Update()
	if lumaOf(f) != 13 {
		t.Errorf("second frame after resume = %d, want 13", lumaOf(f))
	}

	if err := pl.Seek(99); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("Seek(99) err = %v", err)
	}
	if err := pl.SeekToTime(0.1); err != nil || pl.CurrentFrame() != 3 {
		t.Errorf("SeekToTime(0.1) = %v, frame %d", err, pl.CurrentFrame())
	}
	if got := pl.CurrentTime(); got != 0.1 {
		t.Errorf("CurrentTime() = %v", got)
	}
}

func TestPlayerScrubCache(t *testing.T) {
	pl := newTestPlayer(t, 30, 0, 29, 50*time.Millisecond)
	pl.EnableScrubCache(8)
	for i := 0; i < 3; i++ {
		if _, err := pl.Update(); err != nil {
			t.Fatal(err)
		}
	}

	pl.BeginSeek()
	for _, frame := range []int64{1, 2, 20, 0} {
		if err := pl.Seek(frame); err != nil {
			t.Fatal(err)
		}
		if pl.CurrentFrame() != frame || lumaOf(pl.Current()) != int(frame) {
			t.Errorf("after Seek(%d): frame %d", frame, pl.CurrentFrame())
		}
		if f, _ := pl.Update(); lumaOf(f) != int(frame) {
			t.Errorf("paused update after Seek(%d) = %d", frame, lumaOf(f))
		}
	}
	st := pl.ScrubStats()
	if st.Hits != 3 || st.Misses != 1 {
		t.Errorf("scrub stats = %+v, want 3 hits and 1 miss", st)
	}

	// The decoder catches up with the cached frame 0 at EndSeek.
	if err := pl.EndSeek(); err != nil {
		t.Fatal(err)
	}
	if pl.CurrentFrame() != 0 {
		t.Errorf("after EndSeek: frame %d, want 0", pl.CurrentFrame())
	}
	pl.Play()
	f, err := pl.Update()
	if err != nil {
		t.Fatal(err)
	}
	if lumaOf(f) != 0 {
		t.Errorf("first frame after resume = %d, want 0", lumaOf(f))
	}

	// Outside a drag the cache is not consulted.
	if err := pl.Seek(2); err != nil {
		t.Fatal(err)
	}
	if pl.ScrubStats().Hits != 3 {
		t.Error("cache consulted outside a drag")
	}

	pl.EnableScrubCache(0)
	if st := pl.ScrubStats(); st.Capacity != 0 || st.Hits != 0 {
		t.Error("disabled cache reports stats")
	}
}

func TestPlayerEnd(t *testing.T) {
	pl := newTestPlayer(t, 30, 0, 2, 50*time.Millisecond)
	var last *Frame
	for i := 0; i < 6; i++ {
		f, err := pl.Update()
		if err != nil {
			t.Fatal(err)
		}
		last = f
	}
	if lumaOf(last) != 2 {
		t.Errorf("player ended on frame %d, want 2", lumaOf(last))
	}
}

func TestPrefetcher(t *testing.T) {
	p := newTestProducer(t, newFakeDemuxer(8, 8, 30), 0, 14)
	if err := p.PreBuffer(); err != nil {
		t.Fatal(err)
	}

	pf := NewPrefetcher(p)
	pf.Start()
	defer pf.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for want := 0; want <= 14; want++ {
		f, err := pf.Next(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", want, err)
		}
		if lumaOf(f) != want {
			t.Fatalf("frame = %d, want %d", lumaOf(f), want)
		}
	}
	if _, err := pf.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("after range err = %v, want io.EOF", err)
	}
	if err := pf.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestPrefetcherRestart(t *testing.T) {
	p := newTestProducer(t, newFakeDemuxer(8, 8, 30), 0, 29)
	pf := NewPrefetcher(p)
	pf.Start()
	if !pf.Running() {
		t.Fatal("not running after Start")
	}
	pf.Stop()
	if pf.Running() {
		t.Fatal("running after Stop")
	}

	if err := p.SeekToFrame(20); err != nil {
		t.Fatal(err)
	}
	pf.Start()
	defer pf.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := pf.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lumaOf(f) != 20 {
		t.Errorf("first frame after restart = %d, want 20", lumaOf(f))
	}
}

func TestPlayerPrefetch(t *testing.T) {
	pl := newTestPlayer(t, 30, 0, 29, 50*time.Millisecond)
	pl.EnablePrefetch()
	defer pl.Close()
	if !pl.Prefetching() {
		t.Fatal("Prefetching() = false")
	}

	// Queued frames are handed over first, so the first releases never
	// wait on the goroutine.
	for want := 0; want < 5; want++ {
		f, err := pl.Update()
		if err != nil {
			t.Fatal(err)
		}
		if lumaOf(f) != want {
			t.Fatalf("frame = %d, want %d", lumaOf(f), want)
		}
	}

	if err := pl.Seek(25); err != nil {
		t.Fatal(err)
	}
	if pl.CurrentFrame() != 25 {
		t.Errorf("CurrentFrame() after seek = %d", pl.CurrentFrame())
	}
}
