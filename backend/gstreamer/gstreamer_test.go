//go:build !nogst

package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/gogpu/vidfx/backend"
)

// writeTestClip encodes frames of videotestsrc into an uncompressed AVI,
// so every frame is a keyframe.
func writeTestClip(t *testing.T, frames int) string {
	t.Helper()
	b := &Backend{}
	if err := b.Init(); err != nil {
		t.Skipf("gstreamer not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.avi")
	launch := fmt.Sprintf("videotestsrc num-buffers=%d ! video/x-raw,format=I420,width=64,height=48,framerate=30/1 ! avimux ! filesink location=%s", frames, path)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		t.Skipf("cannot build encode pipeline: %v", err)
	}
	defer pipeline.SetState(gst.StateNull)
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		t.Fatal(err)
	}
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return path
		case gst.MessageError:
			t.Skipf("encode pipeline failed: %v", msg.ParseError().Error())
		}
	}
	t.Fatal("encode pipeline did not finish")
	return ""
}

func TestDemuxerSeek(t *testing.T) {
	path := writeTestClip(t, 30)

	d, err := (&Backend{}).Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	info, err := d.BestVideoStream()
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 64 || info.Height != 48 || info.TimeBase != timeBase {
		t.Fatalf("stream = %+v", info)
	}

	if _, err := d.ReadPacket(); err != nil {
		t.Fatalf("first ReadPacket: %v", err)
	}

	target := int64(500 * time.Millisecond)
	if err := d.SeekRange(0, target, target+1); err != nil {
		t.Fatalf("SeekRange: %v", err)
	}
	pkt, err := d.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket after seek: %v", err)
	}
	// Raw frames are all keyframes, so the seek lands within one frame.
	frame := int64(time.Second / 30)
	if pkt.PTS < target-frame || pkt.PTS > target+frame {
		t.Errorf("pts after seek = %v, want about %v", time.Duration(pkt.PTS), time.Duration(target))
	}
	if len(pkt.Data) != backend.I420Size(64, 48) {
		t.Errorf("packet size = %d, want %d", len(pkt.Data), backend.I420Size(64, 48))
	}
}

func TestDemuxerSeekOutOfRange(t *testing.T) {
	path := writeTestClip(t, 5)

	d, err := (&Backend{}).Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if err := d.SeekRange(10, 5, 20); !errors.Is(err, backend.ErrSeek) {
		t.Errorf("ts below min: err = %v, want ErrSeek", err)
	}
	if err := d.SeekRange(-2, -1, 0); !errors.Is(err, backend.ErrSeek) {
		t.Errorf("negative ts: err = %v, want ErrSeek", err)
	}
}
