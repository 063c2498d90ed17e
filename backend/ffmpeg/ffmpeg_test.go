package ffmpeg

import (
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/gogpu/vidfx/backend"
)

func TestParseRational(t *testing.T) {
	tests := []struct {
		in      string
		want    backend.Rational
		wantErr bool
	}{
		{"30/1", backend.Rational{Num: 30, Den: 1}, false},
		{"30000/1001", backend.Rational{Num: 30000, Den: 1001}, false},
		{"25", backend.Rational{Num: 25, Den: 1}, false},
		{"0/0", backend.Rational{}, false},
		{"abc", backend.Rational{}, true},
		{"30/x", backend.Rational{}, true},
	}
	for _, tt := range tests {
		got, err := parseRational(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRational(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRational(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseProbe(t *testing.T) {
	const out = `{
		"programs": [],
		"streams": [{
			"index": 1,
			"codec_name": "h264",
			"width": 1280,
			"height": 720,
			"r_frame_rate": "30000/1001",
			"avg_frame_rate": "30000/1001",
			"duration": "10.010000",
			"nb_frames": "300"
		}]
	}`
	info, err := parseProbe([]byte(out))
	if err != nil {
		t.Fatal(err)
	}
	if info.Index != 1 || info.Width != 1280 || info.Height != 720 || info.Codec != "h264" {
		t.Errorf("info = %+v", info)
	}
	if info.TimeBase != (backend.Rational{Num: 1001, Den: 30000}) {
		t.Errorf("time base = %v, want inverse rate", info.TimeBase)
	}
	if info.Frames != 300 || info.Duration != 300 {
		t.Errorf("frames = %d duration = %d, want 300 and 300", info.Frames, info.Duration)
	}
}

func TestParseProbeFallbacks(t *testing.T) {
	// r_frame_rate unusable, avg_frame_rate valid, no frame count.
	info, err := parseProbe([]byte(`{"streams":[{"index":0,"width":64,"height":36,"r_frame_rate":"0/0","avg_frame_rate":"25/1","duration":"2.0"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if info.FrameRate != (backend.Rational{Num: 25, Den: 1}) || info.Duration != 50 || info.Frames != 0 {
		t.Errorf("info = %+v", info)
	}

	if _, err := parseProbe([]byte(`{"streams":[]}`)); !errors.Is(err, backend.ErrStreamNotFound) {
		t.Errorf("no streams: err = %v", err)
	}
	if _, err := parseProbe([]byte(`{"streams":[{"index":0,"width":0,"height":0}]}`)); !errors.Is(err, backend.ErrStreamNotFound) {
		t.Errorf("no size: err = %v", err)
	}
	if _, err := parseProbe([]byte(`not json`)); !errors.Is(err, backend.ErrOpen) {
		t.Errorf("bad json: err = %v", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	stream := backend.StreamInfo{Index: 0, FrameRate: backend.Rational{Num: 25, Den: 1}}
	args := decodeArgs("in.mp4", stream, 0)
	if slices.Contains(args, "-ss") {
		t.Errorf("start 0 should not seek: %v", args)
	}
	if args[len(args)-1] != "-" || !slices.Contains(args, "yuv420p") {
		t.Errorf("args = %v", args)
	}

	args = decodeArgs("in.mp4", stream, 50)
	i := slices.Index(args, "-ss")
	if i < 0 || args[i+1] != "2.000000" {
		t.Fatalf("args = %v, want -ss 2.000000", args)
	}
	if j := slices.Index(args, "-i"); j < i {
		t.Error("-ss must precede -i for input seeking")
	}
}

func TestSeekRange(t *testing.T) {
	d := &demuxer{stream: backend.StreamInfo{Width: 4, Height: 4, Frames: 10}, eof: true}
	if err := d.SeekRange(3, 3, 4); err != nil {
		t.Fatal(err)
	}
	if d.next != 3 || d.eof {
		t.Errorf("after seek next = %d eof = %v", d.next, d.eof)
	}
	if err := d.SeekRange(5, 4, 6); !errors.Is(err, backend.ErrSeek) {
		t.Errorf("ts below min: err = %v", err)
	}
	if err := d.SeekRange(10, 10, 11); !errors.Is(err, backend.ErrSeek) {
		t.Errorf("past end: err = %v", err)
	}

	d.eof = true
	if _, err := d.ReadPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadPacket at end = %v, want io.EOF", err)
	}
}
