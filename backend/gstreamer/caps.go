package gstreamer

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/gogpu/vidfx/backend"
)

// timeBase is GStreamer's clock unit.
var timeBase = backend.Rational{Num: 1, Den: 1_000_000_000}

var (
	capsWidth     = regexp.MustCompile(`width=\(int\)(\d+)`)
	capsHeight    = regexp.MustCompile(`height=\(int\)(\d+)`)
	capsFramerate = regexp.MustCompile(`framerate=\(fraction\)(\d+)/(\d+)`)
)

// videoCaps is the negotiated raw format at the appsink.
type videoCaps struct {
	Width  int
	Height int
	Rate   backend.Rational
}

// parseCaps extracts the frame size and rate from a serialized caps string
// such as "video/x-raw, format=(string)I420, width=(int)640, height=(int)360,
// framerate=(fraction)30/1". A missing framerate leaves Rate zero.
func parseCaps(s string) (videoCaps, error) {
	var c videoCaps
	w := capsWidth.FindStringSubmatch(s)
	h := capsHeight.FindStringSubmatch(s)
	if w == nil || h == nil {
		return c, fmt.Errorf("%w: caps without frame size: %s", backend.ErrStreamNotFound, s)
	}
	c.Width, _ = strconv.Atoi(w[1])
	c.Height, _ = strconv.Atoi(h[1])
	if c.Width <= 0 || c.Height <= 0 {
		return c, fmt.Errorf("%w: caps with empty frame size: %s", backend.ErrStreamNotFound, s)
	}
	if m := capsFramerate.FindStringSubmatch(s); m != nil {
		c.Rate.Num, _ = strconv.ParseInt(m[1], 10, 64)
		c.Rate.Den, _ = strconv.ParseInt(m[2], 10, 64)
	}
	return c, nil
}

func roundUp2(n int) int { return (n + 1) &^ 1 }
func roundUp4(n int) int { return (n + 3) &^ 3 }

// gstI420Size returns the size of a default-strided GStreamer I420 buffer.
// Row strides are rounded up to 4 bytes and the chroma planes start after
// an even number of luma rows.
func gstI420Size(w, h int) int {
	ys := roundUp4(w)
	cs := roundUp4(roundUp2(w) / 2)
	return ys*roundUp2(h) + 2*cs*(roundUp2(h)/2)
}

// packI420 copies a GStreamer I420 buffer into a tightly packed I420 frame
// as backend.RawDecoder expects it.
func packI420(data []byte, w, h int) ([]byte, error) {
	tight := backend.I420Size(w, h)
	if len(data) == tight {
		return data, nil
	}
	if len(data) < gstI420Size(w, h) {
		return nil, fmt.Errorf("%w: buffer has %d bytes for %dx%d I420", backend.ErrDecode, len(data), w, h)
	}

	ys := roundUp4(w)
	cs := roundUp4(roundUp2(w) / 2)
	cw, ch := (w+1)/2, (h+1)/2
	uOff := ys * roundUp2(h)
	vOff := uOff + cs*(roundUp2(h)/2)

	out := make([]byte, tight)
	dst := out
	for y := 0; y < h; y++ {
		copy(dst[:w], data[y*ys:])
		dst = dst[w:]
	}
	for _, off := range []int{uOff, vOff} {
		for y := 0; y < ch; y++ {
			copy(dst[:cw], data[off+y*cs:])
			dst = dst[cw:]
		}
	}
	return out, nil
}
