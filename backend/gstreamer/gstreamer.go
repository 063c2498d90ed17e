//go:build !nogst

package gstreamer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/gogpu/vidfx/backend"
)

// prerollPoll is the bus wait between context checks while the pipeline
// negotiates caps.
const prerollPoll = 100 * time.Millisecond

// sinkBuffers bounds the frames queued inside appsink.
const sinkBuffers = 10

func init() {
	backend.Register(backend.BackendGStreamer, func() backend.Backend { return &Backend{} })
}

var initOnce sync.Once

// Backend opens containers with GStreamer.
type Backend struct{}

// Name implements backend.Backend.
func (*Backend) Name() string { return backend.BackendGStreamer }

// Init implements backend.Backend. It initializes GStreamer and checks that
// the decode elements are installed.
func (*Backend) Init() error {
	initOnce.Do(func() { gst.Init(nil) })
	for _, factory := range []string{"filesrc", "decodebin", "videoconvert", "appsink"} {
		if _, err := gst.NewElement(factory); err != nil {
			return fmt.Errorf("%w: gstreamer element %s: %w", backend.ErrBackendNotAvailable, factory, err)
		}
	}
	return nil
}

// Open implements backend.Backend. It builds the pipeline, prerolls it to
// read the negotiated caps, and starts it playing.
func (b *Backend) Open(ctx context.Context, path string) (backend.Demuxer, error) {
	d := &demuxer{path: path}
	if err := d.build(); err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %s: %w", backend.ErrOpen, path, err)
	}
	if err := d.preroll(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: start pipeline: %w", backend.ErrOpen, err)
	}
	backend.Logger().Info("gstreamer: opened",
		"path", path,
		"width", d.stream.Width,
		"height", d.stream.Height,
		"rate", fmt.Sprintf("%d/%d", d.stream.FrameRate.Num, d.stream.FrameRate.Den),
	)
	return d, nil
}

type demuxer struct {
	path     string
	pipeline *gst.Pipeline
	sink     *app.Sink
	linked   atomic.Bool
	stream   backend.StreamInfo
}

func (d *demuxer) build() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	d.pipeline = pipeline

	src, err := gst.NewElement("filesrc")
	if err != nil {
		return fmt.Errorf("create filesrc: %w", err)
	}
	src.SetProperty("location", d.path)

	decode, err := gst.NewElement("decodebin")
	if err != nil {
		return fmt.Errorf("create decodebin: %w", err)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=I420"))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", sinkBuffers)
	sink.SetProperty("drop", false)
	d.sink = sink

	if err := pipeline.AddMany(src, decode, convert, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, decode); err != nil {
		return fmt.Errorf("link source: %w", err)
	}
	if err := gst.ElementLinkMany(convert, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("link sink: %w", err)
	}

	// decodebin exposes one pad per elementary stream once it has typed
	// the container. Only the first video pad is linked.
	decode.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		d.onPadAdded(srcPad, convert)
	})
	return nil
}

func (d *demuxer) onPadAdded(srcPad *gst.Pad, convert *gst.Element) {
	caps := srcPad.GetCurrentCaps()
	if caps == nil || caps.GetSize() == 0 {
		return
	}
	if name := caps.GetStructureAt(0).Name(); !strings.HasPrefix(name, "video/") {
		backend.Logger().Debug("gstreamer: ignoring stream", "pad", srcPad.GetName(), "caps", name)
		return
	}
	if !d.linked.CompareAndSwap(false, true) {
		return
	}
	sinkPad := convert.GetStaticPad("sink")
	if sinkPad == nil {
		backend.Logger().Error("gstreamer: videoconvert has no sink pad")
		return
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		backend.Logger().Error("gstreamer: failed to link video pad", "pad", srcPad.GetName(), "ret", ret)
	}
}

// preroll pauses the pipeline and waits until caps are negotiated at the
// appsink or the bus reports an error.
func (d *demuxer) preroll(ctx context.Context) error {
	if err := d.pipeline.SetState(gst.StatePaused); err != nil {
		return fmt.Errorf("%w: pause pipeline: %w", backend.ErrOpen, err)
	}

	bus := d.pipeline.GetPipelineBus()
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: preroll: %w", backend.ErrOpen, err)
		}
		msg := bus.TimedPop(prerollPoll)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			backend.Logger().Error("gstreamer: pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			return fmt.Errorf("%w: %s", backend.ErrOpen, gerr.Error())
		case gst.MessageEOS:
			return fmt.Errorf("%w: %s has no frames", backend.ErrStreamNotFound, d.path)
		case gst.MessageAsyncDone:
			return d.readStream()
		}
	}
}

func (d *demuxer) readStream() error {
	if !d.linked.Load() {
		return fmt.Errorf("%w: %s", backend.ErrStreamNotFound, d.path)
	}
	pad := d.sink.GetStaticPad("sink")
	if pad == nil {
		return fmt.Errorf("%w: appsink has no sink pad", backend.ErrOpen)
	}
	caps := pad.GetCurrentCaps()
	if caps == nil {
		return fmt.Errorf("%w: caps not negotiated", backend.ErrStreamNotFound)
	}
	vc, err := parseCaps(caps.String())
	if err != nil {
		return err
	}

	d.stream = backend.StreamInfo{
		Width:     vc.Width,
		Height:    vc.Height,
		FrameRate: vc.Rate,
		TimeBase:  timeBase,
		Codec:     "I420",
	}
	if ok, dur := d.pipeline.QueryDuration(gst.FormatTime); ok && dur > 0 {
		d.stream.Duration = dur
	}
	return nil
}

// BestVideoStream implements backend.Demuxer.
func (d *demuxer) BestVideoStream() (backend.StreamInfo, error) {
	if d.stream.Width == 0 {
		return backend.StreamInfo{}, backend.ErrStreamNotFound
	}
	return d.stream, nil
}

// ReadPacket implements backend.Demuxer. It blocks until appsink has a
// frame or reaches end of stream.
func (d *demuxer) ReadPacket() (backend.Packet, error) {
	sample := d.sink.PullSample()
	if sample == nil {
		if err := d.busError(); err != nil {
			return backend.Packet{}, err
		}
		return backend.Packet{}, io.EOF
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return backend.Packet{}, fmt.Errorf("%w: sample without buffer", backend.ErrDecode)
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	frame, err := packI420(data, d.stream.Width, d.stream.Height)
	if err == nil && len(data) > 0 && &frame[0] == &data[0] {
		// GStreamer reuses the mapped memory.
		frame = append([]byte(nil), frame...)
	}
	buffer.Unmap()
	if err != nil {
		return backend.Packet{}, err
	}

	pts := int64(buffer.PresentationTimestamp())
	if pts < 0 {
		pts = 0
	}
	return backend.Packet{StreamIndex: d.stream.Index, PTS: pts, Data: frame}, nil
}

// busError drains pending bus messages and returns the first error.
func (d *demuxer) busError() error {
	bus := d.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			return fmt.Errorf("%w: %s", backend.ErrDecode, gerr.Error())
		}
	}
}

// SeekRange implements backend.Demuxer. GStreamer seeks to the keyframe at
// or before ts; minTS and maxTS only bound the request.
func (d *demuxer) SeekRange(minTS, ts, maxTS int64) error {
	if ts < minTS || ts > maxTS || ts < 0 {
		return fmt.Errorf("%w: %d outside [%d, %d]", backend.ErrSeek, ts, minTS, maxTS)
	}
	ev := gst.NewSeekEvent(1.0, gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit,
		gst.SeekTypeSet, ts, gst.SeekTypeNone, -1)
	if !d.pipeline.SendEvent(ev) {
		return fmt.Errorf("%w: gstreamer refused seek to %v", backend.ErrSeek, time.Duration(ts))
	}
	return nil
}

// OpenDecoder implements backend.Demuxer.
func (d *demuxer) OpenDecoder(stream backend.StreamInfo) (backend.Decoder, error) {
	return backend.NewRawDecoder(stream.Width, stream.Height)
}

// Close implements backend.Demuxer.
func (d *demuxer) Close() error {
	if d.pipeline == nil {
		return nil
	}
	err := d.pipeline.SetState(gst.StateNull)
	d.pipeline = nil
	return err
}
