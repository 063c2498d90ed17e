package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/gogpu/vidfx/backend"
)

const (
	// MaxPacketsPerFrame bounds the packets pumped for one frame before the
	// producer gives up with backend.ErrDecode.
	MaxPacketsPerFrame = 100

	// DefaultFPS is used when a stream declares no usable frame rate.
	DefaultFPS = 30

	// EndOfStream as an end frame plays to the last frame of the stream.
	EndOfStream int64 = -1
)

// Producer decodes frames of one video stream into a bounded presentation
// queue, restricted to [StartFrame, EndFrame].
//
// A Producer is not safe for concurrent use.
type Producer struct {
	demuxer backend.Demuxer
	decoder backend.Decoder
	stream  backend.StreamInfo
	scaler  *Scaler
	queue   *Queue

	rate     backend.Rational
	timeBase backend.Rational
	fps      float64
	interval time.Duration

	startFrame   int64
	endFrame     int64
	currentFrame int64
	looping      atomic.Bool

	// pending is a picture decoded while skipping to a seek target.
	pending   *backend.Picture
	draining  bool
	exhausted bool

	// lastPTS is the last timestamp handed out; ptsOffset shifts timestamps
	// after a loop so they keep increasing.
	lastPTS   int64
	ptsOffset int64
	sinceSeek int
}

// Open opens the video at path with a registered backend and prepares to
// decode frames start through end inclusive. An end of EndOfStream plays to
// the end of the stream.
func Open(ctx context.Context, path string, start, end int64, opts ...Option) (*Producer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	b := o.backend
	if b == nil {
		var err error
		if b, err = backend.Resolve(o.backendName); err != nil {
			return nil, fmt.Errorf("%w: %w", backend.ErrOpen, err)
		}
	}

	if _, err := backend.Probe(path); err != nil {
		return nil, err
	}

	dmx, err := b.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	p, err := NewProducer(dmx, start, end, opts...)
	if err != nil {
		dmx.Close()
		return nil, err
	}
	backend.Logger().Info("decode: opened",
		"path", path,
		"backend", b.Name(),
		"width", p.stream.Width,
		"height", p.stream.Height,
		"fps", p.fps,
		"start", p.startFrame,
		"end", p.endFrame,
	)
	return p, nil
}

// NewProducer builds a producer over an already opened container. It takes
// ownership of dmx.
func NewProducer(dmx backend.Demuxer, start, end int64, opts ...Option) (*Producer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	stream, err := dmx.BestVideoStream()
	if err != nil {
		if errors.Is(err, backend.ErrStreamNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", backend.ErrStreamNotFound, err)
	}

	p := &Producer{
		demuxer: dmx,
		stream:  stream,
		queue:   NewQueue(o.queueSize),
		rate:    stream.FrameRate,
		lastPTS: math.MinInt64,
	}
	p.looping.Store(o.looping)
	if !p.rate.Valid() {
		backend.Logger().Debug("decode: stream has no frame rate, using default", "fps", DefaultFPS)
		p.rate = backend.Rational{Num: DefaultFPS, Den: 1}
	}
	p.timeBase = stream.TimeBase
	if !p.timeBase.Valid() {
		p.timeBase = p.rate.Inverse()
	}
	p.fps = p.rate.Float64()
	p.interval = time.Duration(float64(time.Second) / p.fps)

	if end == EndOfStream {
		if total := p.TotalFrames(); total > 0 {
			end = total - 1
		} else {
			end = math.MaxInt64 - 1
		}
	}
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: frame range [%d, %d]", ErrInvalidTimestamp, start, end)
	}
	p.startFrame, p.endFrame, p.currentFrame = start, end, start

	w, h := o.width, o.height
	if w <= 0 || h <= 0 {
		w, h = stream.Width, stream.Height
	}
	if p.scaler, err = NewScaler(w, h); err != nil {
		return nil, err
	}

	ts := p.frameToTS(start)
	if err := dmx.SeekRange(ts, ts, ts+1); err != nil {
		return nil, fmt.Errorf("%w: frame %d: %w", backend.ErrSeek, start, err)
	}

	if p.decoder, err = dmx.OpenDecoder(stream); err != nil {
		if errors.Is(err, backend.ErrDecode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", backend.ErrDecode, err)
	}

	// The container lands on a keyframe at or before the start frame.
	if err := p.skipTo(start); err != nil {
		p.decoder.Close()
		return nil, err
	}
	return p, nil
}

// frameToTS converts a frame index to the stream time base.
func (p *Producer) frameToTS(frame int64) int64 {
	num := frame * p.rate.Den * p.timeBase.Den
	den := p.rate.Num * p.timeBase.Num
	if den == 0 {
		return 0
	}
	return num / den
}

// tsToFrame converts a stream timestamp to the nearest frame index.
func (p *Producer) tsToFrame(ts int64) int64 {
	num := ts * p.timeBase.Num * p.rate.Num
	den := p.timeBase.Den * p.rate.Den
	if den == 0 {
		return 0
	}
	if num >= 0 {
		return (2*num + den) / (2 * den)
	}
	return -((-2*num + den) / (2 * den))
}

// Queue returns the presentation queue.
func (p *Producer) Queue() *Queue { return p.queue }

// Stream returns the selected stream.
func (p *Producer) Stream() backend.StreamInfo { return p.stream }

// Rate returns the frame rate in use.
func (p *Producer) Rate() backend.Rational { return p.rate }

// TimeBase returns the stream time base.
func (p *Producer) TimeBase() backend.Rational { return p.timeBase }

// FPS returns the frame rate as frames per second.
func (p *Producer) FPS() float64 { return p.fps }

// FrameDuration returns 1/FPS.
func (p *Producer) FrameDuration() time.Duration { return p.interval }

// Width returns the output frame width.
func (p *Producer) Width() int { w, _ := p.scaler.Size(); return w }

// Height returns the output frame height.
func (p *Producer) Height() int { _, h := p.scaler.Size(); return h }

// StartFrame returns the first frame of the playback range.
func (p *Producer) StartFrame() int64 { return p.startFrame }

// EndFrame returns the last frame of the playback range.
func (p *Producer) EndFrame() int64 { return p.endFrame }

// CurrentFrame returns the index of the next frame to be decoded.
func (p *Producer) CurrentFrame() int64 { return p.currentFrame }

// Looping reports whether playback restarts after the end frame.
func (p *Producer) Looping() bool { return p.looping.Load() }

// SetLooping sets looping playback. It is safe to call while a
// Prefetcher runs.
func (p *Producer) SetLooping(looping bool) { p.looping.Store(looping) }

// TotalFrames returns the stream's frame count: the declared count if
// present, else duration times frame rate. It is 0 when neither is known.
func (p *Producer) TotalFrames() int64 {
	if p.stream.Frames > 0 {
		return p.stream.Frames
	}
	if p.stream.Duration > 0 {
		return int64(math.Round(p.TotalTime() * p.fps))
	}
	return 0
}

// TotalTime returns the stream duration in seconds, or 0 if unknown.
func (p *Producer) TotalTime() float64 {
	if p.stream.Duration > 0 {
		return float64(p.stream.Duration) * p.timeBase.Float64()
	}
	if p.stream.Frames > 0 {
		return float64(p.stream.Frames) / p.fps
	}
	return 0
}

// CurrentTime returns the decode position in seconds.
func (p *Producer) CurrentTime() float64 {
	return float64(p.currentFrame) / p.fps
}

// Terminal reports whether the producer has passed its end frame.
func (p *Producer) Terminal() bool {
	return p.currentFrame > p.endFrame || p.exhausted
}

// DecodeNextFrame decodes one frame and appends it to the queue. It
// returns (nil, io.EOF) once the end frame has been passed or the stream is
// exhausted, and keeps doing so until a seek. It returns (nil, nil) without
// decoding when the queue is full.
func (p *Producer) DecodeNextFrame() (*Frame, error) {
	if p.queue.Full() {
		return nil, nil
	}
	f, err := p.Next()
	if err != nil {
		return nil, err
	}
	p.queue.Push(f)
	return f, nil
}

// Next decodes one frame without queueing it. Terminal and looping
// behavior match DecodeNextFrame.
func (p *Producer) Next() (*Frame, error) {
	for {
		if p.Terminal() {
			if !p.looping.Load() || p.sinceSeek == 0 {
				return nil, io.EOF
			}
			if err := p.rewind(); err != nil {
				return nil, err
			}
		}

		pic, err := p.receive()
		if errors.Is(err, io.EOF) {
			p.exhausted = true
			continue
		}
		if err != nil {
			return nil, err
		}

		pts := pic.PTS + p.ptsOffset
		if pts < p.lastPTS {
			backend.Logger().Debug("decode: dropping out of order picture", "pts", pts, "last", p.lastPTS)
			continue
		}

		data, err := p.scaler.Convert(pic.Image)
		if err != nil {
			return nil, err
		}
		w, h := p.scaler.Size()
		f := &Frame{Data: data, Width: w, Height: h, PTS: pts, Number: p.currentFrame}
		p.lastPTS = pts
		p.currentFrame++
		p.sinceSeek++
		return f, nil
	}
}

// receive returns the next picture, pumping packets of the selected stream
// into the decoder as needed. It returns io.EOF once the container is
// exhausted and the decoder drained.
func (p *Producer) receive() (*backend.Picture, error) {
	if pic := p.pending; pic != nil {
		p.pending = nil
		return pic, nil
	}
	pic, err := p.decoder.ReceiveFrame()
	switch {
	case err == nil:
		return pic, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case !errors.Is(err, backend.ErrAgain):
		return nil, fmt.Errorf("%w: receive: %w", backend.ErrDecode, err)
	}
	if p.draining {
		return nil, io.EOF
	}

	for packets := 0; packets < MaxPacketsPerFrame; packets++ {
		pkt, err := p.demuxer.ReadPacket()
		if errors.Is(err, io.EOF) {
			return p.drain()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read packet: %w", backend.ErrDecode, err)
		}
		if pkt.StreamIndex != p.stream.Index {
			continue
		}

		if err := p.decoder.SendPacket(pkt); err != nil {
			return nil, fmt.Errorf("%w: send packet: %w", backend.ErrDecode, err)
		}
		pic, err := p.decoder.ReceiveFrame()
		switch {
		case err == nil:
			return pic, nil
		case errors.Is(err, backend.ErrAgain):
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("%w: receive: %w", backend.ErrDecode, err)
		}
	}
	return nil, fmt.Errorf("%w: no frame after %d packets", backend.ErrDecode, MaxPacketsPerFrame)
}

// drain signals end of input and returns the first buffered picture, or
// io.EOF when there is none.
func (p *Producer) drain() (*backend.Picture, error) {
	p.draining = true
	if err := p.decoder.Drain(); err != nil {
		return nil, fmt.Errorf("%w: drain: %w", backend.ErrDecode, err)
	}
	pic, err := p.decoder.ReceiveFrame()
	switch {
	case err == nil:
		return pic, nil
	case errors.Is(err, io.EOF), errors.Is(err, backend.ErrAgain):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: receive: %w", backend.ErrDecode, err)
	}
}

// seekContainer seeks the container so decoding resumes at or before frame
// and resets the decoder.
func (p *Producer) seekContainer(frame int64) error {
	ts := p.frameToTS(frame)
	if err := p.demuxer.SeekRange(0, ts, ts+1); err != nil {
		if errors.Is(err, backend.ErrSeek) {
			return err
		}
		return fmt.Errorf("%w: frame %d: %w", backend.ErrSeek, frame, err)
	}
	p.decoder.Flush()
	p.pending = nil
	p.draining = false
	p.exhausted = false
	p.sinceSeek = 0
	return nil
}

// rewind restarts at the start frame for looping playback. Queued frames
// are kept and later timestamps are shifted past them.
func (p *Producer) rewind() error {
	if err := p.seekContainer(p.startFrame); err != nil {
		return err
	}
	if p.lastPTS != math.MinInt64 {
		p.ptsOffset = p.lastPTS - p.frameToTS(p.startFrame) + p.frameToTS(1)
	}
	p.currentFrame = p.startFrame
	if err := p.skipTo(p.startFrame); err != nil {
		return err
	}
	backend.Logger().Debug("decode: looped", "frame", p.startFrame)
	return nil
}

// SeekToFrame repositions playback so the queue front is the first frame at
// or after frame, then pre-buffers. A target outside [StartFrame, EndFrame]
// fails with ErrInvalidTimestamp; a container failure with backend.ErrSeek.
// Either way the producer state is unchanged.
func (p *Producer) SeekToFrame(frame int64) error {
	if frame < p.startFrame || frame > p.endFrame {
		return fmt.Errorf("%w: frame %d outside [%d, %d]", ErrInvalidTimestamp, frame, p.startFrame, p.endFrame)
	}
	if err := p.seekContainer(frame); err != nil {
		return err
	}

	p.queue.Clear()
	p.ptsOffset = 0
	p.lastPTS = math.MinInt64
	p.currentFrame = frame
	if err := p.skipTo(frame); err != nil {
		return err
	}
	return p.PreBuffer()
}

// SeekToTime seeks to the frame displayed at the given number of seconds.
func (p *Producer) SeekToTime(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return fmt.Errorf("%w: %v seconds", ErrInvalidTimestamp, seconds)
	}
	return p.SeekToFrame(int64(math.Round(seconds * p.fps)))
}

// Reset seeks back to the start frame.
func (p *Producer) Reset() error {
	return p.SeekToFrame(p.startFrame)
}

// skipTo decodes and discards pictures before frame. The first picture at
// or after frame is held for the next receive.
func (p *Producer) skipTo(frame int64) error {
	for {
		pic, err := p.receive()
		if errors.Is(err, io.EOF) {
			p.exhausted = true
			return nil
		}
		if err != nil {
			return err
		}
		if p.tsToFrame(pic.PTS) >= frame {
			p.pending = pic
			return nil
		}
	}
}

// PreBuffer decodes until the queue is full or the range ends.
func (p *Producer) PreBuffer() error {
	for !p.queue.Full() {
		f, err := p.DecodeNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if f == nil {
			return nil
		}
	}
	return nil
}

// Close releases the decoder and the container.
func (p *Producer) Close() error {
	p.queue.Clear()
	var errs []error
	if p.decoder != nil {
		errs = append(errs, p.decoder.Close())
		p.decoder = nil
	}
	if p.demuxer != nil {
		errs = append(errs, p.demuxer.Close())
		p.demuxer = nil
	}
	return errors.Join(errs...)
}
