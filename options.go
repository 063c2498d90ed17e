package vidfx

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/vidfx/decode"
	"github.com/gogpu/vidfx/render"
)

// Option configures a Session or a renderer created with NewRenderer.
// Options that do not apply to the object being built are ignored.
//
// Example:
//
//	s, err := vidfx.Open(ctx, "clip.mp4",
//	    vidfx.WithBackend("ffmpeg"),
//	    vidfx.WithLooping(true),
//	    vidfx.WithPrefetch(true))
type Option func(*options)

// options holds the configuration collected from Option values.
type options struct {
	// Decoding.
	backend    string
	start      int64
	end        int64
	width      int
	height     int
	looping    bool
	prefetch   bool
	queueSize  int
	scrubCache int

	// Rendering.
	format     gputypes.TextureFormat
	formatSet  bool
	spirv      bool
	colorSpace render.ColorSpace
	upscale    bool
	threshold  float32
	blendMode  float32
	compare    bool
	comparePos float32
}

func defaultOptions() options {
	return options{
		end:        decode.EndOfStream,
		queueSize:  decode.MaxQueue,
		format:     render.DefaultFormat,
		colorSpace: render.ColorSpaceBT709,
		threshold:  render.DefaultThreshold,
		blendMode:  render.DefaultBlendMode,
		comparePos: 0.5,
	}
}

func collect(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithBackend selects the decode backend by name ("gstreamer" or
// "ffmpeg"). The default is the best registered backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithRange limits playback to frames start through end inclusive. An end
// of decode.EndOfStream plays to the end of the stream.
func WithRange(start, end int64) Option {
	return func(o *options) {
		o.start = start
		o.end = end
	}
}

// WithOutputSize scales decoded frames to width x height. Zero keeps the
// stream size.
func WithOutputSize(width, height int) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

// WithLooping restarts playback at the start frame when the end is
// reached.
func WithLooping(looping bool) Option {
	return func(o *options) {
		o.looping = looping
	}
}

// WithPrefetch decodes in a background goroutine instead of on the
// caller's Update.
func WithPrefetch(prefetch bool) Option {
	return func(o *options) {
		o.prefetch = prefetch
	}
}

// WithScrubCache keeps the last n shown frames so that seeking back to one
// of them during a drag shows it without decoding. Each entry holds one
// NV12 frame. 0 disables the cache.
func WithScrubCache(n int) Option {
	return func(o *options) {
		o.scrubCache = n
	}
}

// WithQueueSize sets the number of decoded frames buffered ahead of the
// frame on screen. Values below 1 select decode.MaxQueue.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithFormat sets the target texture format of the renderer.
func WithFormat(format gputypes.TextureFormat) Option {
	return func(o *options) {
		o.format = format
		o.formatSet = true
	}
}

// WithSPIRV makes the renderer hand SPIR-V compiled by naga to the device
// instead of WGSL.
func WithSPIRV(enabled bool) Option {
	return func(o *options) {
		o.spirv = enabled
	}
}

// WithColorSpace sets the YUV to RGB constants of the video pass.
func WithColorSpace(cs render.ColorSpace) Option {
	return func(o *options) {
		o.colorSpace = cs
	}
}

// WithUpscale enables the upscale effect with the given edge threshold and
// blend strength.
func WithUpscale(threshold, blendMode float32) Option {
	return func(o *options) {
		o.upscale = true
		o.threshold = threshold
		o.blendMode = blendMode
	}
}

// WithComparison enables the split-screen comparison at position in
// [0, 1].
func WithComparison(position float32) Option {
	return func(o *options) {
		o.compare = true
		o.comparePos = position
	}
}

// decodeOptions converts o to producer options.
func (o options) decodeOptions() []decode.Option {
	opts := []decode.Option{
		decode.WithLooping(o.looping),
		decode.WithQueueSize(o.queueSize),
	}
	if o.backend != "" {
		opts = append(opts, decode.WithBackend(o.backend))
	}
	if o.width > 0 && o.height > 0 {
		opts = append(opts, decode.WithOutputSize(o.width, o.height))
	}
	return opts
}
