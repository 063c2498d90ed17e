package backend

import (
	"context"
	"errors"
	"image"
)

// Well-known backend names.
const (
	// BackendGStreamer demuxes and decodes through a GStreamer appsink pipeline.
	BackendGStreamer = "gstreamer"

	// BackendFFmpeg decodes through the ffprobe and ffmpeg command line tools.
	BackendFFmpeg = "ffmpeg"
)

// Demux and decode errors. Backends wrap their native failures in one of
// these so callers can classify them with errors.Is.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrOpen is returned when a container cannot be opened or probed.
	ErrOpen = errors.New("backend: cannot open container")

	// ErrStreamNotFound is returned when a container has no video stream.
	ErrStreamNotFound = errors.New("backend: no video stream")

	// ErrSeek is returned when the container refuses a seek.
	ErrSeek = errors.New("backend: seek failed")

	// ErrDecode is returned when the decoder cannot be created or rejects input.
	ErrDecode = errors.New("backend: decode failed")

	// ErrAgain is returned by Decoder.ReceiveFrame when the decoder needs
	// more packets before it can emit a picture. It is not a failure.
	ErrAgain = errors.New("backend: decoder needs more input")
)

// Backend opens video containers.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "gstreamer", "ffmpeg").
	Name() string

	// Init checks that the backend's runtime is usable. It is safe to call
	// more than once.
	Init() error

	// Open opens the container at path. The context bounds the open and
	// probe work only; the returned Demuxer outlives it.
	Open(ctx context.Context, path string) (Demuxer, error)
}

// Demuxer reads packets from an opened container.
type Demuxer interface {
	// BestVideoStream returns the container's preferred video stream.
	BestVideoStream() (StreamInfo, error)

	// ReadPacket returns the next packet of any stream, or io.EOF when the
	// container is exhausted.
	ReadPacket() (Packet, error)

	// SeekRange seeks so that the next packet read is at or before ts and
	// within [minTS, maxTS], all in the video stream's time base.
	SeekRange(minTS, ts, maxTS int64) error

	// OpenDecoder creates a decoder for the given stream.
	OpenDecoder(stream StreamInfo) (Decoder, error)

	// Close releases the container.
	Close() error
}

// Decoder turns packets into pictures. It follows the send/receive model:
// each SendPacket may make zero or more pictures available to ReceiveFrame.
type Decoder interface {
	// SendPacket feeds one packet to the decoder.
	SendPacket(pkt Packet) error

	// ReceiveFrame returns the next decoded picture. It returns ErrAgain
	// when more input is needed and io.EOF once a drained decoder is empty.
	ReceiveFrame() (*Picture, error)

	// Drain signals end of input. Buffered pictures remain receivable.
	Drain() error

	// Flush discards all buffered input and output, typically after a seek.
	Flush()

	// Close releases the decoder.
	Close() error
}

// Packet is one compressed (or raw) unit read from a container.
type Packet struct {
	StreamIndex int
	PTS         int64
	Data        []byte
}

// Picture is a decoded 4:2:0 frame with its presentation timestamp in the
// stream time base.
type Picture struct {
	Image *image.YCbCr
	PTS   int64
}

// StreamInfo describes a video elementary stream.
type StreamInfo struct {
	Index     int
	Width     int
	Height    int
	FrameRate Rational
	TimeBase  Rational

	// Duration is the stream duration in TimeBase units, or 0 if unknown.
	Duration int64

	// Frames is the declared frame count, or 0 if unknown.
	Frames int64

	Codec string
}

// Rational is a fraction such as a frame rate or a time base.
type Rational struct {
	Num int64
	Den int64
}

// Valid reports whether r has a positive numerator and denominator.
func (r Rational) Valid() bool { return r.Num > 0 && r.Den > 0 }

// Float64 returns r as a float, or 0 for a zero denominator.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Inverse returns Den/Num.
func (r Rational) Inverse() Rational { return Rational{Num: r.Den, Den: r.Num} }
