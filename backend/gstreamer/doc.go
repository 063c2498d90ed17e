// Package gstreamer registers a backend that decodes through a GStreamer
// pipeline:
//
//	filesrc ! decodebin ! videoconvert ! video/x-raw,format=I420 ! appsink
//
// Decoding happens inside GStreamer, so each packet the demuxer returns is
// one raw I420 frame and the decoder is a backend.RawDecoder. Timestamps are
// in nanoseconds (time base 1/1000000000).
//
// Import it for its side effect:
//
//	import _ "github.com/gogpu/vidfx/backend/gstreamer"
//
// The cgo parts are excluded with the nogst build tag.
package gstreamer
