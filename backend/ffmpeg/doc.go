// Package ffmpeg registers a backend that decodes through the ffprobe and
// ffmpeg command line tools.
//
// ffprobe reports the stream parameters as JSON. ffmpeg decodes to raw
// yuv420p on stdout, one frame per packet, and the decoder is a
// backend.RawDecoder. Packet timestamps are frame indices, so the stream
// time base is the inverse of the frame rate. A seek restarts ffmpeg with
// an input -ss at the requested frame.
//
// Import it for its side effect:
//
//	import _ "github.com/gogpu/vidfx/backend/ffmpeg"
package ffmpeg
