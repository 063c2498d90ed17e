// Package backend provides a pluggable container demux and decode abstraction.
//
// A Backend opens a video file and returns a Demuxer. The Demuxer yields
// packets and builds a Decoder for its best video stream. Decoders follow
// the send/receive model: SendPacket feeds input, ReceiveFrame returns a
// picture or ErrAgain when it needs more, and io.EOF once drained.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// Import the implementations you want:
//
//	import (
//		_ "github.com/gogpu/vidfx/backend/ffmpeg"
//		_ "github.com/gogpu/vidfx/backend/gstreamer"
//	)
//
// # Backend Selection
//
// Use Resolve("") for the best available backend, or name one:
//
//	b, err := backend.Resolve(backend.BackendFFmpeg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	dmx, err := b.Open(ctx, "clip.mp4")
//
// Priority order: gstreamer, then ffmpeg, then any other registered name.
//
// # Probing
//
// Probe sniffs the container signature with h2non/filetype before a
// backend is asked to open it, so a missing file or a non-video file fails
// early with ErrOpen or ErrStreamNotFound.
package backend
