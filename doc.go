// Package vidfx plays video files through a GPU effect pipeline.
//
// A Session decodes a file with one of the registered backends (GStreamer
// or an ffmpeg subprocess), paces frames at the stream's frame rate, and
// hands each released frame to a render.GPURenderer, which converts it from
// NV12 to RGB and runs it through an optional effect chain: an edge-aware
// upscale and a split-screen comparison of the original and processed
// images.
//
// # Quick Start
//
//	s, err := vidfx.Open(ctx, "clip.mp4", vidfx.WithLooping(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	r, err := vidfx.NewRenderer(app.GPUContextProvider(),
//	    vidfx.WithUpscale(0.05, 2),
//	    vidfx.WithComparison(0.5))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Destroy()
//
//	// every redraw
//	s.Update()
//	r.BeginFrame()
//	s.Render(r, render.Bounds{Width: w, Height: h})
//	r.Draw(encoder, view, render.ClipRect{Width: w, Height: h}, s.VideoID())
//
// # Packages
//
//   - backend: container probing and the decode backend registry
//   - backend/gstreamer, backend/ffmpeg: the backends; import them for
//     their side effect of registering
//   - decode: frame producer, presentation queue, clock and player
//   - render: GPU renderer and offscreen targets
//
// # Configuration
//
// Options can be read from a TOML file with LoadConfig and converted with
// Config.Options. The error taxonomy is re-exported here, so callers match
// errors with errors.Is(err, vidfx.ErrSeek) and similar.
//
// # Logging
//
// vidfx is silent by default. SetLogger installs an *slog.Logger for this
// package and its sub-packages.
package vidfx
