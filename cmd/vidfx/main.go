// Command vidfx plays a video through the GPU effect pipeline without a
// window and writes the rendered frames as images.
//
//	vidfx -input clip.mp4 -frames 60 -upscale -compare 0.5 -out frames/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/tiff"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/vidfx"
	_ "github.com/gogpu/vidfx/backend/ffmpeg"
	_ "github.com/gogpu/vidfx/backend/gstreamer"
	"github.com/gogpu/vidfx/decode"
	"github.com/gogpu/vidfx/render"
)

var gpuBackends = map[string]gputypes.Backend{
	"vulkan":   gputypes.BackendVulkan,
	"gl":       gputypes.BackendGL,
	"software": gputypes.BackendEmpty,
}

func main() {
	var (
		input    = flag.String("input", "", "video file to play")
		config   = flag.String("config", "", "TOML configuration file")
		decoder  = flag.String("backend", "", "decode backend: gstreamer or ffmpeg (default: first available)")
		gpuName  = flag.String("gpu", "vulkan", "HAL backend: vulkan, gl or software")
		frames   = flag.Int("frames", 30, "number of frames to render")
		start    = flag.Int64("start", 0, "first frame")
		width    = flag.Int("width", 0, "output width (default: video width)")
		height   = flag.Int("height", 0, "output height (default: video height)")
		_        = flag.Bool("upscale", false, "enable the edge-aware upscale effect")
		compare  = flag.Float64("compare", -1, "comparison divider position in [0, 1]; negative disables")
		outDir   = flag.String("out", "frames", "output directory")
		ext      = flag.String("ext", "png", "image format: png or tiff")
		realtime = flag.Bool("realtime", false, "pace frames at the video frame rate")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	vidfx.SetLogger(logger)

	var opts []vidfx.Option
	if *config != "" {
		cfg, err := vidfx.LoadConfig(*config)
		if err != nil {
			log.Fatal(err)
		}
		if opts, err = cfg.Options(); err != nil {
			log.Fatal(err)
		}
	}
	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			opts = append(opts, vidfx.WithBackend(*decoder))
		case "start":
			opts = append(opts, vidfx.WithRange(*start, decode.EndOfStream))
		case "width", "height":
			opts = append(opts, vidfx.WithOutputSize(*width, *height))
		case "upscale":
			opts = append(opts, vidfx.WithUpscale(render.DefaultThreshold, render.DefaultBlendMode))
		case "compare":
			if *compare >= 0 {
				opts = append(opts, vidfx.WithComparison(float32(*compare)))
			}
		}
	})

	variant, ok := gpuBackends[strings.ToLower(*gpuName)]
	if !ok {
		log.Fatalf("unknown GPU backend %q", *gpuName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *input, variant, *frames, *outDir, *ext, *realtime, opts); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, input string, variant gputypes.Backend, frames int, outDir, ext string, realtime bool, opts []vidfx.Option) error {
	encode, err := encoder(ext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	s, err := vidfx.Open(ctx, input, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	dev, err := render.OpenHeadless(variant)
	if err != nil {
		return err
	}
	defer dev.Close()
	info := dev.AdapterInfo()
	slog.Info("using adapter", "name", info.Name, "type", info.Type)

	r, err := vidfx.NewRenderer(dev, opts...)
	if err != nil {
		return err
	}
	defer r.Destroy()

	device, _, err := render.HALObjects(dev)
	if err != nil {
		return err
	}
	w, h := s.Size()
	target, err := render.NewTextureTarget(device, w, h)
	if err != nil {
		return err
	}
	defer target.Destroy()

	// Offline rendering steps one frame per tick; -realtime waits for the
	// player's clock instead.
	if !realtime {
		s.Pause()
	}
	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / s.FPS()))
		defer ticker.Stop()
	}

	began := time.Now()
	for i := 0; i < frames; i++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if !realtime && i > 0 {
			next := s.CurrentFrame() + 1
			if next > s.EndFrame() {
				if !s.Looping() {
					break
				}
				next = s.Producer().StartFrame()
			}
			if err := s.Seek(next); err != nil {
				return err
			}
		}
		if _, err := s.Update(); err != nil && s.Frame() == nil {
			return err
		}

		r.BeginFrame()
		if err := s.Render(r, target.Bounds()); err != nil {
			return err
		}
		if err := r.RenderToTexture(target, s.VideoID()); err != nil {
			return err
		}
		img, err := target.ReadPixels()
		if err != nil {
			return err
		}
		name := filepath.Join(outDir, fmt.Sprintf("frame_%06d.%s", s.CurrentFrame(), ext))
		if err := writeImage(name, img, encode); err != nil {
			return err
		}
	}
	slog.Info("done", "frames", frames, "elapsed", time.Since(began).Round(time.Millisecond), "out", outDir)
	return nil
}

type encodeFunc func(f *os.File, img image.Image) error

func encoder(ext string) (encodeFunc, error) {
	switch ext {
	case "png":
		return func(f *os.File, img image.Image) error { return png.Encode(f, img) }, nil
	case "tiff":
		return func(f *os.File, img image.Image) error {
			return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	}
	return nil, fmt.Errorf("unknown image format %q", ext)
}

func writeImage(name string, img image.Image, encode encodeFunc) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	return encode(f, img)
}
