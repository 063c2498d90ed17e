package vidfx

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/vidfx/decode"
	"github.com/gogpu/vidfx/internal/gpu"
	"github.com/gogpu/vidfx/render"
)

// ErrConfig is returned for a configuration file that cannot be read or
// holds invalid values.
var ErrConfig = errors.New("vidfx: invalid configuration")

// Config is the file form of the options. A file looks like:
//
//	[decode]
//	backend = "ffmpeg"
//	end = -1
//	looping = true
//
//	[render]
//	format = "bgra8unorm-srgb"
//	upscale = true
//	comparison = true
//	comparison_position = 0.5
type Config struct {
	Decode DecodeConfig `toml:"decode"`
	Render RenderConfig `toml:"render"`
}

// DecodeConfig configures the frame producer and player.
type DecodeConfig struct {
	Backend    string `toml:"backend"`
	Start      int64  `toml:"start"`
	End        int64  `toml:"end"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	Looping    bool   `toml:"looping"`
	Prefetch   bool   `toml:"prefetch"`
	QueueSize  int    `toml:"queue_size"`
	ScrubCache int    `toml:"scrub_cache"`
}

// RenderConfig configures the effect chain.
type RenderConfig struct {
	Format             string  `toml:"format"`
	SPIRV              bool    `toml:"spirv"`
	ColorSpace         string  `toml:"color_space"`
	Upscale            bool    `toml:"upscale"`
	Threshold          float32 `toml:"threshold"`
	BlendMode          float32 `toml:"blend_mode"`
	Comparison         bool    `toml:"comparison"`
	ComparisonPosition float32 `toml:"comparison_position"`
}

// formats maps config names to texture formats.
var formats = map[string]gputypes.TextureFormat{
	"bgra8unorm":      gputypes.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb": gputypes.TextureFormatBGRA8UnormSrgb,
	"rgba8unorm":      gputypes.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb": gputypes.TextureFormatRGBA8UnormSrgb,
}

// DefaultConfig returns the configuration equal to passing no options.
func DefaultConfig() Config {
	return Config{
		Decode: DecodeConfig{
			End:       decode.EndOfStream,
			QueueSize: decode.MaxQueue,
		},
		Render: RenderConfig{
			Format:             "bgra8unorm-srgb",
			ColorSpace:         "bt709",
			Threshold:          render.DefaultThreshold,
			BlendMode:          render.DefaultBlendMode,
			ComparisonPosition: 0.5,
		},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Keys the file sets
// override the defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrConfig, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: %s: unknown keys %s", ErrConfig, path, strings.Join(keys, ", "))
	}
	Logger().Debug("vidfx: config loaded", "path", path)
	return cfg, nil
}

// Options converts the configuration to options.
func (c Config) Options() ([]Option, error) {
	format, ok := formats[strings.ToLower(c.Render.Format)]
	if !ok {
		names := make([]string, 0, len(formats))
		for n := range formats {
			names = append(names, n)
		}
		slices.Sort(names)
		return nil, fmt.Errorf("%w: format %q, want one of %s", ErrConfig, c.Render.Format, strings.Join(names, ", "))
	}
	cs, ok := gpu.ParseColorSpace(strings.ToLower(c.Render.ColorSpace))
	if !ok {
		return nil, fmt.Errorf("%w: color space %q", ErrConfig, c.Render.ColorSpace)
	}
	if c.Render.ComparisonPosition < 0 || c.Render.ComparisonPosition > 1 {
		return nil, fmt.Errorf("%w: comparison_position %v outside [0, 1]", ErrConfig, c.Render.ComparisonPosition)
	}

	opts := []Option{
		WithRange(c.Decode.Start, c.Decode.End),
		WithOutputSize(c.Decode.Width, c.Decode.Height),
		WithLooping(c.Decode.Looping),
		WithPrefetch(c.Decode.Prefetch),
		WithQueueSize(c.Decode.QueueSize),
		WithScrubCache(c.Decode.ScrubCache),
		WithFormat(format),
		WithSPIRV(c.Render.SPIRV),
		WithColorSpace(cs),
	}
	if c.Decode.Backend != "" {
		opts = append(opts, WithBackend(c.Decode.Backend))
	}
	if c.Render.Upscale {
		opts = append(opts, WithUpscale(c.Render.Threshold, c.Render.BlendMode))
	}
	if c.Render.Comparison {
		opts = append(opts, WithComparison(c.Render.ComparisonPosition))
	}
	return opts, nil
}
