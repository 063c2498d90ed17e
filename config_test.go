package vidfx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/vidfx/decode"
	"github.com/gogpu/vidfx/render"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vidfx.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[decode]
backend = "ffmpeg"
start = 5
looping = true
prefetch = true
queue_size = 4
scrub_cache = 16

[render]
format = "RGBA8Unorm"
color_space = "bt709"
upscale = true
threshold = 0.1
comparison = true
comparison_position = 0.25
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Decode.End != decode.EndOfStream {
		t.Errorf("end = %d, want the default %d", cfg.Decode.End, decode.EndOfStream)
	}
	if cfg.Render.BlendMode != render.DefaultBlendMode {
		t.Errorf("blend_mode = %v, want the default", cfg.Render.BlendMode)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	o := collect(opts)
	checks := []struct {
		name string
		ok   bool
	}{
		{"backend", o.backend == "ffmpeg"},
		{"range", o.start == 5 && o.end == decode.EndOfStream},
		{"looping", o.looping},
		{"prefetch", o.prefetch},
		{"queue size", o.queueSize == 4},
		{"scrub cache", o.scrubCache == 16},
		{"format", o.format == gputypes.TextureFormatRGBA8Unorm && o.formatSet},
		{"upscale", o.upscale && o.threshold == 0.1 && o.blendMode == render.DefaultBlendMode},
		{"comparison", o.compare && o.comparePos == 0.25},
		{"color space", o.colorSpace == render.ColorSpaceBT709},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("%s not applied: %+v", c.name, o)
		}
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[decode\nbackend = 1"},
		{"unknown key", "[decode]\nspeed = 2\n"},
		{"wrong type", "[decode]\nlooping = \"yes\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, ErrConfig) {
		t.Errorf("missing file: err = %v, want ErrConfig", err)
	}
}

func TestConfigOptionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"format", func(c *Config) { c.Render.Format = "r8unorm" }},
		{"color space", func(c *Config) { c.Render.ColorSpace = "smpte240m" }},
		{"comparison position", func(c *Config) { c.Render.ComparisonPosition = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := cfg.Options(); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestDefaultConfigMatchesDefaults(t *testing.T) {
	opts, err := DefaultConfig().Options()
	if err != nil {
		t.Fatal(err)
	}
	got, want := collect(opts), defaultOptions()
	got.formatSet = false
	if got != want {
		t.Errorf("DefaultConfig options = %+v, want %+v", got, want)
	}
}
