package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestUpscaleDefaults(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	u := NewUpscaleEffect()
	se, err := u.Add(device, queue, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer se.Destroy(device)

	store := se.Uniforms()
	if v, ok := store.Float(uniformColorThreshold); !ok || v != DefaultColorThreshold {
		t.Errorf("color_threshold = %v, %v; want %v", v, ok, DefaultColorThreshold)
	}
	if v, ok := store.Float(uniformColorBlendMode); !ok || v != DefaultColorBlendMode {
		t.Errorf("color_blend_mode = %v, %v; want %v", v, ok, DefaultColorBlendMode)
	}
	if got := store.PackedSize(); got != 16 {
		t.Errorf("PackedSize() = %d, want 16", got)
	}

	// Shader field order: threshold, blend mode, comparison flag, position.
	raw := readBuffer(t, device, store.Buffer(), 0, 16)
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw[0:])); got != DefaultColorThreshold {
		t.Errorf("buffer threshold = %v", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw[4:])); got != DefaultColorBlendMode {
		t.Errorf("buffer blend mode = %v", got)
	}
}

func TestUpscaleSetParams(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	u := NewUpscaleEffect()
	se, err := u.Add(device, queue, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer se.Destroy(device)

	u.SetParams(0.2, 1)
	u.UpdateComparison(true, 1.5)
	if err := u.Prepare(se, queue); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	store := se.Uniforms()
	if v, _ := store.Float(uniformColorThreshold); v != 0.2 {
		t.Errorf("threshold = %v, want 0.2", v)
	}
	if v, _ := store.Uint(uniformComparisonEnabled); v != 1 {
		t.Errorf("comparison_enabled = %d, want 1", v)
	}
	if v, _ := store.Float(uniformComparisonPosition); v != 1 {
		t.Errorf("comparison_position = %v, want clamped 1", v)
	}
}

func TestComparisonUniformOrder(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c := NewComparisonEffect()
	se, err := c.Add(device, queue, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer se.Destroy(device)

	c.UpdateComparison(true, 0.25)
	if err := c.Prepare(se, queue); err != nil {
		t.Fatal(err)
	}
	if off, ok := se.Uniforms().Offset(uniformLinePosition); !ok || off != 0 {
		t.Errorf("line_position offset = %d, %v; want 0", off, ok)
	}
	raw := readBuffer(t, device, se.Uniforms().Buffer(), 0, 4)
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw)); got != 0.25 {
		t.Errorf("line_position in buffer = %v, want 0.25", got)
	}
}

func TestComparisonDegenerateBindGroup(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c := NewComparisonEffect()
	se, err := c.Add(device, queue, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer se.Destroy(device)

	only := &namedView{name: "only"}
	if _, err := c.UpdateForFrame(device, se, FrameViews{Input: only}); err != nil {
		t.Fatalf("UpdateForFrame with one texture: %v", err)
	}
	if !c.Degenerate() {
		t.Error("expected degenerate bind group with one texture")
	}

	if _, err := c.UpdateForFrame(device, se, FrameViews{Input: only, Original: &namedView{name: "orig"}}); err != nil {
		t.Fatal(err)
	}
	if c.Degenerate() {
		t.Error("bind group should pair both textures")
	}

	if _, err := c.UpdateForFrame(device, se, FrameViews{}); err == nil {
		t.Error("expected error with no textures")
	}
}

func TestYUVToRGBNeedsPlanes(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	y := NewYUVToRGBEffect()
	se, err := y.Add(device, queue, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer se.Destroy(device)

	if _, err := y.UpdateForFrame(device, se, FrameViews{Input: &namedView{}}); err == nil {
		t.Error("expected error without a Y plane")
	}
	if _, err := y.UpdateForFrame(device, se, FrameViews{Y: &namedView{}}); err != nil {
		t.Errorf("missing UV should degrade, got %v", err)
	}
	if v, ok := se.Uniforms().Uint(uniformColorSpace); !ok || v != uint32(ColorSpaceBT709) {
		t.Errorf("color_space = %d, %v", v, ok)
	}
}

func TestEffectManagerAddRemove(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	m := NewEffectManager()
	defer m.Destroy(device)

	if err := m.Add(device, queue, gputypes.TextureFormatBGRA8Unorm, NewYUVToRGBEffect()); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(device, queue, gputypes.TextureFormatBGRA8Unorm, NewUpscaleEffect()); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(device, queue, gputypes.TextureFormatBGRA8Unorm, NewUpscaleEffect()); err == nil {
		t.Error("expected ErrEffectExists for duplicate name")
	}
	if got := m.Names(); len(got) != 2 || got[0] != EffectYUVToRGB || got[1] != EffectUpscale {
		t.Errorf("Names() = %v", got)
	}

	view := &namedView{}
	err := m.UpdateBindGroups(device, 1, func(int) FrameViews {
		return FrameViews{Y: view, UV: view, Input: view, Original: view}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.BindGroups(1)) != m.Len() {
		t.Errorf("bind groups = %d, effects = %d", len(m.BindGroups(1)), m.Len())
	}

	if !m.Remove(device, EffectYUVToRGB) {
		t.Error("Remove returned false")
	}
	if m.Remove(device, EffectYUVToRGB) {
		t.Error("second Remove returned true")
	}
	if len(m.BindGroups(1)) != 0 {
		t.Error("Remove must clear bind groups")
	}
	if m.Has(EffectYUVToRGB) || !m.Has(EffectUpscale) {
		t.Errorf("Has mismatch after remove: %v", m.Names())
	}
}
