package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// intermediateUsage is the usage set of every intermediate target: each one
// is the color attachment of one pass and the sampled input of the next.
const intermediateUsage = gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageCopyDst

// intermediateTarget is one offscreen color target and its view.
type intermediateTarget struct {
	tex  hal.Texture
	view hal.TextureView
}

// TextureManager owns the chain of intermediate render targets. With N
// effects the chain holds N+1 textures: the video pass writes #0, effect i
// reads #i and writes #i+1, and the last effect writes the host target.
//
// All textures share the manager's format, which is the host target format.
type TextureManager struct {
	format  gputypes.TextureFormat
	targets []intermediateTarget
	width   uint32
	height  uint32
}

// NewTextureManager creates an empty manager for the given target format.
func NewTextureManager(format gputypes.TextureFormat) *TextureManager {
	return &TextureManager{format: format}
}

// Resize makes the chain hold exactly count textures of w x h. If the
// chain already matches, this is a no-op; otherwise every texture is
// recreated.
func (m *TextureManager) Resize(device hal.Device, w, h uint32, count int) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: intermediate size %dx%d", ErrInvalidWindowSize, w, h)
	}
	if len(m.targets) == count && m.width == w && m.height == h {
		return nil
	}
	m.Destroy(device)

	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	for i := 0; i < count; i++ {
		tex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("intermediate_%d", i),
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        m.format,
			Usage:         intermediateUsage,
		})
		if err != nil {
			m.Destroy(device)
			return fmt.Errorf("create intermediate texture %d: %w", i, err)
		}
		view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:         fmt.Sprintf("intermediate_%d_view", i),
			Format:        m.format,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if err != nil {
			device.DestroyTexture(tex)
			m.Destroy(device)
			return fmt.Errorf("create intermediate view %d: %w", i, err)
		}
		m.targets = append(m.targets, intermediateTarget{tex: tex, view: view})
	}
	m.width = w
	m.height = h
	slogger().Debug("intermediate textures resized",
		"count", count, "width", w, "height", h, "format", m.format)
	return nil
}

// View returns the view of intermediate i, or nil if out of range.
func (m *TextureManager) View(i int) hal.TextureView {
	if i < 0 || i >= len(m.targets) {
		return nil
	}
	return m.targets[i].view
}

// Len returns the number of intermediate textures.
func (m *TextureManager) Len() int { return len(m.targets) }

// Size returns the intermediate texture dimensions.
func (m *TextureManager) Size() (uint32, uint32) { return m.width, m.height }

// Format returns the format shared by all intermediates.
func (m *TextureManager) Format() gputypes.TextureFormat { return m.format }

// Destroy releases all intermediate textures in reverse creation order.
func (m *TextureManager) Destroy(device hal.Device) {
	for i := len(m.targets) - 1; i >= 0; i-- {
		t := m.targets[i]
		if t.view != nil {
			device.DestroyTextureView(t.view)
		}
		if t.tex != nil {
			device.DestroyTexture(t.tex)
		}
	}
	m.targets = nil
	m.width = 0
	m.height = 0
}
