package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// managedEffect pairs an effect's GPU state with its configuration.
type managedEffect struct {
	shader *ShaderEffect
	state  Effect
}

// EffectManager keeps the ordered effect chain and, for every prepared
// video, the bind group each effect uses with that video's textures. During
// a draw a video's bind group list has one entry per effect; an empty or
// short list means the chain is not ready for that video and the caller
// should fall back to a plain video pass.
type EffectManager struct {
	effects    []managedEffect
	bindGroups map[uint64][]hal.BindGroup
}

// NewEffectManager creates an empty chain.
func NewEffectManager() *EffectManager {
	return &EffectManager{}
}

// Add builds e and appends it to the chain. Names are unique.
func (m *EffectManager) Add(device hal.Device, queue hal.Queue, format gputypes.TextureFormat, e Effect) error {
	if m.index(e.Name()) >= 0 {
		return fmt.Errorf("%w: %s", ErrEffectExists, e.Name())
	}
	shader, err := e.Add(device, queue, format)
	if err != nil {
		return fmt.Errorf("add effect %s: %w", e.Name(), err)
	}
	if !shader.LayoutStable() {
		slogger().Warn("effect layout id differs from the one it was built with",
			"effect", e.Name(), "built_with", shader.BuiltLayoutID())
	}
	m.effects = append(m.effects, managedEffect{shader: shader, state: e})
	m.ClearBindGroups(device)
	slogger().Debug("effect added", "effect", e.Name(), "chain_len", len(m.effects))
	return nil
}

// Remove destroys the named effect. It reports whether it was present.
func (m *EffectManager) Remove(device hal.Device, name string) bool {
	i := m.index(name)
	if i < 0 {
		return false
	}
	m.ClearBindGroups(device)
	m.effects[i].shader.Destroy(device)
	m.effects = append(m.effects[:i], m.effects[i+1:]...)
	slogger().Debug("effect removed", "effect", name, "chain_len", len(m.effects))
	return true
}

func (m *EffectManager) index(name string) int {
	for i, e := range m.effects {
		if e.state.Name() == name {
			return i
		}
	}
	return -1
}

// Has reports whether the named effect is in the chain.
func (m *EffectManager) Has(name string) bool { return m.index(name) >= 0 }

// Len returns the number of effects.
func (m *EffectManager) Len() int { return len(m.effects) }

// Names returns the effect names in chain order.
func (m *EffectManager) Names() []string {
	out := make([]string, len(m.effects))
	for i, e := range m.effects {
		out[i] = e.state.Name()
	}
	return out
}

// Effect returns the configuration of the named effect.
func (m *EffectManager) Effect(name string) (Effect, bool) {
	i := m.index(name)
	if i < 0 {
		return nil, false
	}
	return m.effects[i].state, true
}

// Shader returns the GPU state of effect i.
func (m *EffectManager) Shader(i int) *ShaderEffect {
	if i < 0 || i >= len(m.effects) {
		return nil
	}
	return m.effects[i].shader
}

// ClearBindGroups destroys the bind groups of every video. They are
// rebuilt by the next UpdateBindGroups for each video.
func (m *EffectManager) ClearBindGroups(device hal.Device) {
	for id := range m.bindGroups {
		m.ReleaseBindGroups(device, id)
	}
}

// ReleaseBindGroups destroys the bind groups built for video id.
func (m *EffectManager) ReleaseBindGroups(device hal.Device, id uint64) {
	for _, bg := range m.bindGroups[id] {
		device.DestroyBindGroup(bg)
	}
	delete(m.bindGroups, id)
}

// RetainBindGroups releases the bind groups of every video keep rejects.
func (m *EffectManager) RetainBindGroups(device hal.Device, keep func(id uint64) bool) {
	for id := range m.bindGroups {
		if !keep(id) {
			m.ReleaseBindGroups(device, id)
		}
	}
}

// BindGroups returns the bind groups built for video id.
func (m *EffectManager) BindGroups(id uint64) []hal.BindGroup { return m.bindGroups[id] }

// Prepare refreshes every effect's uniforms.
func (m *EffectManager) Prepare(queue hal.Queue) error {
	for _, e := range m.effects {
		if err := e.state.Prepare(e.shader, queue); err != nil {
			return fmt.Errorf("prepare effect %s: %w", e.state.Name(), err)
		}
	}
	return nil
}

// UpdateBindGroups rebuilds every effect's bind group for video id against
// its fixed layout, replacing the video's previous groups. views returns
// the textures for effect i. On failure the video has no groups, so its
// next draw takes the fallback path.
func (m *EffectManager) UpdateBindGroups(device hal.Device, id uint64, views func(i int) FrameViews) error {
	m.ReleaseBindGroups(device, id)
	groups := make([]hal.BindGroup, 0, len(m.effects))
	for i, e := range m.effects {
		bg, err := e.state.UpdateForFrame(device, e.shader, views(i))
		if err != nil {
			for _, g := range groups {
				device.DestroyBindGroup(g)
			}
			return fmt.Errorf("update effect %s: %w", e.state.Name(), err)
		}
		groups = append(groups, bg)
	}
	if m.bindGroups == nil {
		m.bindGroups = make(map[uint64][]hal.BindGroup)
	}
	m.bindGroups[id] = groups
	return nil
}

// UpdateComparison forwards the split-screen state to every effect.
func (m *EffectManager) UpdateComparison(enabled bool, position float32) {
	for _, e := range m.effects {
		e.state.UpdateComparison(enabled, position)
	}
}

// Destroy releases every bind group and effect.
func (m *EffectManager) Destroy(device hal.Device) {
	m.ClearBindGroups(device)
	for i := len(m.effects) - 1; i >= 0; i-- {
		m.effects[i].shader.Destroy(device)
	}
	m.effects = nil
}
