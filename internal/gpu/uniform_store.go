package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// uniformBufferSize is the fixed byte size of every effect uniform buffer.
const uniformBufferSize = 256

// UniformKind identifies the type of a uniform value.
type UniformKind uint8

// Uniform kinds.
const (
	UniformFloat UniformKind = iota
	UniformInt
	UniformUint
	UniformVec2
	UniformVec3
	UniformVec4
	UniformMat3
	UniformMat4
)

// String returns the WGSL spelling of the kind.
func (k UniformKind) String() string {
	switch k {
	case UniformFloat:
		return "f32"
	case UniformInt:
		return "i32"
	case UniformUint:
		return "u32"
	case UniformVec2:
		return "vec2<f32>"
	case UniformVec3:
		return "vec3<f32>"
	case UniformVec4:
		return "vec4<f32>"
	case UniformMat3:
		return "mat3x3<f32>"
	case UniformMat4:
		return "mat4x4<f32>"
	default:
		return fmt.Sprintf("UniformKind(%d)", int(k))
	}
}

// components returns the number of 32-bit scalars the kind occupies.
func (k UniformKind) components() int {
	switch k {
	case UniformVec2:
		return 2
	case UniformVec3:
		return 3
	case UniformVec4:
		return 4
	case UniformMat3:
		return 9
	case UniformMat4:
		return 16
	default:
		return 1
	}
}

// UniformValue is a single typed uniform. Floats are stored in f; the
// integer kinds keep their bit pattern in bits.
type UniformValue struct {
	kind UniformKind
	f    [16]float32
	bits uint32
}

// Float returns a float uniform value.
func Float(v float32) UniformValue {
	u := UniformValue{kind: UniformFloat}
	u.f[0] = v
	return u
}

// Int returns a signed integer uniform value.
func Int(v int32) UniformValue {
	return UniformValue{kind: UniformInt, bits: uint32(v)} //nolint:gosec // bit reinterpretation
}

// Uint returns an unsigned integer uniform value.
func Uint(v uint32) UniformValue {
	return UniformValue{kind: UniformUint, bits: v}
}

// Vec2 returns a vec2 uniform value.
func Vec2(v [2]float32) UniformValue {
	u := UniformValue{kind: UniformVec2}
	copy(u.f[:], v[:])
	return u
}

// Vec3 returns a vec3 uniform value.
func Vec3(v [3]float32) UniformValue {
	u := UniformValue{kind: UniformVec3}
	copy(u.f[:], v[:])
	return u
}

// Vec4 returns a vec4 uniform value.
func Vec4(v [4]float32) UniformValue {
	u := UniformValue{kind: UniformVec4}
	copy(u.f[:], v[:])
	return u
}

// Mat3 returns a 3x3 matrix uniform value in column-major order.
func Mat3(m [9]float32) UniformValue {
	u := UniformValue{kind: UniformMat3}
	copy(u.f[:], m[:])
	return u
}

// Mat4 returns a 4x4 matrix uniform value in column-major order.
func Mat4(m [16]float32) UniformValue {
	u := UniformValue{kind: UniformMat4, f: m}
	return u
}

// Kind returns the value's type.
func (v UniformValue) Kind() UniformKind { return v.kind }

// Size returns the unpadded byte size of the value.
func (v UniformValue) Size() int { return v.kind.components() * 4 }

// appendBytes appends the little-endian encoding of the value to buf.
func (v UniformValue) appendBytes(buf []byte) []byte {
	switch v.kind {
	case UniformInt, UniformUint:
		return binary.LittleEndian.AppendUint32(buf, v.bits)
	default:
		for i := 0; i < v.kind.components(); i++ {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.f[i]))
		}
		return buf
	}
}

// UniformStore is an insertion-ordered set of named uniforms backed by a
// fixed 256-byte GPU buffer. Offsets are defined by the order in which
// names were first set; that order is frozen by the first UpdateBuffer.
type UniformStore struct {
	names  []string
	values map[string]UniformValue
	buffer hal.Buffer
	frozen bool
}

// NewUniformStore creates a uniform store with its GPU buffer.
func NewUniformStore(device hal.Device, label string) (*UniformStore, error) {
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uniformBufferSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create uniform buffer %q: %w", label, err)
	}
	s := newUniformValues()
	s.buffer = buf
	return s, nil
}

// newUniformValues returns a store with no GPU buffer attached.
func newUniformValues() *UniformStore {
	return &UniformStore{values: make(map[string]UniformValue)}
}

// Set stores a value under name. New names are appended to the layout;
// existing names keep their position. After the first UpdateBuffer, new
// names and kind changes are rejected because they would move offsets.
func (s *UniformStore) Set(name string, v UniformValue) error {
	old, ok := s.values[name]
	if !ok {
		if s.frozen {
			return fmt.Errorf("%w: cannot add %q", ErrUniformOrderFrozen, name)
		}
		s.names = append(s.names, name)
	} else if s.frozen && old.kind != v.kind {
		return fmt.Errorf("%w: %q changes from %s to %s", ErrUniformOrderFrozen, name, old.kind, v.kind)
	}
	s.values[name] = v
	return nil
}

// SetFloat sets a float uniform.
func (s *UniformStore) SetFloat(name string, v float32) error { return s.Set(name, Float(v)) }

// SetInt sets a signed integer uniform.
func (s *UniformStore) SetInt(name string, v int32) error { return s.Set(name, Int(v)) }

// SetUint sets an unsigned integer uniform.
func (s *UniformStore) SetUint(name string, v uint32) error { return s.Set(name, Uint(v)) }

// SetVec2 sets a vec2 uniform.
func (s *UniformStore) SetVec2(name string, v [2]float32) error { return s.Set(name, Vec2(v)) }

// SetVec3 sets a vec3 uniform.
func (s *UniformStore) SetVec3(name string, v [3]float32) error { return s.Set(name, Vec3(v)) }

// SetVec4 sets a vec4 uniform.
func (s *UniformStore) SetVec4(name string, v [4]float32) error { return s.Set(name, Vec4(v)) }

// SetMat3 sets a mat3 uniform.
func (s *UniformStore) SetMat3(name string, m [9]float32) error { return s.Set(name, Mat3(m)) }

// SetMat4 sets a mat4 uniform.
func (s *UniformStore) SetMat4(name string, m [16]float32) error { return s.Set(name, Mat4(m)) }

// Get returns the raw value stored under name.
func (s *UniformStore) Get(name string) (UniformValue, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Float returns a float uniform. ok is false if the name is missing or
// holds another kind.
func (s *UniformStore) Float(name string) (float32, bool) {
	v, ok := s.values[name]
	if !ok || v.kind != UniformFloat {
		return 0, false
	}
	return v.f[0], true
}

// Int returns a signed integer uniform.
func (s *UniformStore) Int(name string) (int32, bool) {
	v, ok := s.values[name]
	if !ok || v.kind != UniformInt {
		return 0, false
	}
	return int32(v.bits), true //nolint:gosec // bit reinterpretation
}

// Uint returns an unsigned integer uniform.
func (s *UniformStore) Uint(name string) (uint32, bool) {
	v, ok := s.values[name]
	if !ok || v.kind != UniformUint {
		return 0, false
	}
	return v.bits, true
}

// Vec2 returns a vec2 uniform.
func (s *UniformStore) Vec2(name string) ([2]float32, bool) {
	var out [2]float32
	v, ok := s.values[name]
	if !ok || v.kind != UniformVec2 {
		return out, false
	}
	copy(out[:], v.f[:2])
	return out, true
}

// Vec3 returns a vec3 uniform.
func (s *UniformStore) Vec3(name string) ([3]float32, bool) {
	var out [3]float32
	v, ok := s.values[name]
	if !ok || v.kind != UniformVec3 {
		return out, false
	}
	copy(out[:], v.f[:3])
	return out, true
}

// Vec4 returns a vec4 uniform.
func (s *UniformStore) Vec4(name string) ([4]float32, bool) {
	var out [4]float32
	v, ok := s.values[name]
	if !ok || v.kind != UniformVec4 {
		return out, false
	}
	copy(out[:], v.f[:4])
	return out, true
}

// Mat3 returns a mat3 uniform.
func (s *UniformStore) Mat3(name string) ([9]float32, bool) {
	var out [9]float32
	v, ok := s.values[name]
	if !ok || v.kind != UniformMat3 {
		return out, false
	}
	copy(out[:], v.f[:9])
	return out, true
}

// Mat4 returns a mat4 uniform.
func (s *UniformStore) Mat4(name string) ([16]float32, bool) {
	v, ok := s.values[name]
	if !ok || v.kind != UniformMat4 {
		return [16]float32{}, false
	}
	return v.f, true
}

// Names returns the uniform names in layout order.
func (s *UniformStore) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of uniforms.
func (s *UniformStore) Len() int { return len(s.names) }

// Offset returns the byte offset of name within the packed record.
func (s *UniformStore) Offset(name string) (int, bool) {
	off := 0
	for _, n := range s.names {
		off = align4(off)
		if n == name {
			return off, true
		}
		off += s.values[n].Size()
	}
	return 0, false
}

// PackedSize returns the serialized length: the 4-byte aligned sizes of
// all values summed and rounded up to a multiple of 16.
func (s *UniformStore) PackedSize() int {
	off := 0
	for _, n := range s.names {
		off = align4(off) + s.values[n].Size()
	}
	return align16(off)
}

// Bytes serializes the store in layout order.
func (s *UniformStore) Bytes() []byte {
	buf := make([]byte, 0, s.PackedSize())
	for _, n := range s.names {
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
		buf = s.values[n].appendBytes(buf)
	}
	for len(buf)%16 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// UpdateBuffer writes the serialized record at offset 0 of the GPU buffer
// and freezes the layout.
func (s *UniformStore) UpdateBuffer(queue hal.Queue) error {
	data := s.Bytes()
	if len(data) > uniformBufferSize {
		return fmt.Errorf("uniform record is %d bytes, buffer holds %d", len(data), uniformBufferSize)
	}
	s.frozen = true
	if s.buffer == nil || len(data) == 0 {
		return nil
	}
	if err := queue.WriteBuffer(s.buffer, 0, data); err != nil {
		return fmt.Errorf("write uniform buffer: %w", err)
	}
	return nil
}

// Buffer returns the backing GPU buffer.
func (s *UniformStore) Buffer() hal.Buffer { return s.buffer }

// BufferSize returns the byte size of the backing GPU buffer.
func (s *UniformStore) BufferSize() uint64 { return uniformBufferSize }

// Destroy releases the GPU buffer.
func (s *UniformStore) Destroy(device hal.Device) {
	if s.buffer != nil {
		device.DestroyBuffer(s.buffer)
		s.buffer = nil
	}
}

func align4(n int) int  { return (n + 3) &^ 3 }
func align16(n int) int { return (n + 15) &^ 15 }
