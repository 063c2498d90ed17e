package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded WGSL shader sources. Every shader draws a full-screen quad from
// vertex_index with entry points vs_main and fs_main.

//go:embed shaders/video.wgsl
var videoShaderSource string

//go:embed shaders/yuv_to_rgb.wgsl
var yuvToRGBShaderSource string

//go:embed shaders/upscale.wgsl
var upscaleShaderSource string

//go:embed shaders/comparison.wgsl
var comparisonShaderSource string

//go:embed shaders/line.wgsl
var lineShaderSource string

// ShaderSources returns every embedded shader keyed by name, for tooling
// and validation.
func ShaderSources() map[string]string {
	return map[string]string{
		"video":      videoShaderSource,
		"yuv_to_rgb": yuvToRGBShaderSource,
		"upscale":    upscaleShaderSource,
		"comparison": comparisonShaderSource,
		"line":       lineShaderSource,
	}
}

// spirvShaders selects the shader path for all pipelines. When true, WGSL is
// cross-compiled with naga and handed to the device as SPIR-V; otherwise the
// device compiles WGSL itself.
var spirvShaders bool

// SetSPIRVShaders switches between WGSL and naga-compiled SPIR-V modules.
// It affects pipelines created afterwards.
func SetSPIRVShaders(enabled bool) { spirvShaders = enabled }

// createShaderModule compiles src into a shader module on device.
func createShaderModule(device hal.Device, label, src string) (hal.ShaderModule, error) {
	if src == "" {
		return nil, fmt.Errorf("%s shader source is empty", label)
	}
	source := hal.ShaderSource{WGSL: src}
	if spirvShaders {
		code, err := compileSPIRV(src)
		if err != nil {
			return nil, fmt.Errorf("compile %s shader: %w", label, err)
		}
		source = hal.ShaderSource{SPIRV: code}
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader module: %w", label, err)
	}
	return module, nil
}

// compileSPIRV compiles WGSL to SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
