package gpu

import "fmt"

// ColorSpace tags the YUV encoding of a source.
type ColorSpace uint32

// Known color spaces. Only BT.709 has a conversion; every other tag falls
// back to it.
const (
	ColorSpaceBT709 ColorSpace = iota
	ColorSpaceBT601
	ColorSpaceBT2020
)

// String returns the conventional name of the color space.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceBT709:
		return "bt709"
	case ColorSpaceBT601:
		return "bt601"
	case ColorSpaceBT2020:
		return "bt2020"
	default:
		return fmt.Sprintf("ColorSpace(%d)", uint32(c))
	}
}

// ParseColorSpace maps a name to its tag. Unknown names return false.
func ParseColorSpace(s string) (ColorSpace, bool) {
	switch s {
	case "bt709", "BT709", "bt.709", "BT.709", "":
		return ColorSpaceBT709, true
	case "bt601", "BT601", "bt.601", "BT.601":
		return ColorSpaceBT601, true
	case "bt2020", "BT2020", "bt.2020", "BT.2020":
		return ColorSpaceBT2020, true
	default:
		return ColorSpaceBT709, false
	}
}

// ColorSpaceConfig holds the constants the video shader needs to turn
// limited-range YCbCr into RGB.
type ColorSpaceConfig struct {
	// Matrix rows map (Y, Cb, Cr) to R, G and B.
	Matrix  [3][3]float32
	YRange  [2]float32
	UVRange [2]float32
}

// BT709 is the ITU-R BT.709 limited-range configuration.
var BT709 = ColorSpaceConfig{
	Matrix: [3][3]float32{
		{1, 0, 1.5748},
		{1, -0.1873, -0.4681},
		{1, 1.8556, 0},
	},
	YRange:  [2]float32{16.0 / 255.0, 235.0 / 255.0},
	UVRange: [2]float32{16.0 / 255.0, 240.0 / 255.0},
}

// colorSpaceConfig returns the conversion for c, falling back to BT.709.
func colorSpaceConfig(c ColorSpace) ColorSpaceConfig {
	if c != ColorSpaceBT709 {
		slogger().Debug("color space not supported, using bt709", "color_space", c)
	}
	return BT709
}

// ToRGB converts one limited-range sample to RGB in [0, 1], the same way
// the video shader does.
func (cfg ColorSpaceConfig) ToRGB(y, cb, cr uint8) [3]float32 {
	ys := cfg.YRange[1] - cfg.YRange[0]
	uvs := cfg.UVRange[1] - cfg.UVRange[0]
	v := [3]float32{
		(float32(y)/255 - cfg.YRange[0]) / ys,
		(float32(cb)/255-cfg.UVRange[0])/uvs - 0.5,
		(float32(cr)/255-cfg.UVRange[0])/uvs - 0.5,
	}
	var out [3]float32
	for r := 0; r < 3; r++ {
		s := cfg.Matrix[r][0]*v[0] + cfg.Matrix[r][1]*v[1] + cfg.Matrix[r][2]*v[2]
		out[r] = clamp01(s)
	}
	return out
}
