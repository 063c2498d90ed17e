package decode

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/vidfx/internal/parallel"
)

// parallelPixels is the output size from which the three planes are
// converted concurrently.
const parallelPixels = 640 * 360

// Scaler converts decoded YCbCr pictures into NV12 payloads of a fixed
// output size. Planes whose size already matches are copied; others are
// resampled bilinearly. Any chroma subsampling is accepted and reduced to
// 4:2:0.
type Scaler struct {
	width  int
	height int
	interp draw.Interpolator
}

// NewScaler returns a scaler producing width x height frames.
func NewScaler(width, height int) (*Scaler, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid output size %dx%d", ErrFrameProcessing, width, height)
	}
	return &Scaler{width: width, height: height, interp: draw.BiLinear}, nil
}

// Size returns the output frame size.
func (s *Scaler) Size() (width, height int) { return s.width, s.height }

// Convert returns img as an NV12 payload.
func (s *Scaler) Convert(img *image.YCbCr) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil picture", ErrFrameProcessing)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty picture", ErrFrameProcessing)
	}
	srcW, srcH := b.Dx(), b.Dy()
	if len(img.Y) < img.YStride*(srcH-1)+srcW {
		return nil, fmt.Errorf("%w: luma plane too short", ErrFrameProcessing)
	}

	scw, sch := chromaSize(img.SubsampleRatio, srcW, srcH)
	if len(img.Cb) < img.CStride*(sch-1)+scw || len(img.Cr) < img.CStride*(sch-1)+scw {
		return nil, fmt.Errorf("%w: chroma planes too short", ErrFrameProcessing)
	}

	cw, ch := (s.width+1)/2, (s.height+1)/2
	out := make([]byte, NV12Size(s.width, s.height))

	luma := &image.Gray{Pix: out[:s.width*s.height], Stride: s.width, Rect: image.Rect(0, 0, s.width, s.height)}
	cb := image.NewGray(image.Rect(0, 0, cw, ch))
	cr := image.NewGray(image.Rect(0, 0, cw, ch))
	planes := []func(){
		func() { s.plane(luma, &image.Gray{Pix: img.Y, Stride: img.YStride, Rect: image.Rect(0, 0, srcW, srcH)}) },
		func() { s.plane(cb, &image.Gray{Pix: img.Cb, Stride: img.CStride, Rect: image.Rect(0, 0, scw, sch)}) },
		func() { s.plane(cr, &image.Gray{Pix: img.Cr, Stride: img.CStride, Rect: image.Rect(0, 0, scw, sch)}) },
	}
	if s.width*s.height >= parallelPixels {
		parallel.Shared().Run(planes...)
	} else {
		for _, fn := range planes {
			fn()
		}
	}

	uv := out[s.width*s.height:]
	for y := 0; y < ch; y++ {
		row := uv[y*2*cw : (y+1)*2*cw]
		for x := 0; x < cw; x++ {
			row[2*x] = cb.Pix[y*cb.Stride+x]
			row[2*x+1] = cr.Pix[y*cr.Stride+x]
		}
	}
	return out, nil
}

// plane fills dst from src, copying rows when sizes match.
func (s *Scaler) plane(dst, src *image.Gray) {
	if dst.Rect.Size() == src.Rect.Size() {
		w := dst.Rect.Dx()
		for y := 0; y < dst.Rect.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src.Pix[y*src.Stride:])
		}
		return
	}
	s.interp.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
}

// chromaSize returns the chroma plane size of a w x h picture.
func chromaSize(r image.YCbCrSubsampleRatio, w, h int) (int, int) {
	switch r {
	case image.YCbCrSubsampleRatio422:
		return (w + 1) / 2, h
	case image.YCbCrSubsampleRatio420:
		return (w + 1) / 2, (h + 1) / 2
	case image.YCbCrSubsampleRatio440:
		return w, (h + 1) / 2
	case image.YCbCrSubsampleRatio411:
		return (w + 3) / 4, h
	case image.YCbCrSubsampleRatio410:
		return (w + 3) / 4, (h + 1) / 2
	default:
		return w, h
	}
}
