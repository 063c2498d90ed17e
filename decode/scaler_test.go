package decode

import (
	"errors"
	"image"
	"testing"
)

func TestNV12Size(t *testing.T) {
	tests := []struct{ w, h, want int }{
		{1920, 1080, 3110400},
		{4, 2, 12},
		{3, 3, 17},
	}
	for _, tt := range tests {
		if got := NV12Size(tt.w, tt.h); got != tt.want {
			t.Errorf("NV12Size(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestScalerInterleave(t *testing.T) {
	img := image.NewYCbCr(image.Rect(0, 0, 4, 2), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = byte(i)
	}
	img.Cb[0], img.Cb[1] = 10, 11
	img.Cr[0], img.Cr[1] = 20, 21

	s, err := NewScaler(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Convert(img)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 10, 20, 11, 21}
	if string(out) != string(want) {
		t.Errorf("Convert = %v, want %v", out, want)
	}
}

func TestScalerSubsampling(t *testing.T) {
	// 4:4:4 chroma is reduced to quarter resolution.
	img := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio444)
	for i := range img.Cb {
		img.Cb[i] = 100
		img.Cr[i] = 200
	}
	s, _ := NewScaler(4, 4)
	out, err := s.Convert(img)
	if err != nil {
		t.Fatal(err)
	}
	uv := out[16:]
	if len(uv) != 8 {
		t.Fatalf("uv length = %d, want 8", len(uv))
	}
	for i := 0; i < len(uv); i += 2 {
		if uv[i] != 100 || uv[i+1] != 200 {
			t.Fatalf("uv = %v", uv)
		}
	}
}

func TestScalerResize(t *testing.T) {
	img := image.NewYCbCr(image.Rect(0, 0, 16, 16), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 77
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	s, _ := NewScaler(6, 4)
	out, err := s.Convert(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != NV12Size(6, 4) {
		t.Fatalf("len = %d, want %d", len(out), NV12Size(6, 4))
	}
	for i, v := range out[:24] {
		if v != 77 {
			t.Fatalf("luma[%d] = %d, want 77", i, v)
		}
	}
}

func TestScalerErrors(t *testing.T) {
	if _, err := NewScaler(0, 4); !errors.Is(err, ErrFrameProcessing) {
		t.Errorf("NewScaler(0, 4) err = %v", err)
	}
	s, _ := NewScaler(4, 4)
	if _, err := s.Convert(nil); !errors.Is(err, ErrFrameProcessing) {
		t.Errorf("nil picture err = %v", err)
	}
	empty := image.NewYCbCr(image.Rect(0, 0, 0, 0), image.YCbCrSubsampleRatio420)
	if _, err := s.Convert(empty); !errors.Is(err, ErrFrameProcessing) {
		t.Errorf("empty picture err = %v", err)
	}
	short := &image.YCbCr{Y: make([]byte, 3), YStride: 4, Rect: image.Rect(0, 0, 4, 4), SubsampleRatio: image.YCbCrSubsampleRatio420}
	if _, err := s.Convert(short); !errors.Is(err, ErrFrameProcessing) {
		t.Errorf("short plane err = %v", err)
	}
}

func TestScalerLargeFrame(t *testing.T) {
	// Large enough for the planes to be converted concurrently.
	const w, h = 1280, 720
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Y[y*img.YStride+x] = byte(y)
		}
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 50, 200
	}

	s, err := NewScaler(w, h)
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Convert(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != NV12Size(w, h) {
		t.Fatalf("len = %d, want %d", len(out), NV12Size(w, h))
	}
	for _, y := range []int{0, 1, 255, 719} {
		if got := out[y*w+w/2]; got != byte(y) {
			t.Errorf("luma row %d = %d, want %d", y, got, byte(y))
		}
	}
	uv := out[w*h:]
	if uv[0] != 50 || uv[1] != 200 || uv[len(uv)-2] != 50 || uv[len(uv)-1] != 200 {
		t.Errorf("chroma = %v ... %v", uv[:2], uv[len(uv)-2:])
	}
}
