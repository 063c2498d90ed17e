package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

type stubBackend struct {
	name    string
	initErr error
}

func (b *stubBackend) Name() string { return b.name }
func (b *stubBackend) Init() error  { return b.initErr }
func (b *stubBackend) Open(context.Context, string) (Demuxer, error) {
	return nil, ErrOpen
}

// withRegistry swaps in an empty registry for the duration of a test.
func withRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = make(map[string]Factory)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func TestRegistry(t *testing.T) {
	withRegistry(t)

	if Default() != nil {
		t.Fatal("Default() on empty registry should be nil")
	}
	if _, err := Resolve(""); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Resolve on empty registry: err = %v", err)
	}

	Register("zeta", func() Backend { return &stubBackend{name: "zeta"} })
	Register(BackendFFmpeg, func() Backend { return &stubBackend{name: BackendFFmpeg} })

	if got := Default().Name(); got != BackendFFmpeg {
		t.Errorf("Default() = %q, want %q", got, BackendFFmpeg)
	}

	Register(BackendGStreamer, func() Backend { return &stubBackend{name: BackendGStreamer} })
	if got := Default().Name(); got != BackendGStreamer {
		t.Errorf("Default() = %q, want %q", got, BackendGStreamer)
	}

	want := []string{BackendFFmpeg, BackendGStreamer, "zeta"}
	if got := Available(); !slices.Equal(got, want) {
		t.Errorf("Available() = %v, want %v", got, want)
	}

	if !IsRegistered("zeta") {
		t.Error("IsRegistered(zeta) = false")
	}
	Unregister("zeta")
	if IsRegistered("zeta") || Get("zeta") != nil {
		t.Error("zeta still registered after Unregister")
	}
}

func TestResolveInitError(t *testing.T) {
	withRegistry(t)

	initErr := errors.New("no runtime")
	Register(BackendFFmpeg, func() Backend { return &stubBackend{name: BackendFFmpeg, initErr: initErr} })

	if _, err := Resolve(BackendFFmpeg); !errors.Is(err, initErr) {
		t.Errorf("Resolve err = %v, want %v", err, initErr)
	}
	if _, err := Resolve(BackendGStreamer); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Resolve(unregistered) err = %v", err)
	}
}

func TestRational(t *testing.T) {
	tests := []struct {
		r     Rational
		valid bool
		f     float64
	}{
		{Rational{30, 1}, true, 30},
		{Rational{30000, 1001}, true, 30000.0 / 1001.0},
		{Rational{0, 1}, false, 0},
		{Rational{1, 0}, false, 0},
	}
	for _, tt := range tests {
		if got := tt.r.Valid(); got != tt.valid {
			t.Errorf("%v.Valid() = %v", tt.r, got)
		}
		if got := tt.r.Float64(); got != tt.f {
			t.Errorf("%v.Float64() = %v, want %v", tt.r, got, tt.f)
		}
	}
	if inv := (Rational{1, 25}).Inverse(); inv != (Rational{25, 1}) {
		t.Errorf("Inverse = %v", inv)
	}
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()

	if _, err := Probe(filepath.Join(dir, "missing.mp4")); !errors.Is(err, ErrOpen) {
		t.Errorf("missing file: err = %v, want ErrOpen", err)
	}
	if _, err := Probe(dir); !errors.Is(err, ErrOpen) {
		t.Errorf("directory: err = %v, want ErrOpen", err)
	}

	// ISO base media "ftyp" box with an isom brand.
	mp4 := []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}
	mp4 = append(mp4, make([]byte, 64)...)
	mp4Path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(mp4Path, mp4, 0o600); err != nil {
		t.Fatal(err)
	}
	info, err := Probe(mp4Path)
	if err != nil {
		t.Fatalf("Probe(mp4): %v", err)
	}
	if !info.Known || info.Extension != "mp4" {
		t.Errorf("Probe(mp4) = %+v", info)
	}

	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
	pngPath := filepath.Join(dir, "still.png")
	if err := os.WriteFile(pngPath, png, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Probe(pngPath); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("Probe(png) err = %v, want ErrStreamNotFound", err)
	}

	unknownPath := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(unknownPath, []byte("not a known signature"), 0o600); err != nil {
		t.Fatal(err)
	}
	info, err = Probe(unknownPath)
	if err != nil || info.Known {
		t.Errorf("Probe(unknown) = %+v, %v; want unknown and no error", info, err)
	}
}

func TestRawDecoder(t *testing.T) {
	const w, h = 5, 3
	if _, err := NewRawDecoder(0, h); !errors.Is(err, ErrDecode) {
		t.Errorf("zero width: err = %v", err)
	}

	d, err := NewRawDecoder(w, h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReceiveFrame(); !errors.Is(err, ErrAgain) {
		t.Errorf("empty decoder: err = %v, want ErrAgain", err)
	}

	size := I420Size(w, h)
	if size != 15+2*3*2 {
		t.Fatalf("I420Size = %d", size)
	}
	if err := d.SendPacket(Packet{Data: make([]byte, size-1)}); !errors.Is(err, ErrDecode) {
		t.Errorf("short packet: err = %v", err)
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	if err := d.SendPacket(Packet{PTS: 7, Data: data}); err != nil {
		t.Fatal(err)
	}
	pic, err := d.ReceiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	if pic.PTS != 7 || pic.Image.Bounds().Dx() != w || pic.Image.Bounds().Dy() != h {
		t.Errorf("picture = pts %d bounds %v", pic.PTS, pic.Image.Bounds())
	}
	if pic.Image.Y[w*h-1] != byte(w*h-1) || pic.Image.Cb[0] != byte(w*h) || pic.Image.Cr[0] != byte(w*h+6) {
		t.Error("planes not split at I420 offsets")
	}

	if err := d.SendPacket(Packet{PTS: 8, Data: data}); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if _, err := d.ReceiveFrame(); !errors.Is(err, ErrAgain) {
		t.Errorf("after Flush: err = %v, want ErrAgain", err)
	}

	if err := d.Drain(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReceiveFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("drained: err = %v, want io.EOF", err)
	}
	if err := d.SendPacket(Packet{Data: data}); !errors.Is(err, ErrDecode) {
		t.Errorf("send after drain: err = %v", err)
	}
}
