package backend

import (
	"fmt"
	"image"
	"io"
)

// I420Size returns the byte length of a planar I420 frame: a full
// resolution Y plane followed by quarter resolution U and V planes.
func I420Size(width, height int) int {
	cw, ch := (width+1)/2, (height+1)/2
	return width*height + 2*cw*ch
}

// RawDecoder is a Decoder for streams whose packets already carry one
// uncompressed I420 frame each. Backends that decode out of process use it
// to present their output through the send/receive model.
type RawDecoder struct {
	width    int
	height   int
	pending  []Picture
	draining bool
}

// NewRawDecoder returns a decoder for I420 frames of the given size.
func NewRawDecoder(width, height int) (*RawDecoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid raw frame size %dx%d", ErrDecode, width, height)
	}
	return &RawDecoder{width: width, height: height}, nil
}

// SendPacket implements Decoder. A packet shorter than one frame is rejected.
func (d *RawDecoder) SendPacket(pkt Packet) error {
	if d.draining {
		return fmt.Errorf("%w: packet sent after drain", ErrDecode)
	}
	want := I420Size(d.width, d.height)
	if len(pkt.Data) < want {
		return fmt.Errorf("%w: raw packet has %d bytes, want %d", ErrDecode, len(pkt.Data), want)
	}

	img := image.NewYCbCr(image.Rect(0, 0, d.width, d.height), image.YCbCrSubsampleRatio420)
	ySize := d.width * d.height
	cSize := len(img.Cb)
	copy(img.Y, pkt.Data[:ySize])
	copy(img.Cb, pkt.Data[ySize:ySize+cSize])
	copy(img.Cr, pkt.Data[ySize+cSize:ySize+2*cSize])

	d.pending = append(d.pending, Picture{Image: img, PTS: pkt.PTS})
	return nil
}

// ReceiveFrame implements Decoder.
func (d *RawDecoder) ReceiveFrame() (*Picture, error) {
	if len(d.pending) == 0 {
		if d.draining {
			return nil, io.EOF
		}
		return nil, ErrAgain
	}
	pic := d.pending[0]
	d.pending = d.pending[1:]
	return &pic, nil
}

// Drain implements Decoder.
func (d *RawDecoder) Drain() error {
	d.draining = true
	return nil
}

// Flush implements Decoder.
func (d *RawDecoder) Flush() {
	d.pending = nil
	d.draining = false
}

// Close implements Decoder.
func (d *RawDecoder) Close() error {
	d.pending = nil
	return nil
}
