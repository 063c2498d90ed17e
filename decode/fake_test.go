package decode

import (
	"errors"
	"io"

	"github.com/gogpu/vidfx/backend"
)

// ptsStep is the fake stream's frame duration in its 1/90000 time base.
const ptsStep = 3000

// fakeDemuxer serves raw I420 frames whose luma bytes all equal the frame
// index. Keyframes fall every keyInterval frames, so seeks land early and
// the producer must skip forward.
type fakeDemuxer struct {
	info        backend.StreamInfo
	frames      int
	keyInterval int
	audio       bool
	onlyAudio   bool
	seekErr     error

	next      int
	audioNext bool
	seeks     []int64
	closed    bool
}

func newFakeDemuxer(w, h, frames int) *fakeDemuxer {
	return &fakeDemuxer{
		info: backend.StreamInfo{
			Index:     0,
			Width:     w,
			Height:    h,
			FrameRate: backend.Rational{Num: 30, Den: 1},
			TimeBase:  backend.Rational{Num: 1, Den: 90000},
			Frames:    int64(frames),
			Codec:     "rawvideo",
		},
		frames:      frames,
		keyInterval: 4,
	}
}

func (d *fakeDemuxer) BestVideoStream() (backend.StreamInfo, error) { return d.info, nil }

func (d *fakeDemuxer) ReadPacket() (backend.Packet, error) {
	if d.onlyAudio {
		return backend.Packet{StreamIndex: 1, Data: []byte{0}}, nil
	}
	if d.audio {
		d.audioNext = !d.audioNext
		if d.audioNext {
			return backend.Packet{StreamIndex: 1, Data: []byte{0}}, nil
		}
	}
	if d.next >= d.frames {
		return backend.Packet{}, io.EOF
	}
	w, h := d.info.Width, d.info.Height
	data := make([]byte, backend.I420Size(w, h))
	luma := data[:w*h]
	for i := range luma {
		luma[i] = byte(d.next)
	}
	for i := w * h; i < len(data); i++ {
		data[i] = 128
	}
	pkt := backend.Packet{StreamIndex: 0, PTS: int64(d.next) * ptsStep, Data: data}
	d.next++
	return pkt, nil
}

func (d *fakeDemuxer) SeekRange(minTS, ts, maxTS int64) error {
	if d.seekErr != nil {
		return d.seekErr
	}
	if ts < minTS || ts > maxTS {
		return errors.New("fake: bad seek range")
	}
	d.seeks = append(d.seeks, ts)
	frame := int(ts / ptsStep)
	d.next = frame - frame%d.keyInterval
	return nil
}

func (d *fakeDemuxer) OpenDecoder(s backend.StreamInfo) (backend.Decoder, error) {
	return backend.NewRawDecoder(s.Width, s.Height)
}

func (d *fakeDemuxer) Close() error {
	d.closed = true
	return nil
}

// lumaOf returns the frame index encoded in a payload.
func lumaOf(f *Frame) int { return int(f.Data[0]) }
