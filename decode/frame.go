package decode

// Frame is one decoded picture ready for upload: an NV12 payload (a full
// resolution Y plane followed by interleaved UV at half resolution) and its
// timestamp in the stream time base.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	PTS    int64

	// Number is the frame index the picture was decoded as.
	Number int64
}

// Clone returns a deep copy of f, or nil for a nil frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// NV12Size returns the payload length for a width x height frame.
func NV12Size(width, height int) int {
	cw, ch := (width+1)/2, (height+1)/2
	return width*height + 2*cw*ch
}
