package decode

import "errors"

// Producer errors. Container and decoder failures surface as the backend
// package's sentinels (backend.ErrOpen, backend.ErrSeek, ...).
var (
	// ErrFrameProcessing is returned when a decoded picture cannot be
	// converted to a payload. It is fatal to that frame only.
	ErrFrameProcessing = errors.New("decode: frame processing failed")

	// ErrInvalidTimestamp is returned when a seek target lies outside
	// [start, end]. The producer state is unchanged.
	ErrInvalidTimestamp = errors.New("decode: seek target out of range")
)
