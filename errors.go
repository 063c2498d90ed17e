package vidfx

import (
	"errors"

	"github.com/gogpu/vidfx/backend"
	"github.com/gogpu/vidfx/decode"
	"github.com/gogpu/vidfx/internal/gpu"
)

// Error taxonomy. Every error vidfx returns wraps one of these, so callers
// can match with errors.Is without importing the sub-packages.
var (
	// ErrOpen: the file cannot be opened or its container is unreadable.
	ErrOpen = backend.ErrOpen

	// ErrStreamNotFound: the container has no video stream.
	ErrStreamNotFound = backend.ErrStreamNotFound

	// ErrSeek: the container rejected a seek.
	ErrSeek = backend.ErrSeek

	// ErrDecode: the decoder failed or produced no frame within the packet
	// budget.
	ErrDecode = backend.ErrDecode

	// ErrFrameProcessing: a decoded picture could not be converted to NV12.
	ErrFrameProcessing = decode.ErrFrameProcessing

	// ErrInvalidTimestamp: a seek target or playback range is out of bounds.
	ErrInvalidTimestamp = decode.ErrInvalidTimestamp

	// ErrGPU: a GPU resource could not be created.
	ErrGPU = gpu.ErrGPU

	// ErrInvalidWindowSize: the host supplied a zero-sized target.
	ErrInvalidWindowSize = gpu.ErrInvalidWindowSize

	// ErrBackendNotAvailable: no registered decode backend could be used.
	ErrBackendNotAvailable = backend.ErrBackendNotAvailable

	// ErrClosed: the session was used after Close.
	ErrClosed = errors.New("vidfx: session closed")
)
