package gpu

import "errors"

// Render pipeline errors.
var (
	// ErrGPU is returned when a GPU resource cannot be created or the
	// device is unusable. It is fatal to the render pipeline.
	ErrGPU = errors.New("gpu: device error")

	// ErrInvalidWindowSize is returned when the host supplies a zero extent.
	ErrInvalidWindowSize = errors.New("gpu: invalid window size")

	// ErrInvalidPayload is returned when an uploaded payload is shorter than
	// the declared frame dimensions require.
	ErrInvalidPayload = errors.New("gpu: payload too short for frame size")

	// ErrUnknownVideo is returned when an operation names a video id that
	// has never been uploaded.
	ErrUnknownVideo = errors.New("gpu: unknown video id")

	// ErrUniformOrderFrozen is returned when a new uniform name is added
	// after the store has been written to the GPU.
	ErrUniformOrderFrozen = errors.New("gpu: uniform layout is frozen")

	// ErrEffectExists is returned when adding an effect whose name is
	// already present in the chain.
	ErrEffectExists = errors.New("gpu: effect already present")
)
