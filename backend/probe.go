package backend

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"
)

// headerSize is the number of leading bytes filetype needs to match every
// container signature it knows.
const headerSize = 262

// ContainerInfo is the result of a container probe.
type ContainerInfo struct {
	Path      string
	Size      int64
	MIME      string
	Extension string

	// Known reports whether the signature was recognized at all. An
	// unrecognized file is still handed to the backend, which may know more
	// formats than the probe.
	Known bool
}

// Probe checks that path is a readable regular file and sniffs its container
// type. A missing or unreadable file fails with ErrOpen. A recognized file
// that is not a video container (an image, an archive) fails with
// ErrStreamNotFound.
func Probe(path string) (ContainerInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if st.IsDir() {
		return ContainerInfo{}, fmt.Errorf("%w: %s is a directory", ErrOpen, path)
	}

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return ContainerInfo{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	head = head[:n]

	info := ContainerInfo{Path: path, Size: st.Size()}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		slogger().Debug("backend: unrecognized container signature", "path", path)
		return info, nil
	}

	info.Known = true
	info.MIME = kind.MIME.Value
	info.Extension = kind.Extension
	if !filetype.IsVideo(head) {
		return info, fmt.Errorf("%w: %s is %s", ErrStreamNotFound, path, info.MIME)
	}

	slogger().Debug("backend: probed container", "path", path, "mime", info.MIME)
	return info, nil
}
