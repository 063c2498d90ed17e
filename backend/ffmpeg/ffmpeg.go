package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gogpu/vidfx/backend"
)

// Default tool names, resolved through PATH.
const (
	DefaultFFmpeg  = "ffmpeg"
	DefaultFFprobe = "ffprobe"
)

func init() {
	backend.Register(backend.BackendFFmpeg, func() backend.Backend { return New(DefaultFFmpeg, DefaultFFprobe) })
}

// Backend runs ffprobe and ffmpeg as subprocesses.
type Backend struct {
	ffmpeg  string
	ffprobe string
}

// New returns a backend using the given tool paths.
func New(ffmpegPath, ffprobePath string) *Backend {
	return &Backend{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Name implements backend.Backend.
func (*Backend) Name() string { return backend.BackendFFmpeg }

// Init implements backend.Backend. Both tools must be on PATH.
func (b *Backend) Init() error {
	for _, tool := range []*string{&b.ffmpeg, &b.ffprobe} {
		p, err := exec.LookPath(*tool)
		if err != nil {
			return fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
		}
		*tool = p
	}
	return nil
}

// Open implements backend.Backend. It runs ffprobe; ffmpeg itself starts
// on the first ReadPacket.
func (b *Backend) Open(ctx context.Context, path string) (backend.Demuxer, error) {
	args := append(append([]string(nil), probeArgs...), path)
	cmd := exec.CommandContext(ctx, b.ffprobe, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %w: %s", backend.ErrOpen, path, err, strings.TrimSpace(stderr.String()))
	}

	stream, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	backend.Logger().Info("ffmpeg: opened",
		"path", path,
		"codec", stream.Codec,
		"width", stream.Width,
		"height", stream.Height,
		"frames", stream.Frames,
	)
	return &demuxer{backend: b, path: path, stream: stream}, nil
}

type demuxer struct {
	backend *Backend
	path    string
	stream  backend.StreamInfo

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer

	// next is the frame index of the next packet.
	next int64
	eof  bool
}

// decodeArgs builds the ffmpeg command line that writes raw I420 frames
// starting at frame start to stdout.
func decodeArgs(path string, stream backend.StreamInfo, start int64) []string {
	args := []string{"-v", "error", "-nostdin"}
	if start > 0 && stream.FrameRate.Valid() {
		sec := float64(start) * stream.FrameRate.Inverse().Float64()
		args = append(args, "-ss", strconv.FormatFloat(sec, 'f', 6, 64))
	}
	return append(args,
		"-i", path,
		"-map", "0:"+strconv.Itoa(stream.Index),
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-",
	)
}

func (d *demuxer) start() error {
	cmd := exec.Command(d.backend.ffmpeg, decodeArgs(d.path, d.stream, d.next)...)
	d.stderr.Reset()
	cmd.Stderr = &d.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrDecode, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %w", backend.ErrDecode, err)
	}
	d.cmd = cmd
	d.stdout = stdout
	d.reader = bufio.NewReaderSize(stdout, backend.I420Size(d.stream.Width, d.stream.Height))
	backend.Logger().Debug("ffmpeg: decoder started", "path", d.path, "frame", d.next)
	return nil
}

func (d *demuxer) stop() {
	if d.cmd == nil {
		return
	}
	_ = d.stdout.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	d.cmd, d.stdout, d.reader = nil, nil, nil
}

// BestVideoStream implements backend.Demuxer.
func (d *demuxer) BestVideoStream() (backend.StreamInfo, error) { return d.stream, nil }

// ReadPacket implements backend.Demuxer.
func (d *demuxer) ReadPacket() (backend.Packet, error) {
	if d.eof {
		return backend.Packet{}, io.EOF
	}
	if d.cmd == nil {
		if err := d.start(); err != nil {
			return backend.Packet{}, err
		}
	}

	buf := make([]byte, backend.I420Size(d.stream.Width, d.stream.Height))
	if _, err := io.ReadFull(d.reader, buf); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return backend.Packet{}, fmt.Errorf("%w: %w", backend.ErrDecode, err)
		}
		waitErr := d.cmd.Wait()
		msg := strings.TrimSpace(d.stderr.String())
		d.cmd, d.stdout, d.reader = nil, nil, nil
		if waitErr != nil {
			return backend.Packet{}, fmt.Errorf("%w: ffmpeg: %w: %s", backend.ErrDecode, waitErr, msg)
		}
		// Keep returning EOF until a seek restarts the process.
		d.eof = true
		return backend.Packet{}, io.EOF
	}

	pkt := backend.Packet{StreamIndex: d.stream.Index, PTS: d.next, Data: buf}
	d.next++
	return pkt, nil
}

// SeekRange implements backend.Demuxer. Timestamps are frame indices.
func (d *demuxer) SeekRange(minTS, ts, maxTS int64) error {
	if ts < 0 || ts < minTS || ts > maxTS {
		return fmt.Errorf("%w: %d outside [%d, %d]", backend.ErrSeek, ts, minTS, maxTS)
	}
	if d.stream.Frames > 0 && ts >= d.stream.Frames {
		return fmt.Errorf("%w: frame %d past end (%d frames)", backend.ErrSeek, ts, d.stream.Frames)
	}
	d.stop()
	d.next = ts
	d.eof = false
	return nil
}

// OpenDecoder implements backend.Demuxer.
func (d *demuxer) OpenDecoder(stream backend.StreamInfo) (backend.Decoder, error) {
	return backend.NewRawDecoder(stream.Width, stream.Height)
}

// Close implements backend.Demuxer.
func (d *demuxer) Close() error {
	d.stop()
	return nil
}
