package ffmpeg

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/vidfx/backend"
)

// probeArgs asks ffprobe for the first video stream only.
var probeArgs = []string{
	"-v", "error",
	"-select_streams", "v:0",
	"-show_entries", "stream=index,codec_name,width,height,r_frame_rate,avg_frame_rate,duration,nb_frames",
	"-of", "json",
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	NbFrames     string `json:"nb_frames"`
}

// parseRational parses "num/den" or a bare integer.
func parseRational(s string) (backend.Rational, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return backend.Rational{}, fmt.Errorf("rational %q: %w", s, err)
	}
	d := int64(1)
	if found {
		if d, err = strconv.ParseInt(den, 10, 64); err != nil {
			return backend.Rational{}, fmt.Errorf("rational %q: %w", s, err)
		}
	}
	return backend.Rational{Num: n, Den: d}, nil
}

// parseProbe converts ffprobe JSON into stream parameters. The declared
// rate is r_frame_rate, falling back to avg_frame_rate. Timestamps are
// frame indices, so TimeBase is the inverse rate and Duration counts frames.
func parseProbe(data []byte) (backend.StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return backend.StreamInfo{}, fmt.Errorf("%w: ffprobe output: %w", backend.ErrOpen, err)
	}
	if len(out.Streams) == 0 {
		return backend.StreamInfo{}, backend.ErrStreamNotFound
	}
	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return backend.StreamInfo{}, fmt.Errorf("%w: stream %d has no frame size", backend.ErrStreamNotFound, s.Index)
	}

	rate, err := parseRational(s.RFrameRate)
	if err != nil || !rate.Valid() {
		rate, _ = parseRational(s.AvgFrameRate)
	}

	info := backend.StreamInfo{
		Index:     s.Index,
		Width:     s.Width,
		Height:    s.Height,
		FrameRate: rate,
		Codec:     s.CodecName,
	}
	if !rate.Valid() {
		// Leave the rate unset; the producer applies its default.
		return info, nil
	}
	info.TimeBase = rate.Inverse()

	if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil && n > 0 {
		info.Frames = n
	}
	if sec, err := strconv.ParseFloat(s.Duration, 64); err == nil && sec > 0 {
		info.Duration = int64(math.Round(sec * rate.Float64()))
	}
	if info.Duration == 0 {
		info.Duration = info.Frames
	}
	return info, nil
}
