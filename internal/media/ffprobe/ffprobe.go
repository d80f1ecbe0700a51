package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

var probeArgs = []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json"}

// Prober inspects media with a configurable binary and runner.
type Prober struct {
	Binary string
	Runner Runner
}

// NewProber returns a Prober using os/exec.
func NewProber(binary string) *Prober {
	return &Prober{Binary: binary, Runner: NewCommandRunner()}
}

func (p *Prober) binary() string {
	if p == nil || strings.TrimSpace(p.Binary) == "" {
		return "ffprobe"
	}
	return strings.TrimSpace(p.Binary)
}

func (p *Prober) runner() Runner {
	if p == nil || p.Runner == nil {
		return NewCommandRunner()
	}
	return p.Runner
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	args := append(append([]string(nil), probeArgs...), "--", path)
	output, err := p.runner().Run(ctx, p.binary(), args...)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return decode(output)
}

// InspectReader pipes data to ffprobe over stdin. Containers whose index sits
// at the end of the file may not be readable this way.
func (p *Prober) InspectReader(ctx context.Context, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, errors.New("ffprobe inspect: empty payload")
	}
	args := append(append([]string(nil), probeArgs...), "-i", "pipe:0")
	output, err := p.runner().RunWithInput(ctx, data, p.binary(), args...)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect stdin: %w", err)
	}
	return decode(output)
}

func decode(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// Height returns the height of the first video stream, or 0 when unavailable.
func (r Result) Height() int {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") && stream.Height > 0 {
			return stream.Height
		}
	}
	return 0
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// DurationMS returns the container duration in whole milliseconds, falling
// back to the longest video stream. It returns 0 when neither is usable.
func (r Result) DurationMS() int64 {
	seconds := r.DurationSeconds()
	if math.IsNaN(seconds) || seconds <= 0 {
		seconds = 0
		for _, stream := range r.Streams {
			if !strings.EqualFold(stream.CodecType, "video") {
				continue
			}
			if v := parseFloat(stream.Duration); !math.IsNaN(v) && v > seconds {
				seconds = v
			}
		}
	}
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds * 1000))
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
