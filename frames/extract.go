package frames

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Mode selects how many frames leave a video.
type Mode string

const (
	// ModeFirstOnly extracts a single frame at a fixed offset.
	ModeFirstOnly Mode = "first_only"
	// ModeInterval samples a frame every Interval seconds.
	ModeInterval Mode = "interval"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFirstOnly, ModeInterval:
		return m, nil
	default:
		return "", fmt.Errorf("unknown frame extraction mode %q", s)
	}
}

// Frame is one extracted still, with its position in the video.
type Frame struct {
	Path      string
	Index     int
	Timestamp float64
}

// Extractor pulls frames out of videos with ffmpeg. The same video with
// the same settings always yields the same frames.
type Extractor struct {
	Mode     Mode
	Offset   float64 // seek for first_only, in seconds
	Interval float64 // sampling step for interval, in seconds
	log      zerolog.Logger
}

func NewExtractor(mode Mode, offset, interval float64, log zerolog.Logger) *Extractor {
	return &Extractor{
		Mode:     mode,
		Offset:   offset,
		Interval: interval,
		log:      log.With().Str("component", "frames").Logger(),
	}
}

// Extract writes frames of videoPath into outDir and returns them in
// ascending timestamp order. Cancellation is honored between frames; a
// running ffmpeg invocation is never cut short. In interval mode a
// failing sample ends the sweep with whatever was collected so far.
func (e *Extractor) Extract(ctx context.Context, videoPath, outDir string) ([]Frame, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	switch e.Mode {
	case ModeFirstOnly:
		return e.extractFirst(videoPath, outDir)
	case ModeInterval:
		return e.extractInterval(ctx, videoPath, outDir)
	default:
		return nil, fmt.Errorf("unknown frame extraction mode %q", e.Mode)
	}
}

func (e *Extractor) extractFirst(videoPath, outDir string) ([]Frame, error) {
	framePath := filepath.Join(outDir, frameName(videoPath, 0))
	ts := e.Offset
	if err := extractFrameAt(videoPath, ts, framePath); err != nil {
		if ts == 0 {
			return nil, err
		}
		// The video may be shorter than the offset.
		ts = 0
		if err := extractFrameAt(videoPath, ts, framePath); err != nil {
			return nil, err
		}
	}
	return []Frame{{Path: framePath, Index: 0, Timestamp: ts}}, nil
}

func (e *Extractor) extractInterval(ctx context.Context, videoPath, outDir string) ([]Frame, error) {
	duration, err := GetVideoDuration(videoPath)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	for i, ts := range sampleTimestamps(duration, e.Interval) {
		if ctx.Err() != nil {
			return frames, ctx.Err()
		}
		framePath := filepath.Join(outDir, frameName(videoPath, i))
		if err := extractFrameAt(videoPath, ts, framePath); err != nil {
			if len(frames) == 0 {
				return nil, err
			}
			// Duration rounding can put the last sample past the end.
			e.log.Debug().Str("video", filepath.Base(videoPath)).Float64("ts", ts).Msg("sample failed, ending sweep")
			break
		}
		frames = append(frames, Frame{Path: framePath, Index: i, Timestamp: ts})
	}
	return frames, nil
}

// ExtractPreviewFrame pulls one deterministic frame for perceptual
// hashing, falling back to earlier offsets for short clips. The caller
// removes the returned file.
func ExtractPreviewFrame(videoPath, scratchDir string) (string, error) {
	tmp, err := os.CreateTemp(scratchDir, "preview-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create preview file: %w", err)
	}
	framePath := tmp.Name()
	_ = tmp.Close()

	var lastErr error
	for _, ts := range []float64{30, 10, 0} {
		if lastErr = extractFrameAt(videoPath, ts, framePath); lastErr == nil {
			return framePath, nil
		}
	}
	_ = os.Remove(framePath)
	return "", fmt.Errorf("extract preview frame: %w", lastErr)
}

// extractFrameAt grabs a single frame at ts seconds. ffmpeg can exit
// zero without producing output when the seek lands past the end, so the
// result file is checked too.
func extractFrameAt(videoPath string, ts float64, framePath string) error {
	cmd := exec.Command("ffmpeg",
		"-i", videoPath,
		"-ss", formatSeek(ts),
		"-vframes", "1",
		"-q:v", "2", // high-quality JPEG
		"-f", "image2",
		"-y",
		framePath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg frame at %.2fs: %w: %s", ts, err, firstLine(output))
	}

	info, err := os.Stat(framePath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("no frame produced at %.2fs", ts)
	}
	return nil
}

// sampleTimestamps lists the seek points an interval sweep visits.
func sampleTimestamps(duration, interval float64) []float64 {
	if duration <= 0 || interval <= 0 {
		return nil
	}
	var ts []float64
	for t := 0.0; t < duration; t += interval {
		ts = append(ts, t)
	}
	return ts
}

func formatSeek(ts float64) string {
	return fmt.Sprintf("%.3f", ts)
}

// frameName builds the output filename for one extracted frame.
func frameName(videoPath string, index int) string {
	base := filepath.Base(videoPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_frame%04d.jpg", stem, index)
}
