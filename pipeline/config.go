package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lepinkainen/datasetpipe/frames"
)

// ErrInvalidConfiguration is returned by Validate before any work starts.
// Configuration problems fail the whole run up front; they are never
// discovered item by item.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config holds every knob of a pipeline run. Zero values are not usable,
// build one from CLI flags or fill the fields explicitly in tests.
type Config struct {
	InputDir  string
	OutputDir string
	// WorkDir holds extracted frames and preview scratch files.
	// Empty means a .work directory inside OutputDir.
	WorkDir string

	// DupThreshold is the largest Hamming distance between perception
	// hashes still treated as the same content (0-64).
	DupThreshold int
	// BlurThreshold is the minimum Laplacian-variance sharpness a frame
	// needs to survive the blur gate.
	BlurThreshold float64

	FrameMode     frames.Mode
	FrameOffset   float64
	FrameInterval float64

	EnablePersonFilter  bool
	MinPersonRatio      float64
	DetectionConfidence float64

	MinResolutionNoUpscale int
	MinResolution2xUpscale int

	FaceEnhance bool

	ParallelDownloads  int
	ParallelProcessing int
	// MaxItems caps how many source files enter the run, 0 = unlimited.
	MaxItems int

	// CleanupIntermediate removes the work directory after the run.
	CleanupIntermediate bool
}

// Validate collects every configuration problem instead of stopping at
// the first, so one failed start reports them all.
func (c *Config) Validate() error {
	var problems []string

	if c.InputDir == "" {
		problems = append(problems, "input directory is required")
	}
	if c.OutputDir == "" {
		problems = append(problems, "output directory is required")
	}
	if c.DupThreshold < 0 || c.DupThreshold > 64 {
		problems = append(problems, fmt.Sprintf("duplicate threshold must be 0-64, got %d", c.DupThreshold))
	}
	if c.BlurThreshold < 0 {
		problems = append(problems, fmt.Sprintf("blur threshold must not be negative, got %g", c.BlurThreshold))
	}
	switch c.FrameMode {
	case frames.ModeFirstOnly:
		if c.FrameOffset < 0 {
			problems = append(problems, fmt.Sprintf("frame offset must not be negative, got %g", c.FrameOffset))
		}
	case frames.ModeInterval:
		if c.FrameInterval <= 0 {
			problems = append(problems, fmt.Sprintf("frame interval must be positive in interval mode, got %g", c.FrameInterval))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown frame extraction mode %q", c.FrameMode))
	}
	if c.MinPersonRatio < 0 || c.MinPersonRatio > 1 {
		problems = append(problems, fmt.Sprintf("person ratio must be within [0,1], got %g", c.MinPersonRatio))
	}
	if c.DetectionConfidence < 0 || c.DetectionConfidence > 1 {
		problems = append(problems, fmt.Sprintf("detection confidence must be within [0,1], got %g", c.DetectionConfidence))
	}
	if c.MinResolution2xUpscale <= 0 {
		problems = append(problems, fmt.Sprintf("2x upscale resolution threshold must be positive, got %d", c.MinResolution2xUpscale))
	}
	if c.MinResolutionNoUpscale <= c.MinResolution2xUpscale {
		problems = append(problems, fmt.Sprintf("no-upscale threshold (%d) must be above the 2x threshold (%d)",
			c.MinResolutionNoUpscale, c.MinResolution2xUpscale))
	}
	if c.ParallelDownloads < 1 {
		problems = append(problems, fmt.Sprintf("parallel downloads must be at least 1, got %d", c.ParallelDownloads))
	}
	if c.ParallelProcessing < 1 {
		problems = append(problems, fmt.Sprintf("parallel processing must be at least 1, got %d", c.ParallelProcessing))
	}
	if c.MaxItems < 0 {
		problems = append(problems, fmt.Sprintf("max items must not be negative, got %d", c.MaxItems))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
