// Package enhance turns routed images into finished dataset files:
// straight placement for images that are already large enough,
// super-resolution for the rest, and optional face cleanup on everything
// that survives. The actual models run out of process behind the
// Upscaler and FaceRestorer interfaces.
package enhance

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lepinkainen/datasetpipe/router"
)

// Upscaler produces an enlarged copy of an image.
type Upscaler interface {
	Upscale(src, dst string, factor int) error
}

// FaceRestorer cleans up faces in a finished image, in place.
type FaceRestorer interface {
	Restore(path string) error
}

// Outcome reports where the finished file ended up.
type Outcome struct {
	OutputPath   string
	FaceRestored bool
}

// Coordinator drives one image through its enhancement tier.
type Coordinator struct {
	upscaler    Upscaler
	restorer    FaceRestorer
	faceEnhance bool
	log         zerolog.Logger
}

func NewCoordinator(upscaler Upscaler, restorer FaceRestorer, faceEnhance bool, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		upscaler:    upscaler,
		restorer:    restorer,
		faceEnhance: faceEnhance,
		log:         log.With().Str("component", "enhance").Logger(),
	}
}

// Enhance produces the finished copy of src at dst. Upscaled output is
// always JPEG, so the dst extension may change; the actual location is
// in the returned Outcome. A returned error means the item cannot be
// finished. Face cleanup failures only degrade the result, they never
// fail it.
func (c *Coordinator) Enhance(src, dst string, tier router.Tier) (Outcome, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return Outcome{}, fmt.Errorf("create output dir: %w", err)
	}

	dst = FinalPath(dst, tier)
	switch tier {
	case router.TierReady:
		if err := copyFile(src, dst); err != nil {
			return Outcome{}, fmt.Errorf("place finished copy: %w", err)
		}
	case router.TierUpscale2x, router.TierUpscale4x:
		if c.upscaler == nil {
			return Outcome{}, fmt.Errorf("no upscaler configured for %s", tier)
		}
		if err := c.upscaler.Upscale(src, dst, tier.Factor()); err != nil {
			return Outcome{}, fmt.Errorf("upscale %dx: %w", tier.Factor(), err)
		}
	default:
		return Outcome{}, fmt.Errorf("unknown tier %d", tier)
	}

	out := Outcome{OutputPath: dst}
	if c.faceEnhance && c.restorer != nil {
		if err := c.restorer.Restore(dst); err != nil {
			c.log.Warn().Err(err).Str("file", filepath.Base(dst)).Msg("face restoration failed, keeping unrestored output")
		} else {
			out.FaceRestored = true
		}
	}
	return out, nil
}

// FinalPath tells where Enhance will write for the given tier before
// calling it. Upscaled output is always JPEG whatever the source was.
func FinalPath(dst string, tier router.Tier) string {
	if tier == router.TierUpscale2x || tier == router.TierUpscale4x {
		return forceExt(dst, ".jpg")
	}
	return dst
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func forceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
