// Package router decides how much enhancement an image needs before it
// can join the final dataset. Routing is a pure function of decoded
// dimensions and the two configured resolution thresholds.
package router

import "fmt"

// Tier is the enhancement class an image is routed to.
type Tier int

const (
	// TierReady needs no upscaling, only placement.
	TierReady Tier = iota
	// TierUpscale2x doubles the resolution.
	TierUpscale2x
	// TierUpscale4x quadruples the resolution.
	TierUpscale4x
)

func (t Tier) String() string {
	switch t {
	case TierReady:
		return "ready"
	case TierUpscale2x:
		return "upscale_2x"
	case TierUpscale4x:
		return "upscale_4x"
	}
	return "unknown"
}

// Factor is the linear scale the tier applies.
func (t Tier) Factor() int {
	switch t {
	case TierUpscale2x:
		return 2
	case TierUpscale4x:
		return 4
	}
	return 1
}

// Router maps image dimensions onto tiers. The zero value is not usable;
// construct with New so the threshold ordering is checked once up front.
type Router struct {
	noUpscaleMin int
	upscale2xMin int
}

// New builds a Router. noUpscaleMin is the shorter-side resolution at or
// above which an image ships as-is; upscale2xMin the resolution at or
// above which 2x suffices. Anything below gets 4x.
func New(noUpscaleMin, upscale2xMin int) (*Router, error) {
	if upscale2xMin <= 0 {
		return nil, fmt.Errorf("router: 2x threshold must be positive, got %d", upscale2xMin)
	}
	if noUpscaleMin <= upscale2xMin {
		return nil, fmt.Errorf("router: no-upscale threshold %d must exceed 2x threshold %d", noUpscaleMin, upscale2xMin)
	}
	return &Router{noUpscaleMin: noUpscaleMin, upscale2xMin: upscale2xMin}, nil
}

// Route picks the tier for an image from its shorter side.
func (r *Router) Route(width, height int) Tier {
	edge := width
	if height < edge {
		edge = height
	}
	switch {
	case edge >= r.noUpscaleMin:
		return TierReady
	case edge >= r.upscale2xMin:
		return TierUpscale2x
	default:
		return TierUpscale4x
	}
}
