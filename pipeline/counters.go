package pipeline

import (
	"sync/atomic"
	"time"
)

// Counters is the live progress state of a run. Workers update the
// fields atomically; anything may read a consistent Snapshot at any
// time without stopping the run.
type Counters struct {
	started time.Time

	Scanned           atomic.Int64
	Downloaded        atomic.Int64
	Images            atomic.Int64
	Videos            atomic.Int64
	Completed         atomic.Int64
	DuplicatesRemoved atomic.Int64
	FramesExtracted   atomic.Int64
	DiscardedBlurry   atomic.Int64
	FilteredNoPerson  atomic.Int64
	Corrupt           atomic.Int64
	NoUpscaleNeeded   atomic.Int64
	Upscaled2x        atomic.Int64
	Upscaled4x        atomic.Int64
	FacesEnhanced     atomic.Int64
	EnhancementFailed atomic.Int64
	Finalized         atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{started: time.Now()}
}

// Snapshot is a point-in-time copy of the counters.
// Scanned is the number of source files the run will ingest; Completed
// tracks source items whose whole journey has finished, so
// Completed/Scanned is the natural progress fraction.
type Snapshot struct {
	Scanned           int64
	Downloaded        int64
	Images            int64
	Videos            int64
	Completed         int64
	DuplicatesRemoved int64
	FramesExtracted   int64
	DiscardedBlurry   int64
	FilteredNoPerson  int64
	Corrupt           int64
	NoUpscaleNeeded   int64
	Upscaled2x        int64
	Upscaled4x        int64
	FacesEnhanced     int64
	EnhancementFailed int64
	Finalized         int64
	Elapsed           time.Duration
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Scanned:           c.Scanned.Load(),
		Downloaded:        c.Downloaded.Load(),
		Images:            c.Images.Load(),
		Videos:            c.Videos.Load(),
		Completed:         c.Completed.Load(),
		DuplicatesRemoved: c.DuplicatesRemoved.Load(),
		FramesExtracted:   c.FramesExtracted.Load(),
		DiscardedBlurry:   c.DiscardedBlurry.Load(),
		FilteredNoPerson:  c.FilteredNoPerson.Load(),
		Corrupt:           c.Corrupt.Load(),
		NoUpscaleNeeded:   c.NoUpscaleNeeded.Load(),
		Upscaled2x:        c.Upscaled2x.Load(),
		Upscaled4x:        c.Upscaled4x.Load(),
		FacesEnhanced:     c.FacesEnhanced.Load(),
		EnhancementFailed: c.EnhancementFailed.Load(),
		Finalized:         c.Finalized.Load(),
		Elapsed:           time.Since(c.started),
	}
}

// Stats flattens the snapshot into the name/value form the manifest
// records.
func (s Snapshot) Stats() map[string]int64 {
	return map[string]int64{
		"scanned":            s.Scanned,
		"downloaded":         s.Downloaded,
		"images":             s.Images,
		"videos":             s.Videos,
		"duplicates_removed": s.DuplicatesRemoved,
		"frames_extracted":   s.FramesExtracted,
		"discarded_blurry":   s.DiscardedBlurry,
		"filtered_no_person": s.FilteredNoPerson,
		"corrupt":            s.Corrupt,
		"no_upscale_needed":  s.NoUpscaleNeeded,
		"upscaled_2x":        s.Upscaled2x,
		"upscaled_4x":        s.Upscaled4x,
		"faces_enhanced":     s.FacesEnhanced,
		"enhancement_failed": s.EnhancementFailed,
		"final_count":        s.Finalized,
	}
}
