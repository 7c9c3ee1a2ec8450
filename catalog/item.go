// Package catalog tracks every media item a run has seen and the stage
// each one is in. The registry is the single source of truth for item
// state; processing stages read from it and record their outcomes back
// through it.
package catalog

import "time"

// Kind tells which path an item takes through the pipeline.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Stage is one step of an item's journey. Stages are ordered: items only
// ever move to a higher stage, though kind-specific paths skip stages
// that do not apply to them.
type Stage int

const (
	StageRaw Stage = iota
	StageDeduplicated
	StageFrameExtracted
	StagePersonFiltered
	StageQualityRouted
	StageEnhanced
	StageFinalized
	StageRejected
)

var stageNames = map[Stage]string{
	StageRaw:            "raw",
	StageDeduplicated:   "deduplicated",
	StageFrameExtracted: "frame_extracted",
	StagePersonFiltered: "person_filtered",
	StageQualityRouted:  "quality_routed",
	StageEnhanced:       "enhanced",
	StageFinalized:      "finalized",
	StageRejected:       "rejected",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions are allowed from s.
func (s Stage) Terminal() bool {
	return s == StageFinalized || s == StageRejected
}

// RejectReason says why an item left the pipeline early.
type RejectReason string

const (
	RejectDuplicate         RejectReason = "duplicate"
	RejectBlurry            RejectReason = "blurry"
	RejectNoPerson          RejectReason = "no_person"
	RejectEnhancementFailed RejectReason = "enhancement_failed"
	RejectCorrupt           RejectReason = "corrupt"
)

// TransitionRecord is one history entry. Reason is only set when the
// transition entered StageRejected.
type TransitionRecord struct {
	Stage  Stage
	Reason RejectReason
	Note   string
	At     time.Time
}

// Item is one unit of media moving through the pipeline. Frames extracted
// from a video are items of their own, with DerivedFrom pointing back at
// the parent video.
type Item struct {
	ID          string
	Kind        Kind
	SourcePath  string
	Size        int64
	CapturedAt  time.Time
	DerivedFrom string
	FrameIndex  int

	Stage   Stage
	Reason  RejectReason
	History []TransitionRecord

	// Measurements, each written once by the stage that computes it.
	PerceptualHash uint64
	Width          int
	Height         int
	Sharpness      float64
	PersonRatio    float64
	Tier           string
	OutputPath     string
	Checksum       uint32
	FaceRestored   bool
}

// Derived reports whether the item was produced by the pipeline itself
// rather than acquired from the source.
func (it *Item) Derived() bool {
	return it.DerivedFrom != ""
}

// MinEdge is the shorter image side, the measure quality routing works on.
func (it *Item) MinEdge() int {
	if it.Width < it.Height {
		return it.Width
	}
	return it.Height
}

func (it *Item) clone() Item {
	cp := *it
	cp.History = make([]TransitionRecord, len(it.History))
	copy(cp.History, it.History)
	return cp
}
