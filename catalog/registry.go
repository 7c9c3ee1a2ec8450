package catalog

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrUnknownItem is returned for IDs the registry has never seen.
	ErrUnknownItem = errors.New("catalog: unknown item")

	// ErrInvalidTransition marks a stage move the lifecycle forbids.
	// Hitting it means a pipeline bug, not a bad input file.
	ErrInvalidTransition = errors.New("catalog: invalid transition")

	// ErrAlreadyRecorded marks a second write to a write-once measurement.
	ErrAlreadyRecorded = errors.New("catalog: measurement already recorded")
)

// Registry holds every item of a run, keyed by ID. All methods are safe
// for concurrent use; readers always see items either before or after a
// transition, never mid-change.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Item
	order []string
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Item)}
}

// Register adds a new item in StageRaw. The item must carry a non-empty,
// unused ID.
func (r *Registry) Register(it Item) error {
	if it.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownItem)
	}
	if it.Kind != KindImage && it.Kind != KindVideo {
		return fmt.Errorf("register %s: unknown kind %q", it.ID, it.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[it.ID]; exists {
		return fmt.Errorf("register %s: id already in use", it.ID)
	}
	it.Stage = StageRaw
	it.History = []TransitionRecord{{Stage: StageRaw, At: time.Now()}}
	r.items[it.ID] = &it
	r.order = append(r.order, it.ID)
	return nil
}

// Advance moves an item forward to a non-terminal-entry stage or to
// StageFinalized. Moves backward, moves from a terminal stage, and moves
// onto a stage the item's kind never visits all fail with
// ErrInvalidTransition.
func (r *Registry) Advance(id string, to Stage, note string) error {
	if to == StageRejected {
		return fmt.Errorf("%w: use Reject for rejections", ErrInvalidTransition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if err := validateAdvance(it, to); err != nil {
		return err
	}
	it.Stage = to
	it.History = append(it.History, TransitionRecord{Stage: to, Note: note, At: time.Now()})
	return nil
}

// Reject moves an item to the terminal StageRejected with a reason.
func (r *Registry) Reject(id string, reason RejectReason, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if it.Stage.Terminal() {
		return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, id, it.Stage)
	}
	it.Stage = StageRejected
	it.Reason = reason
	it.History = append(it.History, TransitionRecord{Stage: StageRejected, Reason: reason, Note: note, At: time.Now()})
	return nil
}

func validateAdvance(it *Item, to Stage) error {
	if it.Stage.Terminal() {
		return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, it.ID, it.Stage)
	}
	if to <= it.Stage {
		return fmt.Errorf("%w: %s cannot move %s → %s", ErrInvalidTransition, it.ID, it.Stage, to)
	}
	switch to {
	case StageFrameExtracted:
		if it.Kind != KindVideo {
			return fmt.Errorf("%w: %s is not a video", ErrInvalidTransition, it.ID)
		}
	case StagePersonFiltered, StageQualityRouted, StageEnhanced:
		if it.Kind != KindImage {
			return fmt.Errorf("%w: %s is not an image", ErrInvalidTransition, it.ID)
		}
	}
	return nil
}

// Get returns a copy of the item. Mutating the copy does not touch the
// registry.
func (r *Registry) Get(id string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return it.clone(), nil
}

// All returns copies of every item in registration order.
func (r *Registry) All() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Item, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id].clone())
	}
	return out
}

// ByStage returns copies of the items currently in stage s, in
// registration order.
func (r *Registry) ByStage(s Stage) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Item
	for _, id := range r.order {
		if it := r.items[id]; it.Stage == s {
			out = append(out, it.clone())
		}
	}
	return out
}

// Len is the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// RecordHash stores the perceptual hash computed during deduplication.
func (r *Registry) RecordHash(id string, hash uint64) error {
	return r.record(id, func(it *Item) error {
		if it.PerceptualHash != 0 {
			return fmt.Errorf("%w: hash of %s", ErrAlreadyRecorded, id)
		}
		it.PerceptualHash = hash
		return nil
	})
}

// RecordDimensions stores decoded pixel dimensions.
func (r *Registry) RecordDimensions(id string, width, height int) error {
	return r.record(id, func(it *Item) error {
		if it.Width != 0 || it.Height != 0 {
			return fmt.Errorf("%w: dimensions of %s", ErrAlreadyRecorded, id)
		}
		it.Width, it.Height = width, height
		return nil
	})
}

// RecordSharpness stores the focus score of an extracted frame.
func (r *Registry) RecordSharpness(id string, score float64) error {
	return r.record(id, func(it *Item) error {
		if it.Sharpness != 0 {
			return fmt.Errorf("%w: sharpness of %s", ErrAlreadyRecorded, id)
		}
		it.Sharpness = score
		return nil
	})
}

// RecordPersonRatio stores the best person area ratio the gate saw.
func (r *Registry) RecordPersonRatio(id string, ratio float64) error {
	return r.record(id, func(it *Item) error {
		if it.PersonRatio != 0 {
			return fmt.Errorf("%w: person ratio of %s", ErrAlreadyRecorded, id)
		}
		it.PersonRatio = ratio
		return nil
	})
}

// RecordTier stores the routing decision.
func (r *Registry) RecordTier(id string, tier string) error {
	return r.record(id, func(it *Item) error {
		if it.Tier != "" {
			return fmt.Errorf("%w: tier of %s", ErrAlreadyRecorded, id)
		}
		it.Tier = tier
		return nil
	})
}

// RecordOutput stores the finished file location and its checksum.
func (r *Registry) RecordOutput(id, path string, checksum uint32, faceRestored bool) error {
	return r.record(id, func(it *Item) error {
		if it.OutputPath != "" {
			return fmt.Errorf("%w: output of %s", ErrAlreadyRecorded, id)
		}
		it.OutputPath = path
		it.Checksum = checksum
		it.FaceRestored = faceRestored
		return nil
	})
}

func (r *Registry) record(id string, apply func(*Item) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return apply(it)
}
