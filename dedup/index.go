// Package dedup groups perceptually similar media and keeps exactly one
// copy of each group: the best-quality one seen so far.
package dedup

import (
	"fmt"
	"sync"

	"github.com/corona10/goimagehash"
)

// Verdict is the outcome of offering an item to the index.
type Verdict int

const (
	// VerdictNew means the item opened a new neighborhood and survives.
	VerdictNew Verdict = iota
	// VerdictDuplicate means an equal-or-better copy already represents
	// the neighborhood; the offered item loses.
	VerdictDuplicate
	// VerdictReplaces means the offered item displaced an inferior
	// representative, which has been evicted.
	VerdictReplaces
)

func (v Verdict) String() string {
	switch v {
	case VerdictNew:
		return "new"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictReplaces:
		return "replaces"
	}
	return "unknown"
}

// Decision reports what happened to an offered item. Winner is the
// neighborhood representative after the decision; Loser is the item that
// lost, empty for VerdictNew. Distance is the Hamming distance to the
// matched representative, -1 when nothing matched.
type Decision struct {
	Verdict  Verdict
	Winner   string
	Loser    string
	Distance int
}

type entry struct {
	id      string
	hash    *goimagehash.ImageHash
	quality float64
}

// Index holds one representative per neighborhood. Two hashes within
// Hamming distance threshold of each other belong to the same
// neighborhood. Safe for concurrent use.
type Index struct {
	mu        sync.Mutex
	threshold int
	entries   []entry
}

func NewIndex(threshold int) *Index {
	return &Index{threshold: threshold}
}

// Threshold returns the Hamming distance at or under which two hashes
// count as the same shot.
func (x *Index) Threshold() int {
	return x.threshold
}

// Len is the number of neighborhoods seen so far.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// Consider offers an item to the index and decides its fate atomically.
//
// When the item beats the current representative of its neighborhood,
// evict is called with the old representative's ID while the index lock
// is held, so no third item can slip in between the eviction and the
// swap. If evict returns an error the old representative keeps its spot
// and the offered item loses instead; either way exactly one member of
// the neighborhood survives.
func (x *Index) Consider(id string, hash *goimagehash.ImageHash, quality float64, evict func(oldID string) error) (Decision, error) {
	if hash == nil {
		return Decision{}, fmt.Errorf("dedup: nil hash for %s", id)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i := range x.entries {
		e := &x.entries[i]
		dist, err := e.hash.Distance(hash)
		if err != nil {
			return Decision{}, fmt.Errorf("dedup: comparing %s against %s: %w", id, e.id, err)
		}
		if dist > x.threshold {
			continue
		}

		if quality > e.quality {
			if evict != nil {
				if evictErr := evict(e.id); evictErr != nil {
					// The old copy is already settled; the newcomer loses.
					return Decision{Verdict: VerdictDuplicate, Winner: e.id, Loser: id, Distance: dist}, nil
				}
			}
			dec := Decision{Verdict: VerdictReplaces, Winner: id, Loser: e.id, Distance: dist}
			e.id, e.hash, e.quality = id, hash, quality
			return dec, nil
		}
		return Decision{Verdict: VerdictDuplicate, Winner: e.id, Loser: id, Distance: dist}, nil
	}

	x.entries = append(x.entries, entry{id: id, hash: hash, quality: quality})
	return Decision{Verdict: VerdictNew, Winner: id, Distance: -1}, nil
}
