package pipeline

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"time"

	"github.com/lepinkainen/datasetpipe/catalog"
)

// ManifestEntry describes one finalized item. Video entries carry no
// output of their own; their products are the frame entries pointing
// back at them through DerivedFrom.
type ManifestEntry struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	SourcePath   string    `json:"source_path"`
	DerivedFrom  string    `json:"derived_from,omitempty"`
	FrameIndex   int       `json:"frame_index,omitempty"`
	OutputPath   string    `json:"output_path,omitempty"`
	Tier         string    `json:"tier,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	FaceRestored bool      `json:"face_restored,omitempty"`
	FinalizedAt  time.Time `json:"finalized_at"`
	History      []string  `json:"history"`
}

// Manifest is the durable artifact of a run: what made it into the
// dataset, with enough history to audit every decision.
type Manifest struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Elapsed     string           `json:"elapsed"`
	Stats       map[string]int64 `json:"stats"`
	Items       []ManifestEntry  `json:"items"`
}

// BuildManifest collects the finalized items, ordered by finalization
// time. A cancelled run produces a partial but valid manifest this way.
func BuildManifest(runID string, items []catalog.Item, snap Snapshot) Manifest {
	entries := make([]ManifestEntry, 0, len(items))
	for i := range items {
		it := &items[i]
		if it.Stage != catalog.StageFinalized {
			continue
		}
		entries = append(entries, ManifestEntry{
			ID:           it.ID,
			Kind:         string(it.Kind),
			SourcePath:   it.SourcePath,
			DerivedFrom:  it.DerivedFrom,
			FrameIndex:   it.FrameIndex,
			OutputPath:   it.OutputPath,
			Tier:         it.Tier,
			Checksum:     formatChecksum(it.Checksum, it.OutputPath),
			FaceRestored: it.FaceRestored,
			FinalizedAt:  finalizedAt(it),
			History:      historyLines(it.History),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].FinalizedAt.Equal(entries[j].FinalizedAt) {
			return entries[i].FinalizedAt.Before(entries[j].FinalizedAt)
		}
		return entries[i].ID < entries[j].ID
	})

	return Manifest{
		RunID:       runID,
		GeneratedAt: time.Now(),
		Elapsed:     snap.Elapsed.Round(time.Millisecond).String(),
		Stats:       snap.Stats(),
		Items:       entries,
	}
}

func (m Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}

// FileChecksum calculates the CRC32 checksum of a file.
func FileChecksum(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}

	return h.Sum32(), nil
}

// formatChecksum prints checksums the way the filenames of tagged
// archives do, eight uppercase hex digits. Items without an output file
// have no checksum.
func formatChecksum(sum uint32, outputPath string) string {
	if outputPath == "" {
		return ""
	}
	return fmt.Sprintf("%08X", sum)
}

func finalizedAt(it *catalog.Item) time.Time {
	for i := len(it.History) - 1; i >= 0; i-- {
		if it.History[i].Stage == catalog.StageFinalized {
			return it.History[i].At
		}
	}
	return time.Time{}
}

func historyLines(records []catalog.TransitionRecord) []string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line := rec.Stage.String()
		if rec.Reason != "" {
			line = fmt.Sprintf("%s(%s)", line, rec.Reason)
		}
		if rec.Note != "" {
			line = fmt.Sprintf("%s: %s", line, rec.Note)
		}
		lines = append(lines, fmt.Sprintf("%s @ %s", line, rec.At.UTC().Format(time.RFC3339Nano)))
	}
	return lines
}
