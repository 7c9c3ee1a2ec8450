package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/datasetpipe/pipeline"
)

// Summary renders the end-of-run numbers as an aligned block. Zero
// rejection rows are dropped so a clean run reads clean.
func Summary(snap pipeline.Snapshot) string {
	var b strings.Builder

	b.WriteString(InfoStyle.Render("Run summary"))
	b.WriteString("\n")

	writeRow := func(label string, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	writeCount := func(label string, value int64, always bool) {
		if value == 0 && !always {
			return
		}
		writeRow(label, fmt.Sprintf("%d", value))
	}

	writeCount("Sources scanned", snap.Scanned, true)
	writeRow("Images / Videos", fmt.Sprintf("%d / %d", snap.Images, snap.Videos))
	writeCount("Frames extracted", snap.FramesExtracted, false)
	writeCount("Duplicates removed", snap.DuplicatesRemoved, false)
	writeCount("Blurry discarded", snap.DiscardedBlurry, false)
	writeCount("No person", snap.FilteredNoPerson, false)
	writeCount("Corrupt", snap.Corrupt, false)
	writeCount("Enhancement failed", snap.EnhancementFailed, false)
	writeCount("Kept as-is", snap.NoUpscaleNeeded, false)
	writeCount("Upscaled 2x", snap.Upscaled2x, false)
	writeCount("Upscaled 4x", snap.Upscaled4x, false)
	writeCount("Faces enhanced", snap.FacesEnhanced, false)
	writeRow("Finalized", SuccessStyle.Render(fmt.Sprintf("%d", snap.Finalized)))
	writeRow("Elapsed", snap.Elapsed.Round(time.Millisecond).String())

	return b.String()
}
