package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lepinkainen/datasetpipe/pipeline"
	"github.com/lepinkainen/datasetpipe/ui"
)

// VerifyCmd re-checks the checksums recorded in a finished dataset's
// manifest against the files on disk, catching corruption or tampering
// after the fact.
type VerifyCmd struct {
	Dir string `arg:"" name:"dir" help:"Dataset directory containing manifest.json" type:"existingdir"`
}

// Run loads the manifest and recomputes the CRC32 of every output file.
func (cmd *VerifyCmd) Run() error {
	manifest, err := pipeline.ReadManifest(filepath.Join(cmd.Dir, "manifest.json"))
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	fmt.Printf("%s\n", ui.InfoStyle.Render(
		fmt.Sprintf("Verifying %d entries from run %s...", len(manifest.Items), manifest.RunID)))

	var verified, failed, skipped int
	for _, entry := range manifest.Items {
		if entry.Checksum == "" {
			// Videos finish by handing frames off, they have no output
			// file of their own.
			skipped++
			continue
		}

		sum, err := pipeline.FileChecksum(entry.OutputPath)
		if err != nil {
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %v", entry.OutputPath, err)))
			failed++
			continue
		}

		if strings.EqualFold(entry.Checksum, fmt.Sprintf("%08X", sum)) {
			fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ %s", entry.OutputPath)))
			verified++
		} else {
			fmt.Printf("%s\n", ui.ErrorStyle.Render(
				fmt.Sprintf("❌ %s (expected: %s, got: %08X)", entry.OutputPath, entry.Checksum, sum)))
			failed++
		}
	}

	fmt.Printf("\n%s\n", ui.InfoStyle.Render(
		fmt.Sprintf("✅ Verified: %d, ❌ Failed: %d, skipped: %d", verified, failed, skipped)))
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed verification", failed, len(manifest.Items))
	}
	return nil
}
