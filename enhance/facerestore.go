package enhance

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// FaceTool runs a CodeFormer-style face restoration command line and
// writes the result back over the input image.
type FaceTool struct {
	Binary string
	Weight float64 // fidelity/quality balance passed as -w
	log    zerolog.Logger
}

func NewFaceTool(binary string, weight float64, log zerolog.Logger) *FaceTool {
	if binary == "" {
		binary = "codeformer"
	}
	if weight <= 0 {
		weight = 0.7
	}
	return &FaceTool{
		Binary: binary,
		Weight: weight,
		log:    log.With().Str("component", "faces").Logger(),
	}
}

// Restore runs the face tool on path and replaces it with the restored
// version.
func (f *FaceTool) Restore(path string) error {
	// Keeping scratch space next to the target makes the final rename a
	// same-filesystem move.
	outDir, err := os.MkdirTemp(filepath.Dir(path), "faces-")
	if err != nil {
		return fmt.Errorf("create restore dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	cmd := exec.Command(f.Binary,
		"-i", path,
		"-o", outDir,
		"-w", fmt.Sprintf("%.2f", f.Weight),
		"--face_upsample",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", f.Binary, err, lastLine(output))
	}

	base := filepath.Base(path)
	restored, err := findRestored(outDir, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return err
	}

	if filepath.Ext(restored) == filepath.Ext(path) {
		return os.Rename(restored, path)
	}
	// The tool switched formats; re-encode into the original extension.
	img, err := imaging.Open(restored)
	if err != nil {
		return fmt.Errorf("decode restored image: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("save restored image: %w", err)
	}
	f.log.Debug().Str("file", base).Msg("restored image re-encoded")
	return nil
}

// findRestored locates the output image for stem under dir. Restoration
// tools differ in output layout, so the whole tree is searched.
func findRestored(dir, stem string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == stem {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan restore output: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("no restored image for %s", stem)
	}
	return found, nil
}
