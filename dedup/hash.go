package dedup

import (
	"fmt"
	"path/filepath"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// HashFile decodes an image file and returns its perception hash along
// with the decoded pixel dimensions, which double as the quality score
// input for Consider.
func HashFile(path string) (*goimagehash.ImageHash, int, int, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}

	bounds := img.Bounds()
	return hash, bounds.Dx(), bounds.Dy(), nil
}

// Quality scores a copy for representative selection: decoded pixel area
// when known, file size as the fallback for media probed without a full
// decode.
func Quality(width, height int, fileSize int64) float64 {
	if width > 0 && height > 0 {
		return float64(width) * float64(height)
	}
	return float64(fileSize)
}
