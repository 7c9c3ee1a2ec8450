package frames

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Sharpness scores image focus as the variance of the 3x3 Laplacian
// response over the grayscale image. Heavy blur flattens local contrast,
// driving the response and its variance toward zero.
func Sharpness(img image.Image) float64 {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	// After Grayscale the R channel carries the luma.
	lum := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	var sum, sumSq float64
	n := float64((w - 2) * (h - 2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := lum(x, y-1) + lum(x, y+1) + lum(x-1, y) + lum(x+1, y) - 4*lum(x, y)
			sum += v
			sumSq += v * v
		}
	}

	mean := sum / n
	return sumSq/n - mean*mean
}

// SharpnessFile scores an image on disk.
func SharpnessFile(path string) (float64, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return Sharpness(img), nil
}
