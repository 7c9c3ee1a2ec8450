package source

import (
	"os"
	"time"

	"github.com/evanoberholster/imagemeta"
)

// CaptureTime reads the capture timestamp from an image's EXIF data,
// preferring DateTimeOriginal over CreateDate over ModifyDate. Videos
// and images without usable EXIF get the fallback, which callers
// normally set to the file's modification time.
func CaptureTime(path string, fallback time.Time) time.Time {
	if !IsImageFile(path) {
		return fallback
	}

	file, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		return fallback
	}

	if !exifData.DateTimeOriginal().IsZero() {
		return exifData.DateTimeOriginal()
	}
	if !exifData.CreateDate().IsZero() {
		return exifData.CreateDate()
	}
	if !exifData.ModifyDate().IsZero() {
		return exifData.ModifyDate()
	}
	return fallback
}
