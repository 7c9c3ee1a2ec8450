// Package frames turns videos into still images: it probes streams with
// ffprobe, extracts frames with ffmpeg, and scores frame focus so blurry
// extractions never reach the rest of the pipeline.
package frames

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var resolutionRegex = regexp.MustCompile(`^(\d+)x(\d+)$`)

// GetVideoResolution reads the width and height of the first video
// stream using ffprobe.
func GetVideoResolution(videoFile string) (int, int, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height", "-of", "csv=s=x:p=0", "--", videoFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, 0, fmt.Errorf("probe resolution: %w: %s", err, firstLine(output))
	}

	// Some containers report one line per stream; the first is the one
	// we asked for.
	parts := strings.SplitN(string(output), "\n", 2)
	resolution := strings.TrimSuffix(strings.TrimSpace(parts[0]), "x")

	m := resolutionRegex.FindStringSubmatch(resolution)
	if m == nil {
		return 0, 0, fmt.Errorf("probe resolution: unexpected output %q", resolution)
	}
	width, _ := strconv.Atoi(m[1])
	height, _ := strconv.Atoi(m[2])
	return width, height, nil
}

// GetVideoDuration reads the container duration in seconds using ffprobe.
func GetVideoDuration(videoFile string) (float64, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-show_entries",
		"format=duration", "-of", "default=noprint_wrappers=1:nokey=1", "--", videoFile)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return seconds, nil
}

// ValidateVideoIntegrity checks whether a video file is readable at all.
// A returned error means the file cannot be used as a frame source.
func ValidateVideoIntegrity(filePath string) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}

	// A minimal probe validates the container structure without decoding.
	cmd := exec.Command("ffprobe", "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", "--", filePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputStr := string(output)
		if strings.Contains(outputStr, "moov atom not found") {
			return fmt.Errorf("corrupted video (missing metadata): %s", firstLine(output))
		}
		if strings.Contains(outputStr, "Invalid data found") ||
			strings.Contains(outputStr, "corrupt") ||
			strings.Contains(outputStr, "truncated") ||
			strings.Contains(outputStr, "Invalid argument") {
			return fmt.Errorf("corrupted or invalid video: %s", firstLine(output))
		}
		return fmt.Errorf("probe failed: %w: %s", err, firstLine(output))
	}
	return nil
}

// firstLine trims command output down to its first non-empty line.
func firstLine(output []byte) string {
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return "no output"
}
