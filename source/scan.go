// Package source feeds the pipeline from the acquisition area on disk.
// Downloading itself happens upstream; this adapter discovers what the
// downloader left behind and describes it.
package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lepinkainen/datasetpipe/catalog"
	"github.com/lepinkainen/datasetpipe/utils"
)

// Record is one media file offered to the pipeline.
type Record struct {
	Kind    catalog.Kind
	Path    string
	Size    int64
	ModTime time.Time
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp"}
var videoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

// IsImageFile checks the extension against the supported image formats.
func IsImageFile(path string) bool {
	return hasExtension(path, imageExtensions)
}

// IsVideoFile checks the extension against the supported video formats.
func IsVideoFile(path string) bool {
	return hasExtension(path, videoExtensions)
}

// KindFor classifies a path, reporting false for files the pipeline
// does not handle.
func KindFor(path string) (catalog.Kind, bool) {
	switch {
	case IsImageFile(path):
		return catalog.KindImage, true
	case IsVideoFile(path):
		return catalog.KindVideo, true
	default:
		return "", false
	}
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Scanner lists acquired media under Root in deterministic path order.
type Scanner struct {
	Root     string
	MaxItems int // 0 means no cap
	log      zerolog.Logger
}

func NewScanner(root string, maxItems int, log zerolog.Logger) *Scanner {
	return &Scanner{
		Root:     root,
		MaxItems: maxItems,
		log:      log.With().Str("component", "source").Logger(),
	}
}

// Scan returns a record for every media file under Root, sorted by path
// and capped at MaxItems.
func (s *Scanner) Scan(ctx context.Context) ([]Record, error) {
	if _, err := os.Stat(s.Root); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	paths, err := s.findMediaFiles()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.Root, err)
	}
	sort.Strings(paths)

	if s.MaxItems > 0 && len(paths) > s.MaxItems {
		s.log.Info().Int("found", len(paths)).Int("cap", s.MaxItems).Msg("applying item cap")
		paths = paths[:s.MaxItems]
	}

	records := make([]Record, 0, len(paths))
	for _, p := range paths {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		info, err := os.Stat(p)
		if err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("file vanished during scan")
			continue
		}
		kind, _ := KindFor(p)
		records = append(records, Record{Kind: kind, Path: p, Size: info.Size(), ModTime: info.ModTime()})
	}
	return records, nil
}

// findMediaFiles prefers fd for speed on local disks and falls back to
// filepath.WalkDir everywhere else.
func (s *Scanner) findMediaFiles() ([]string, error) {
	if isFdAvailable() && !utils.IsNetworkDrive(s.Root) {
		if files, err := s.findWithFd(); err == nil {
			return files, nil
		}
		// fd can fail on exotic mounts; the walk always works.
	}
	return s.findWithWalkDir()
}

func isFdAvailable() bool {
	_, err := exec.LookPath("fd")
	return err == nil
}

func (s *Scanner) findWithFd() ([]string, error) {
	extensions := make([]string, 0, len(imageExtensions)+len(videoExtensions))
	for _, ext := range imageExtensions {
		extensions = append(extensions, strings.TrimPrefix(ext, "."))
	}
	for _, ext := range videoExtensions {
		extensions = append(extensions, strings.TrimPrefix(ext, "."))
	}
	extPattern := "\\." + strings.Join(extensions, "$|\\.") + "$"

	cmd := exec.Command("fd", extPattern, "--type", "f", "--ignore-case", s.Root)
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		if _, ok := KindFor(line); ok {
			files = append(files, line)
		}
	}
	return files, nil
}

func (s *Scanner) findWithWalkDir() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := KindFor(path); ok {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
