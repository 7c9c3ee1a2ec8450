package enhance

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lepinkainen/datasetpipe/router"
)

// fakeUpscaler records its calls and writes a marker file as output.
type fakeUpscaler struct {
	calls  int
	src    string
	dst    string
	factor int
	err    error
}

func (f *fakeUpscaler) Upscale(src, dst string, factor int) error {
	f.calls++
	f.src, f.dst, f.factor = src, dst, factor
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dst, []byte("upscaled"), 0644)
}

type fakeRestorer struct {
	calls int
	err   error
}

func (f *fakeRestorer) Restore(string) error {
	f.calls++
	return f.err
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}
	return path
}

func TestEnhanceReadyTierCopies(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "photo.png", "original bytes")
	dst := filepath.Join(dir, "out", "photo.png")

	up := &fakeUpscaler{}
	c := NewCoordinator(up, nil, false, zerolog.Nop())

	out, err := c.Enhance(src, dst, router.TierReady)
	if err != nil {
		t.Fatalf("Enhance() error = %v", err)
	}
	if out.OutputPath != dst {
		t.Errorf("OutputPath = %q, expected %q", out.OutputPath, dst)
	}
	if up.calls != 0 {
		t.Error("ready tier called the upscaler")
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "original bytes" {
		t.Errorf("output content = %q, expected passthrough copy", data)
	}
}

func TestEnhanceUpscaleTiers(t *testing.T) {
	tests := []struct {
		name   string
		tier   router.Tier
		factor int
	}{
		{"2x", router.TierUpscale2x, 2},
		{"4x", router.TierUpscale4x, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := writeSource(t, dir, "photo.png", "small")
			dst := filepath.Join(dir, "out", "photo.png")

			up := &fakeUpscaler{}
			c := NewCoordinator(up, nil, false, zerolog.Nop())

			out, err := c.Enhance(src, dst, tt.tier)
			if err != nil {
				t.Fatalf("Enhance() error = %v", err)
			}
			if up.calls != 1 || up.factor != tt.factor {
				t.Errorf("upscaler called %d times with factor %d, expected once with %d", up.calls, up.factor, tt.factor)
			}
			if !strings.HasSuffix(out.OutputPath, ".jpg") {
				t.Errorf("upscaled output %q should be a .jpg", out.OutputPath)
			}
			if up.src != src {
				t.Errorf("upscaler src = %q, expected %q", up.src, src)
			}
		})
	}
}

func TestEnhanceUpscaleFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "photo.png", "small")

	up := &fakeUpscaler{err: errors.New("vulkan device lost")}
	c := NewCoordinator(up, nil, false, zerolog.Nop())

	if _, err := c.Enhance(src, filepath.Join(dir, "out", "photo.png"), router.TierUpscale4x); err == nil {
		t.Error("Enhance() expected error when upscaler fails, got nil")
	}
}

func TestEnhanceNoUpscalerConfigured(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "photo.png", "small")

	c := NewCoordinator(nil, nil, false, zerolog.Nop())
	if _, err := c.Enhance(src, filepath.Join(dir, "photo.png"), router.TierUpscale2x); err == nil {
		t.Error("Enhance() expected error without an upscaler, got nil")
	}
}

func TestEnhanceFaceRestoration(t *testing.T) {
	t.Run("success marks outcome", func(t *testing.T) {
		dir := t.TempDir()
		src := writeSource(t, dir, "photo.png", "bytes")
		fr := &fakeRestorer{}
		c := NewCoordinator(&fakeUpscaler{}, fr, true, zerolog.Nop())

		out, err := c.Enhance(src, filepath.Join(dir, "out", "photo.png"), router.TierReady)
		if err != nil {
			t.Fatalf("Enhance() error = %v", err)
		}
		if fr.calls != 1 {
			t.Errorf("restorer called %d times, expected 1", fr.calls)
		}
		if !out.FaceRestored {
			t.Error("FaceRestored = false after successful restore")
		}
	})

	t.Run("failure degrades without error", func(t *testing.T) {
		dir := t.TempDir()
		src := writeSource(t, dir, "photo.png", "bytes")
		fr := &fakeRestorer{err: errors.New("no cuda")}
		c := NewCoordinator(&fakeUpscaler{}, fr, true, zerolog.Nop())

		out, err := c.Enhance(src, filepath.Join(dir, "out", "photo.png"), router.TierReady)
		if err != nil {
			t.Fatalf("Enhance() error = %v, restoration failures must not fail the item", err)
		}
		if out.FaceRestored {
			t.Error("FaceRestored = true after failed restore")
		}
		if _, statErr := os.Stat(out.OutputPath); statErr != nil {
			t.Errorf("output file missing after degraded restore: %v", statErr)
		}
	})

	t.Run("disabled leaves restorer alone", func(t *testing.T) {
		dir := t.TempDir()
		src := writeSource(t, dir, "photo.png", "bytes")
		fr := &fakeRestorer{}
		c := NewCoordinator(&fakeUpscaler{}, fr, false, zerolog.Nop())

		if _, err := c.Enhance(src, filepath.Join(dir, "out", "photo.png"), router.TierReady); err != nil {
			t.Fatalf("Enhance() error = %v", err)
		}
		if fr.calls != 0 {
			t.Errorf("restorer called %d times with face enhance off", fr.calls)
		}
	})
}

func TestForceExt(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/out/photo.png", "/out/photo.jpg"},
		{"/out/photo.jpg", "/out/photo.jpg"},
		{"/out/archive.tar.webp", "/out/archive.tar.jpg"},
		{"/out/noext", "/out/noext.jpg"},
	}
	for _, tt := range tests {
		if got := forceExt(tt.path, ".jpg"); got != tt.want {
			t.Errorf("forceExt(%q) = %q, expected %q", tt.path, got, tt.want)
		}
	}
}
