package enhance

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRealESRGANBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		modelDir string
		factor   int
		want     []string
		wantErr  bool
	}{
		{
			name:   "4x uses configured model",
			factor: 4,
			want:   []string{"-i", "in.png", "-o", "out.jpg", "-n", "realesrgan-x4plus", "-s", "4", "-f", "jpg"},
		},
		{
			name:   "2x swaps to matching weights",
			factor: 2,
			want:   []string{"-i", "in.png", "-o", "out.jpg", "-n", "realesrgan-x2plus", "-s", "2", "-f", "jpg"},
		},
		{
			name:     "model dir appended",
			modelDir: "/opt/models",
			factor:   4,
			want:     []string{"-i", "in.png", "-o", "out.jpg", "-n", "realesrgan-x4plus", "-s", "4", "-f", "jpg", "-m", "/opt/models"},
		},
		{
			name:    "unsupported factor",
			factor:  3,
			wantErr: true,
		},
		{
			name:    "passthrough factor is not the upscaler's job",
			factor:  1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRealESRGAN("", "", tt.modelDir, zerolog.Nop())
			args, err := r.buildArgs("in.png", "out.jpg", tt.factor)
			if tt.wantErr {
				if err == nil {
					t.Errorf("buildArgs() expected error, got %v", args)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildArgs() error = %v", err)
			}
			if strings.Join(args, " ") != strings.Join(tt.want, " ") {
				t.Errorf("args = %v, expected %v", args, tt.want)
			}
		})
	}
}

func TestNewRealESRGANDefaults(t *testing.T) {
	r := NewRealESRGAN("", "", "", zerolog.Nop())
	if r.Binary != "realesrgan-ncnn-vulkan" {
		t.Errorf("Binary = %q, expected realesrgan-ncnn-vulkan", r.Binary)
	}
	if r.Model4x != "realesrgan-x4plus" {
		t.Errorf("Model4x = %q, expected realesrgan-x4plus", r.Model4x)
	}
}

func TestUpscaleMissingBinary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	if err := os.WriteFile(src, []byte("img"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRealESRGAN("definitely-not-an-installed-upscaler", "", "", zerolog.Nop())
	if err := r.Upscale(src, filepath.Join(dir, "out.jpg"), 4); err == nil {
		t.Error("Upscale() expected error for missing binary, got nil")
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"single line", "boom", "boom"},
		{"progress then error", "10%\n50%\nvkQueueSubmit failed\n", "vkQueueSubmit failed"},
		{"trailing blanks", "error here\n\n\n", "error here"},
		{"empty", "", "no output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastLine([]byte(tt.output)); got != tt.want {
				t.Errorf("lastLine(%q) = %q, expected %q", tt.output, got, tt.want)
			}
		})
	}
}
