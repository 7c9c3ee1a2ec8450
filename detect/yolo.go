// Package detect runs person detection through the ultralytics command
// line. The model runs out of process; this adapter builds the prediction
// command, parses the label files it leaves behind, and serializes calls
// because GPU inference does not take concurrent callers well.
package detect

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lepinkainen/datasetpipe/gate"
)

// Options holds configuration for the YOLO adapter.
type Options struct {
	Binary     string  // detector executable
	Model      string  // weights name, e.g. yolov8n.pt
	Confidence float64 // minimum confidence passed to the CLI
	ScratchDir string  // where prediction runs may write
}

// DefaultOptions returns the stock ultralytics setup.
func DefaultOptions() Options {
	return Options{
		Binary:     "yolo",
		Model:      "yolov8n.pt",
		Confidence: 0.5,
	}
}

// YOLO shells out to the ultralytics CLI for each image. Implements
// gate.Detector.
type YOLO struct {
	mu   sync.Mutex
	opts Options
	log  zerolog.Logger
}

func NewYOLO(opts Options, log zerolog.Logger) *YOLO {
	if opts.Binary == "" {
		opts.Binary = "yolo"
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	return &YOLO{opts: opts, log: log.With().Str("component", "detect").Logger()}
}

// Detect runs one prediction and returns everything the model saw.
func (y *YOLO) Detect(imagePath string) ([]gate.Detection, error) {
	// One prediction at a time.
	y.mu.Lock()
	defer y.mu.Unlock()

	runDir, err := os.MkdirTemp(y.opts.ScratchDir, "yolo-")
	if err != nil {
		return nil, fmt.Errorf("create prediction dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(runDir) }()

	cmd := exec.Command(y.opts.Binary, buildPredictArgs(y.opts, imagePath, runDir)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("yolo predict: %w: %s", err, firstLine(out))
	}

	detections, err := ParseLabelFile(labelPath(runDir, imagePath))
	if err != nil {
		return nil, err
	}
	y.log.Debug().
		Str("image", filepath.Base(imagePath)).
		Int("detections", len(detections)).
		Msg("prediction complete")
	return detections, nil
}

// buildPredictArgs assembles the CLI arguments for one prediction run.
func buildPredictArgs(opts Options, imagePath, runDir string) []string {
	return []string{
		"predict",
		"model=" + opts.Model,
		"source=" + imagePath,
		fmt.Sprintf("conf=%g", opts.Confidence),
		"save=False",    // no annotated copies
		"save_txt=True", // label files are the machine-readable output
		"save_conf=True",
		"project=" + runDir,
		"name=pred",
		"exist_ok=True",
		"verbose=False",
	}
}

// labelPath is where the CLI writes labels for one source image.
func labelPath(runDir, imagePath string) string {
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(runDir, "pred", "labels", stem+".txt")
}

// ParseLabelFile reads detections in the YOLO label format: one
// "class x_center y_center width height [confidence]" line per object,
// all coordinates normalized to [0,1]. A missing file means the model
// found nothing.
func ParseLabelFile(path string) ([]gate.Detection, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer func() { _ = f.Close() }()

	var detections []gate.Detection
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d, err := parseLabelLine(line)
		if err != nil {
			return nil, fmt.Errorf("labels %s: %w", filepath.Base(path), err)
		}
		detections = append(detections, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return detections, nil
}

func parseLabelLine(line string) (gate.Detection, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 && len(fields) != 6 {
		return gate.Detection{}, fmt.Errorf("malformed label line %q", line)
	}

	class, err := strconv.Atoi(fields[0])
	if err != nil {
		return gate.Detection{}, fmt.Errorf("class in %q: %w", line, err)
	}
	var nums [4]float64
	for i := range nums {
		nums[i], err = strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return gate.Detection{}, fmt.Errorf("coordinate in %q: %w", line, err)
		}
	}
	conf := 1.0
	if len(fields) == 6 {
		conf, err = strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return gate.Detection{}, fmt.Errorf("confidence in %q: %w", line, err)
		}
	}

	d := gate.Detection{
		Class:      class,
		Confidence: conf,
		AreaRatio:  nums[2] * nums[3], // normalized width × height
	}
	if class == gate.PersonClass {
		d.Label = "person"
	}
	return d, nil
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
