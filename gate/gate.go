// Package gate filters images by person presence. The detector itself is
// an external collaborator behind the Detector interface; the gate only
// applies the acceptance policy to what the detector reports.
package gate

import "fmt"

// PersonClass is the detector class index for people.
const PersonClass = 0

// Detection is one object a detector found in an image. AreaRatio is the
// bounding box area divided by the image area, in [0,1].
type Detection struct {
	Class      int
	Label      string
	Confidence float64
	AreaRatio  float64
}

// Detector finds objects in an image file.
type Detector interface {
	Detect(imagePath string) ([]Detection, error)
}

// Result is the gate's verdict on one image.
type Result struct {
	Accepted bool
	// BestRatio is the largest qualifying person area ratio seen.
	BestRatio float64
	// Persons counts detections that passed the class and confidence
	// checks, whatever their size.
	Persons int
}

// Gate accepts images that show at least one person covering MinRatio of
// the frame with at least MinConfidence.
type Gate struct {
	enabled       bool
	minRatio      float64
	minConfidence float64
	detector      Detector
}

// New builds a Gate. A disabled gate accepts everything and never calls
// the detector, which may then be nil.
func New(enabled bool, minRatio, minConfidence float64, detector Detector) (*Gate, error) {
	if enabled && detector == nil {
		return nil, fmt.Errorf("gate: enabled without a detector")
	}
	return &Gate{
		enabled:       enabled,
		minRatio:      minRatio,
		minConfidence: minConfidence,
		detector:      detector,
	}, nil
}

// Enabled reports whether the gate consults the detector at all.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Check runs the acceptance policy on one image.
func (g *Gate) Check(imagePath string) (Result, error) {
	if !g.enabled {
		return Result{Accepted: true}, nil
	}

	detections, err := g.detector.Detect(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("detect %s: %w", imagePath, err)
	}

	var res Result
	for _, d := range detections {
		if d.Class != PersonClass || d.Confidence < g.minConfidence {
			continue
		}
		res.Persons++
		if d.AreaRatio > res.BestRatio {
			res.BestRatio = d.AreaRatio
		}
	}
	res.Accepted = res.Persons > 0 && res.BestRatio >= g.minRatio
	return res, nil
}
