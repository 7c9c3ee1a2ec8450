package gate

import (
	"errors"
	"testing"
)

// stubDetector returns canned detections and records whether it was called.
type stubDetector struct {
	detections []Detection
	err        error
	called     bool
}

func (s *stubDetector) Detect(string) ([]Detection, error) {
	s.called = true
	return s.detections, s.err
}

func TestCheckAcceptancePolicy(t *testing.T) {
	tests := []struct {
		name       string
		minRatio   float64
		minConf    float64
		detections []Detection
		accepted   bool
		persons    int
	}{
		{
			name:       "prominent person accepted",
			minRatio:   0.05,
			minConf:    0.5,
			detections: []Detection{{Class: 0, Label: "person", Confidence: 0.9, AreaRatio: 0.3}},
			accepted:   true,
			persons:    1,
		},
		{
			name:       "person too small",
			minRatio:   0.05,
			minConf:    0.5,
			detections: []Detection{{Class: 0, Confidence: 0.9, AreaRatio: 0.04}},
			accepted:   false,
			persons:    1,
		},
		{
			name:       "exactly at ratio threshold",
			minRatio:   0.05,
			minConf:    0.5,
			detections: []Detection{{Class: 0, Confidence: 0.9, AreaRatio: 0.05}},
			accepted:   true,
			persons:    1,
		},
		{
			name:       "no detections at all",
			minRatio:   0.05,
			minConf:    0.5,
			detections: nil,
			accepted:   false,
			persons:    0,
		},
		{
			name:     "only non-person classes",
			minRatio: 0.05,
			minConf:  0.5,
			detections: []Detection{
				{Class: 16, Label: "dog", Confidence: 0.9, AreaRatio: 0.5},
				{Class: 2, Label: "car", Confidence: 0.8, AreaRatio: 0.7},
			},
			accepted: false,
			persons:  0,
		},
		{
			name:       "low confidence person ignored",
			minRatio:   0.05,
			minConf:    0.5,
			detections: []Detection{{Class: 0, Confidence: 0.3, AreaRatio: 0.4}},
			accepted:   false,
			persons:    0,
		},
		{
			name:     "largest of several persons decides",
			minRatio: 0.05,
			minConf:  0.5,
			detections: []Detection{
				{Class: 0, Confidence: 0.6, AreaRatio: 0.01},
				{Class: 0, Confidence: 0.7, AreaRatio: 0.02},
				{Class: 0, Confidence: 0.8, AreaRatio: 0.06},
			},
			accepted: true,
			persons:  3,
		},
		{
			name:       "zero ratio threshold still needs a person",
			minRatio:   0,
			minConf:    0.5,
			detections: nil,
			accepted:   false,
			persons:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(true, tt.minRatio, tt.minConf, &stubDetector{detections: tt.detections})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			res, err := g.Check("photo.jpg")
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if res.Accepted != tt.accepted {
				t.Errorf("Accepted = %v, expected %v", res.Accepted, tt.accepted)
			}
			if res.Persons != tt.persons {
				t.Errorf("Persons = %d, expected %d", res.Persons, tt.persons)
			}
		})
	}
}

func TestDisabledGateSkipsDetector(t *testing.T) {
	stub := &stubDetector{detections: nil}
	g, err := New(false, 0.05, 0.5, stub)
	if err != nil {
		t.Fatal(err)
	}

	res, err := g.Check("photo.jpg")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.Accepted {
		t.Error("disabled gate rejected an image")
	}
	if stub.called {
		t.Error("disabled gate called the detector")
	}
}

func TestDisabledGateAllowsNilDetector(t *testing.T) {
	g, err := New(false, 0.05, 0.5, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := g.Check("photo.jpg")
	if err != nil || !res.Accepted {
		t.Errorf("Check() = %+v, %v, expected accept with no error", res, err)
	}
}

func TestEnabledGateRequiresDetector(t *testing.T) {
	if _, err := New(true, 0.05, 0.5, nil); err == nil {
		t.Error("New(enabled, nil detector) expected error, got nil")
	}
}

func TestCheckPropagatesDetectorErrors(t *testing.T) {
	wantErr := errors.New("inference crashed")
	g, err := New(true, 0.05, 0.5, &stubDetector{err: wantErr})
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Check("photo.jpg")
	if !errors.Is(err, wantErr) {
		t.Errorf("Check() error = %v, expected wrapped %v", err, wantErr)
	}
}
