package catalog

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Item{ID: "a", Kind: KindImage, SourcePath: "/tmp/a.jpg", Size: 123})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	it, err := r.Get("a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if it.Stage != StageRaw {
		t.Errorf("expected StageRaw, got %s", it.Stage)
	}
	if len(it.History) != 1 || it.History[0].Stage != StageRaw {
		t.Errorf("expected one raw history entry, got %+v", it.History)
	}
}

func TestRegisterRejectsBadItems(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{"empty id", Item{Kind: KindImage}},
		{"unknown kind", Item{ID: "x", Kind: Kind("audio")}},
	}

	r := NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.item); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Item{ID: "a", Kind: KindImage}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(Item{ID: "a", Kind: KindImage}); err == nil {
		t.Error("expected error registering duplicate id")
	}
}

func TestImageLifecycle(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Item{ID: "img", Kind: KindImage}); err != nil {
		t.Fatal(err)
	}

	stages := []Stage{StageDeduplicated, StagePersonFiltered, StageQualityRouted, StageEnhanced, StageFinalized}
	for _, s := range stages {
		if err := r.Advance("img", s, ""); err != nil {
			t.Fatalf("Advance to %s failed: %v", s, err)
		}
	}

	it, _ := r.Get("img")
	if it.Stage != StageFinalized {
		t.Errorf("expected finalized, got %s", it.Stage)
	}
	if len(it.History) != len(stages)+1 {
		t.Errorf("expected %d history entries, got %d", len(stages)+1, len(it.History))
	}
}

func TestVideoLifecycle(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Item{ID: "vid", Kind: KindVideo}); err != nil {
		t.Fatal(err)
	}

	for _, s := range []Stage{StageDeduplicated, StageFrameExtracted, StageFinalized} {
		if err := r.Advance("vid", s, ""); err != nil {
			t.Fatalf("Advance to %s failed: %v", s, err)
		}
	}

	it, _ := r.Get("vid")
	if it.Stage != StageFinalized {
		t.Errorf("expected finalized, got %s", it.Stage)
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		setup []Stage
		to    Stage
	}{
		{"backward move", KindImage, []Stage{StageDeduplicated, StagePersonFiltered}, StageDeduplicated},
		{"same stage", KindImage, []Stage{StageDeduplicated}, StageDeduplicated},
		{"image into frame extraction", KindImage, []Stage{StageDeduplicated}, StageFrameExtracted},
		{"video into person filter", KindVideo, []Stage{StageDeduplicated}, StagePersonFiltered},
		{"video into quality routing", KindVideo, []Stage{StageDeduplicated}, StageQualityRouted},
		{"advance out of finalized", KindImage, []Stage{StageDeduplicated, StagePersonFiltered, StageQualityRouted, StageEnhanced, StageFinalized}, StageFinalized},
		{"advance into rejected", KindImage, nil, StageRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if err := r.Register(Item{ID: "x", Kind: tt.kind}); err != nil {
				t.Fatal(err)
			}
			for _, s := range tt.setup {
				if err := r.Advance("x", s, ""); err != nil {
					t.Fatalf("setup advance to %s failed: %v", s, err)
				}
			}
			err := r.Advance("x", tt.to, "")
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestRejectFromAnyNonTerminalStage(t *testing.T) {
	setups := [][]Stage{
		nil,
		{StageDeduplicated},
		{StageDeduplicated, StagePersonFiltered},
		{StageDeduplicated, StagePersonFiltered, StageQualityRouted},
		{StageDeduplicated, StagePersonFiltered, StageQualityRouted, StageEnhanced},
	}

	for i, setup := range setups {
		t.Run(fmt.Sprintf("from_stage_%d", i), func(t *testing.T) {
			r := NewRegistry()
			if err := r.Register(Item{ID: "x", Kind: KindImage}); err != nil {
				t.Fatal(err)
			}
			for _, s := range setup {
				if err := r.Advance("x", s, ""); err != nil {
					t.Fatal(err)
				}
			}
			if err := r.Reject("x", RejectCorrupt, "test"); err != nil {
				t.Fatalf("Reject failed: %v", err)
			}
			it, _ := r.Get("x")
			if it.Stage != StageRejected || it.Reason != RejectCorrupt {
				t.Errorf("expected rejected/corrupt, got %s/%s", it.Stage, it.Reason)
			}
		})
	}
}

func TestRejectTerminalItemFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Item{ID: "x", Kind: KindImage}); err != nil {
		t.Fatal(err)
	}
	if err := r.Reject("x", RejectDuplicate, ""); err != nil {
		t.Fatal(err)
	}

	if err := r.Reject("x", RejectBlurry, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double reject: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.Advance("x", StageDeduplicated, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance after reject: expected ErrInvalidTransition, got %v", err)
	}
}

func TestUnknownItem(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
	if err := r.Advance("nope", StageDeduplicated, ""); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestMeasurementsWriteOnce(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Item{ID: "x", Kind: KindImage}); err != nil {
		t.Fatal(err)
	}

	if err := r.RecordHash("x", 0xfeed); err != nil {
		t.Fatalf("first RecordHash failed: %v", err)
	}
	if err := r.RecordHash("x", 0xbeef); !errors.Is(err, ErrAlreadyRecorded) {
		t.Errorf("second RecordHash: expected ErrAlreadyRecorded, got %v", err)
	}

	if err := r.RecordDimensions("x", 1920, 1080); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDimensions("x", 10, 10); !errors.Is(err, ErrAlreadyRecorded) {
		t.Errorf("second RecordDimensions: expected ErrAlreadyRecorded, got %v", err)
	}

	it, _ := r.Get("x")
	if it.PerceptualHash != 0xfeed || it.Width != 1920 || it.Height != 1080 {
		t.Errorf("unexpected measurements: %+v", it)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Item{ID: "x", Kind: KindImage}); err != nil {
		t.Fatal(err)
	}

	it, _ := r.Get("x")
	it.Stage = StageFinalized
	it.History = append(it.History, TransitionRecord{Stage: StageFinalized})

	fresh, _ := r.Get("x")
	if fresh.Stage != StageRaw || len(fresh.History) != 1 {
		t.Error("mutating a returned copy changed registry state")
	}
}

func TestByStageAndAll(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 4; i++ {
		if err := r.Register(Item{ID: fmt.Sprintf("i%d", i), Kind: KindImage}); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Advance("i1", StageDeduplicated, ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Advance("i3", StageDeduplicated, ""); err != nil {
		t.Fatal(err)
	}

	deduped := r.ByStage(StageDeduplicated)
	if len(deduped) != 2 || deduped[0].ID != "i1" || deduped[1].ID != "i3" {
		t.Errorf("unexpected ByStage result: %+v", deduped)
	}

	all := r.All()
	if len(all) != 4 || all[0].ID != "i0" || all[3].ID != "i3" {
		t.Errorf("All not in registration order: %+v", all)
	}
	if r.Len() != 4 {
		t.Errorf("Len = %d, want 4", r.Len())
	}
}

func TestConcurrentAdvances(t *testing.T) {
	r := NewRegistry()
	const n = 50
	for i := 0; i < n; i++ {
		if err := r.Register(Item{ID: fmt.Sprintf("i%d", i), Kind: KindImage}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, s := range []Stage{StageDeduplicated, StagePersonFiltered, StageQualityRouted, StageEnhanced, StageFinalized} {
				if err := r.Advance(id, s, ""); err != nil {
					t.Errorf("%s: %v", id, err)
					return
				}
			}
		}(fmt.Sprintf("i%d", i))
	}
	wg.Wait()

	if got := len(r.ByStage(StageFinalized)); got != n {
		t.Errorf("finalized %d items, want %d", got, n)
	}
}
