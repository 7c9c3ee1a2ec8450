// Package pipeline drives media items from the acquisition directory to
// the finished dataset: dedup, frame extraction with a blur gate, person
// filtering, quality routing, and enhancement, with per-item failure
// isolation. One Run owns all the mutable state of one invocation, so
// several runs can coexist in a process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/datasetpipe/catalog"
	"github.com/lepinkainen/datasetpipe/dedup"
	"github.com/lepinkainen/datasetpipe/enhance"
	"github.com/lepinkainen/datasetpipe/frames"
	"github.com/lepinkainen/datasetpipe/gate"
	"github.com/lepinkainen/datasetpipe/router"
	"github.com/lepinkainen/datasetpipe/source"
)

// Options carries the external collaborators of a run. Detector may be
// nil when the person filter is disabled; Upscaler and Restorer may be
// nil when no item will need them.
type Options struct {
	Detector gate.Detector
	Upscaler enhance.Upscaler
	Restorer enhance.FaceRestorer
	Log      zerolog.Logger
	// Registerer overrides the private metrics registry, for callers
	// that aggregate metrics across runs.
	Registerer prometheus.Registerer
}

// Run is the state of one pipeline invocation.
type Run struct {
	id  string
	cfg Config
	log zerolog.Logger

	registry  *catalog.Registry
	index     *dedup.Index
	router    *router.Router
	gate      *gate.Gate
	extractor *frames.Extractor
	enhancer  *enhance.Coordinator
	scanner   *source.Scanner

	counters *Counters
	metrics  *Metrics
	workDir  string
}

func NewRun(cfg Config, opts Options) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt, err := router.New(cfg.MinResolutionNoUpscale, cfg.MinResolution2xUpscale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	g, err := gate.New(cfg.EnablePersonFilter, cfg.MinPersonRatio, cfg.DetectionConfidence, opts.Detector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(cfg.OutputDir, ".work")
	}

	var metrics *Metrics
	if opts.Registerer != nil {
		metrics = MustNewMetrics(opts.Registerer)
	} else {
		metrics = NewMetrics()
	}

	return &Run{
		id:        uuid.New().String(),
		cfg:       cfg,
		log:       opts.Log.With().Str("component", "pipeline").Logger(),
		registry:  catalog.NewRegistry(),
		index:     dedup.NewIndex(cfg.DupThreshold),
		router:    rt,
		gate:      g,
		extractor: frames.NewExtractor(cfg.FrameMode, cfg.FrameOffset, cfg.FrameInterval, opts.Log),
		enhancer:  enhance.NewCoordinator(opts.Upscaler, opts.Restorer, cfg.FaceEnhance, opts.Log),
		scanner:   source.NewScanner(cfg.InputDir, cfg.MaxItems, opts.Log),
		counters:  NewCounters(),
		metrics:   metrics,
		workDir:   workDir,
	}, nil
}

func (r *Run) ID() string { return r.id }

// Counters exposes the live progress state for progress bars and
// dashboards. Read it through Snapshot.
func (r *Run) Counters() *Counters { return r.counters }

// Execute performs the whole run. The returned snapshot is final; the
// manifest has been written when Execute returns, even on cancellation,
// covering whatever finished by then.
func (r *Run) Execute(ctx context.Context) (Snapshot, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		return r.counters.Snapshot(), fmt.Errorf("create output dir: %w", err)
	}
	if err := os.MkdirAll(r.workDir, 0755); err != nil {
		return r.counters.Snapshot(), fmt.Errorf("create work dir: %w", err)
	}

	records, err := r.scanner.Scan(ctx)
	if err != nil {
		return r.counters.Snapshot(), fmt.Errorf("scan input: %w", err)
	}
	r.counters.Scanned.Store(int64(len(records)))
	r.log.Info().Int("items", len(records)).Str("input", r.cfg.InputDir).Msg("scan complete")

	runErr := r.process(ctx, records)

	if err := r.writeArtifacts(); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			r.log.Error().Err(err).Msg("writing artifacts after failed run")
		}
	}

	snap := r.counters.Snapshot()
	r.log.Info().
		Int64("finalized", snap.Finalized).
		Str("elapsed", snap.Elapsed.Round(time.Millisecond).String()).
		Msg("run finished")
	return snap, runErr
}

// process connects the ingest pool to the processing pool through a
// bounded queue. A full queue blocks ingest, not processing.
func (r *Run) process(ctx context.Context, records []source.Record) error {
	g, gctx := errgroup.WithContext(ctx)
	procQ := make(chan catalog.Item, 2*r.cfg.ParallelProcessing)

	g.Go(func() error {
		defer close(procQ)
		return r.ingest(gctx, records, procQ)
	})

	for i := 0; i < r.cfg.ParallelProcessing; i++ {
		g.Go(func() error {
			for it := range procQ {
				// Cancellation is observed between items, never mid-item.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if err := r.processItem(gctx, it); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// ingest registers scanned records and feeds them to the processing
// pool. Reading the capture timestamp is real I/O, so it runs on its own
// pool sized by ParallelDownloads.
func (r *Run) ingest(ctx context.Context, records []source.Record, procQ chan<- catalog.Item) error {
	g, gctx := errgroup.WithContext(ctx)
	feed := make(chan source.Record)

	g.Go(func() error {
		defer close(feed)
		for _, rec := range records {
			select {
			case feed <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < r.cfg.ParallelDownloads; i++ {
		g.Go(func() error {
			for rec := range feed {
				it, err := r.acquire(rec)
				if err != nil {
					return err
				}
				select {
				case procQ <- it:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func (r *Run) acquire(rec source.Record) (catalog.Item, error) {
	it := catalog.Item{
		ID:         uuid.New().String(),
		Kind:       rec.Kind,
		SourcePath: rec.Path,
		Size:       rec.Size,
		CapturedAt: source.CaptureTime(rec.Path, rec.ModTime),
	}
	if err := r.registry.Register(it); err != nil {
		return catalog.Item{}, fmt.Errorf("register %s: %w", rec.Path, err)
	}

	r.counters.Downloaded.Add(1)
	switch rec.Kind {
	case catalog.KindImage:
		r.counters.Images.Add(1)
	case catalog.KindVideo:
		r.counters.Videos.Add(1)
	}
	r.log.Debug().Str("id", it.ID).Str("path", rec.Path).Str("kind", string(rec.Kind)).Msg("item registered")
	return it, nil
}

// processItem drives one source item through its whole journey. Only
// pipeline bugs and cancellation come back as errors; whatever is wrong
// with the item itself ends as a terminal rejection and the run goes on.
func (r *Run) processItem(ctx context.Context, it catalog.Item) error {
	r.metrics.IncActive()
	defer r.metrics.DecActive()
	defer r.counters.Completed.Add(1)

	switch it.Kind {
	case catalog.KindImage:
		return r.imageJourney(it)
	case catalog.KindVideo:
		return r.videoJourney(ctx, it)
	default:
		return fmt.Errorf("item %s has unknown kind %q", it.ID, it.Kind)
	}
}

// imageJourney takes an image from Raw to a terminal state: dedup,
// person gate, quality routing, enhancement, finalize. Video frames
// re-enter here after passing the blur gate.
func (r *Run) imageJourney(it catalog.Item) error {
	width, height, cont, err := r.dedupStage(it)
	if err != nil || !cont {
		return err
	}
	if cont, err = r.gateStage(it); err != nil || !cont {
		return err
	}
	tier, cont, err := r.routeStage(it, width, height)
	if err != nil || !cont {
		return err
	}
	return r.finishStage(it, tier)
}

// videoJourney dedups the video by its preview frame, extracts candidate
// frames, and sends each surviving frame through the image journey in
// ascending timestamp order. The video itself finalizes once extraction
// is done; its frames are its products.
func (r *Run) videoJourney(ctx context.Context, it catalog.Item) error {
	if err := frames.ValidateVideoIntegrity(it.SourcePath); err != nil {
		return r.reject(it, catalog.RejectCorrupt, err.Error())
	}

	cont, err := r.dedupVideo(it)
	if err != nil || !cont {
		return err
	}

	extracted, cont, err := r.extractStage(ctx, it)
	if err != nil || !cont {
		return err
	}

	for _, frame := range extracted {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.processFrame(it, frame); err != nil {
			return err
		}
	}
	return nil
}

// dedupStage hashes the image and offers it to the index. cont reports
// whether the item survived and the journey should continue.
func (r *Run) dedupStage(it catalog.Item) (width, height int, cont bool, err error) {
	done := r.metrics.StageTimer("dedup")

	hash, width, height, err := dedup.HashFile(it.SourcePath)
	if err != nil {
		done("rejected")
		return 0, 0, false, r.reject(it, catalog.RejectCorrupt, fmt.Sprintf("unreadable image: %v", err))
	}
	if err := r.registry.RecordHash(it.ID, hash.GetHash()); err != nil {
		done("error")
		return 0, 0, false, err
	}
	if err := r.registry.RecordDimensions(it.ID, width, height); err != nil {
		done("error")
		return 0, 0, false, err
	}

	decision, err := r.index.Consider(it.ID, hash, dedup.Quality(width, height, it.Size), r.evictRepresentative)
	if err != nil {
		done("error")
		return 0, 0, false, err
	}
	if decision.Verdict == dedup.VerdictDuplicate {
		done("rejected")
		return 0, 0, false, r.reject(it, catalog.RejectDuplicate,
			fmt.Sprintf("kept %s (distance %d)", decision.Winner, decision.Distance))
	}

	cont, err = r.advance(it.ID, catalog.StageDeduplicated, dedupNote(decision))
	if err != nil {
		done("error")
		return 0, 0, false, err
	}
	if !cont {
		done("rejected")
		return 0, 0, false, nil
	}
	done("ok")
	return width, height, true, nil
}

// dedupVideo is the dedup stage for videos: the index sees the
// perception hash of the deterministic preview frame, so a re-encoded
// copy of the same clip lands in the same neighborhood.
func (r *Run) dedupVideo(it catalog.Item) (bool, error) {
	done := r.metrics.StageTimer("dedup")

	previewDir := filepath.Join(r.workDir, "previews")
	if err := os.MkdirAll(previewDir, 0755); err != nil {
		done("error")
		return false, fmt.Errorf("create preview dir: %w", err)
	}
	preview, err := frames.ExtractPreviewFrame(it.SourcePath, previewDir)
	if err != nil {
		done("rejected")
		return false, r.reject(it, catalog.RejectCorrupt, fmt.Sprintf("no preview frame: %v", err))
	}
	hash, width, height, err := dedup.HashFile(preview)
	removeQuietly(preview, r.log)
	if err != nil {
		done("rejected")
		return false, r.reject(it, catalog.RejectCorrupt, fmt.Sprintf("unreadable preview frame: %v", err))
	}
	if err := r.registry.RecordHash(it.ID, hash.GetHash()); err != nil {
		done("error")
		return false, err
	}
	if err := r.registry.RecordDimensions(it.ID, width, height); err != nil {
		done("error")
		return false, err
	}

	decision, err := r.index.Consider(it.ID, hash, dedup.Quality(width, height, it.Size), r.evictRepresentative)
	if err != nil {
		done("error")
		return false, err
	}
	if decision.Verdict == dedup.VerdictDuplicate {
		done("rejected")
		return false, r.reject(it, catalog.RejectDuplicate,
			fmt.Sprintf("kept %s (distance %d)", decision.Winner, decision.Distance))
	}

	cont, err := r.advance(it.ID, catalog.StageDeduplicated, dedupNote(decision))
	if err != nil {
		done("error")
		return false, err
	}
	if !cont {
		done("rejected")
		return false, nil
	}
	done("ok")
	return true, nil
}

func dedupNote(d dedup.Decision) string {
	if d.Verdict == dedup.VerdictReplaces {
		return fmt.Sprintf("replaced %s (distance %d)", d.Loser, d.Distance)
	}
	return "new neighborhood"
}

// extractStage pulls candidate frames and finalizes the video. The
// finalize happens before any frame is registered: a terminal video can
// no longer lose a dedup race, so frames of an evicted video are never
// produced.
func (r *Run) extractStage(ctx context.Context, it catalog.Item) ([]frames.Frame, bool, error) {
	done := r.metrics.StageTimer("extract")

	outDir := filepath.Join(r.workDir, "frames", it.ID)
	extracted, err := r.extractor.Extract(ctx, it.SourcePath, outDir)
	if err != nil {
		if ctx.Err() != nil {
			done("error")
			return nil, false, ctx.Err()
		}
		done("rejected")
		return nil, false, r.reject(it, catalog.RejectCorrupt, fmt.Sprintf("frame extraction: %v", err))
	}

	cont, err := r.advance(it.ID, catalog.StageFrameExtracted, fmt.Sprintf("%d frames", len(extracted)))
	if err == nil && cont {
		cont, err = r.advance(it.ID, catalog.StageFinalized, "frames handed off")
	}
	if err != nil {
		done("error")
		return nil, false, err
	}
	if !cont {
		// The video lost its neighborhood while extracting; its frames
		// must never enter the pipeline.
		if rmErr := os.RemoveAll(outDir); rmErr != nil {
			r.log.Warn().Err(rmErr).Str("dir", outDir).Msg("cleanup failed")
		}
		done("rejected")
		return nil, false, nil
	}

	r.counters.FramesExtracted.Add(int64(len(extracted)))
	done("ok")
	r.log.Debug().Str("id", it.ID).Int("frames", len(extracted)).Msg("video extracted")
	return extracted, true, nil
}

// processFrame registers one extracted frame, applies the blur gate, and
// sends survivors through the image journey.
func (r *Run) processFrame(parent catalog.Item, frame frames.Frame) error {
	it := catalog.Item{
		ID:          uuid.New().String(),
		Kind:        catalog.KindImage,
		SourcePath:  frame.Path,
		CapturedAt:  parent.CapturedAt.Add(time.Duration(frame.Timestamp * float64(time.Second))),
		DerivedFrom: parent.ID,
		FrameIndex:  frame.Index,
	}
	if info, err := os.Stat(frame.Path); err == nil {
		it.Size = info.Size()
	}
	if err := r.registry.Register(it); err != nil {
		return fmt.Errorf("register frame %d of %s: %w", frame.Index, parent.ID, err)
	}

	done := r.metrics.StageTimer("blur_gate")
	score, err := frames.SharpnessFile(frame.Path)
	if err != nil {
		done("rejected")
		return r.reject(it, catalog.RejectCorrupt, fmt.Sprintf("unreadable frame: %v", err))
	}
	if err := r.registry.RecordSharpness(it.ID, score); err != nil {
		done("error")
		return err
	}
	if score < r.cfg.BlurThreshold {
		done("rejected")
		return r.reject(it, catalog.RejectBlurry,
			fmt.Sprintf("sharpness %.1f below %.1f", score, r.cfg.BlurThreshold))
	}
	done("ok")

	return r.imageJourney(it)
}

func (r *Run) gateStage(it catalog.Item) (bool, error) {
	done := r.metrics.StageTimer("gate")

	res, err := r.gate.Check(it.SourcePath)
	if err != nil {
		// A flaky detector run must not kill the pipeline: the image
		// already decoded fine at the dedup stage, so treat the failure
		// as zero detections.
		r.log.Warn().Err(err).Str("id", it.ID).Msg("detector failed, treating as no person")
		res = gate.Result{}
	}
	if !res.Accepted {
		done("rejected")
		return false, r.reject(it, catalog.RejectNoPerson,
			fmt.Sprintf("persons=%d best_ratio=%.3f", res.Persons, res.BestRatio))
	}

	note := "filter disabled"
	if r.gate.Enabled() {
		if err := r.registry.RecordPersonRatio(it.ID, res.BestRatio); err != nil {
			done("error")
			return false, err
		}
		note = fmt.Sprintf("persons=%d best_ratio=%.3f", res.Persons, res.BestRatio)
	}

	cont, err := r.advance(it.ID, catalog.StagePersonFiltered, note)
	if err != nil {
		done("error")
		return false, err
	}
	if !cont {
		done("rejected")
		return false, nil
	}
	done("ok")
	return true, nil
}

func (r *Run) routeStage(it catalog.Item, width, height int) (router.Tier, bool, error) {
	done := r.metrics.StageTimer("route")

	tier := r.router.Route(width, height)
	if err := r.registry.RecordTier(it.ID, tier.String()); err != nil {
		done("error")
		return tier, false, err
	}

	cont, err := r.advance(it.ID, catalog.StageQualityRouted,
		fmt.Sprintf("%s (min edge %d)", tier, min(width, height)))
	if err != nil {
		done("error")
		return tier, false, err
	}
	if !cont {
		done("rejected")
		return tier, false, nil
	}
	done("ok")
	return tier, true, nil
}

// finishStage enhances the image into the output directory and
// finalizes it.
func (r *Run) finishStage(it catalog.Item, tier router.Tier) error {
	done := r.metrics.StageTimer("enhance")

	dst := filepath.Join(r.cfg.OutputDir, outputName(it))
	outcome, err := r.enhancer.Enhance(it.SourcePath, dst, tier)
	if err != nil {
		removeQuietly(enhance.FinalPath(dst, tier), r.log)
		done("rejected")
		return r.reject(it, catalog.RejectEnhancementFailed, err.Error())
	}

	cont, err := r.advance(it.ID, catalog.StageEnhanced, tier.String())
	if err != nil {
		done("error")
		return err
	}
	if !cont {
		// Lost to a better copy while the enhancer ran; the output has
		// no owner anymore.
		removeQuietly(outcome.OutputPath, r.log)
		done("rejected")
		return nil
	}

	checksum, err := FileChecksum(outcome.OutputPath)
	if err != nil {
		done("rejected")
		return r.reject(it, catalog.RejectEnhancementFailed, fmt.Sprintf("checksum output: %v", err))
	}
	if err := r.registry.RecordOutput(it.ID, outcome.OutputPath, checksum, outcome.FaceRestored); err != nil {
		done("error")
		return err
	}

	cont, err = r.advance(it.ID, catalog.StageFinalized, "")
	if err != nil {
		done("error")
		return err
	}
	if !cont {
		removeQuietly(outcome.OutputPath, r.log)
		done("rejected")
		return nil
	}

	r.counters.Finalized.Add(1)
	r.metrics.IncFinalized()
	if outcome.FaceRestored {
		r.counters.FacesEnhanced.Add(1)
	}
	switch tier {
	case router.TierReady:
		r.counters.NoUpscaleNeeded.Add(1)
	case router.TierUpscale2x:
		r.counters.Upscaled2x.Add(1)
	case router.TierUpscale4x:
		r.counters.Upscaled4x.Add(1)
	}
	done("ok")
	r.log.Debug().Str("id", it.ID).Str("output", outcome.OutputPath).Str("tier", tier.String()).Msg("item finalized")
	return nil
}

// advance moves an item forward, tolerating one specific race: a
// concurrent eviction can terminate the item between stages, in which
// case the journey just stops. Any other refusal is a pipeline bug.
func (r *Run) advance(id string, to catalog.Stage, note string) (bool, error) {
	err := r.registry.Advance(id, to, note)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, catalog.ErrInvalidTransition) {
		if cur, gerr := r.registry.Get(id); gerr == nil &&
			cur.Stage == catalog.StageRejected && cur.Reason == catalog.RejectDuplicate {
			return false, nil
		}
	}
	return false, err
}

// reject moves an item to its terminal state, counts it, and applies the
// file cleanup policy. Losing the rejection race to a concurrent
// eviction is fine; any other refusal is a registry bug.
func (r *Run) reject(it catalog.Item, reason catalog.RejectReason, note string) error {
	if err := r.registry.Reject(it.ID, reason, note); err != nil {
		if cur, gerr := r.registry.Get(it.ID); gerr == nil && cur.Stage == catalog.StageRejected {
			return nil
		}
		return err
	}

	r.metrics.IncRejection(string(reason))
	switch reason {
	case catalog.RejectDuplicate:
		r.counters.DuplicatesRemoved.Add(1)
	case catalog.RejectBlurry:
		r.counters.DiscardedBlurry.Add(1)
	case catalog.RejectNoPerson:
		r.counters.FilteredNoPerson.Add(1)
	case catalog.RejectCorrupt:
		r.counters.Corrupt.Add(1)
	case catalog.RejectEnhancementFailed:
		r.counters.EnhancementFailed.Add(1)
	}

	r.log.Debug().Str("id", it.ID).Str("reason", string(reason)).Str("note", note).Msg("item rejected")
	r.cleanupRejected(it, reason)
	return nil
}

// cleanupRejected deletes files that will never be used again. Derived
// frames always go. Source downloads go only when the content itself is
// unwanted; corrupt or enhancement-failed sources stay on disk for
// diagnosis.
func (r *Run) cleanupRejected(it catalog.Item, reason catalog.RejectReason) {
	if it.Derived() {
		removeQuietly(it.SourcePath, r.log)
		return
	}
	switch reason {
	case catalog.RejectDuplicate, catalog.RejectNoPerson, catalog.RejectBlurry:
		removeQuietly(it.SourcePath, r.log)
	}
}

// evictRepresentative retro-rejects a representative that lost its spot
// to a better copy. The index calls this with its lock held; an error
// means the old item is already finalized and keeps the spot.
func (r *Run) evictRepresentative(oldID string) error {
	old, err := r.registry.Get(oldID)
	if err != nil {
		return err
	}
	return r.reject(old, catalog.RejectDuplicate, "superseded by higher quality copy")
}

func (r *Run) writeArtifacts() error {
	manifest := BuildManifest(r.id, r.registry.All(), r.counters.Snapshot())
	manifestPath := filepath.Join(r.cfg.OutputDir, "manifest.json")
	if err := manifest.Write(manifestPath); err != nil {
		return err
	}
	r.log.Info().Str("path", manifestPath).Int("items", len(manifest.Items)).Msg("manifest written")

	if err := r.metrics.WriteTextfile(filepath.Join(r.cfg.OutputDir, "metrics.prom")); err != nil {
		r.log.Warn().Err(err).Msg("metrics dump failed")
	}

	if r.cfg.CleanupIntermediate {
		if err := os.RemoveAll(r.workDir); err != nil {
			r.log.Warn().Err(err).Str("dir", r.workDir).Msg("work dir cleanup failed")
		}
	}
	return nil
}

// outputName gives finished files a collision-free name: the first
// block of the item id plus the source basename.
func outputName(it catalog.Item) string {
	id := it.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return id + "_" + filepath.Base(it.SourcePath)
}

func removeQuietly(path string, log zerolog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("cleanup failed")
	}
}
