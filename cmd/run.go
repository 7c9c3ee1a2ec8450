package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/lepinkainen/datasetpipe/detect"
	"github.com/lepinkainen/datasetpipe/enhance"
	"github.com/lepinkainen/datasetpipe/frames"
	"github.com/lepinkainen/datasetpipe/gate"
	"github.com/lepinkainen/datasetpipe/pipeline"
	"github.com/lepinkainen/datasetpipe/types"
	"github.com/lepinkainen/datasetpipe/ui"
	"github.com/lepinkainen/datasetpipe/utils"
)

// RunCmd drives the full curation pipeline over one input directory:
// dedup, frame extraction, person filtering, quality routing,
// enhancement, and the manifest at the end.
type RunCmd struct {
	Input   string `help:"Directory holding the acquired media" type:"existingdir" env:"INPUT_DIR" required:""`
	Output  string `help:"Directory for the finished dataset" type:"path" env:"OUTPUT_DIR" required:""`
	WorkDir string `help:"Scratch directory for frames and previews (default: .work inside output)" type:"path" env:"WORK_DIR"`

	DupThreshold  int     `help:"Hamming distance at or under which two items are the same shot (0-64)" default:"8" env:"DUP_THRESHOLD"`
	BlurThreshold float64 `help:"Minimum sharpness score an extracted frame needs to survive" default:"100" env:"BLUR_THRESHOLD"`

	FrameMode     string  `help:"Frame extraction mode: first_only or interval" default:"first_only" env:"FRAME_EXTRACTION_MODE"`
	FrameOffset   float64 `help:"Seek offset in seconds for first_only mode" default:"0" env:"FRAME_OFFSET"`
	FrameInterval float64 `help:"Seconds between samples in interval mode" default:"0.5" env:"FRAME_INTERVAL_SECONDS"`

	EnablePersonFilter  bool    `help:"Keep only images showing a person" default:"true" negatable:"" env:"ENABLE_PERSON_FILTER"`
	MinPersonRatio      float64 `help:"Smallest person bounding box area ratio accepted" default:"0.05" env:"MIN_PERSON_RATIO"`
	DetectionConfidence float64 `help:"Minimum detector confidence" default:"0.5" env:"DETECTION_CONFIDENCE"`
	YoloModel           string  `help:"Detector weights" default:"yolov8n.pt" env:"YOLO_MODEL"`

	MinResolutionNoUpscale int    `help:"Min edge at or above which no upscaling happens" default:"2048" env:"MIN_RESOLUTION_NO_UPSCALE"`
	MinResolution2xUpscale int    `help:"Min edge at or above which 2x upscaling is enough" default:"1024" env:"MIN_RESOLUTION_2X_UPSCALE"`
	UpscaleModel           string `help:"Real-ESRGAN model for the 4x tier" default:"realesrgan-x4plus" env:"UPSCALE_MODEL"`
	ModelDir               string `help:"Directory holding upscaler weights" type:"path" env:"MODEL_DIR"`

	FaceEnhance      bool   `help:"Run face restoration on finished images" default:"true" negatable:"" env:"FACE_ENHANCE"`
	FaceEnhanceModel string `help:"Face restoration tool" default:"codeformer" env:"FACE_ENHANCE_MODEL"`

	ParallelDownloads  int `help:"Ingest worker count" default:"4" env:"PARALLEL_DOWNLOADS"`
	ParallelProcessing int `help:"Processing worker count" default:"4" env:"PARALLEL_PROCESSING"`
	MaxItems           int `help:"Cap on source items entering the run, 0 = all" default:"0" env:"MAX_POSTS"`

	CleanupIntermediate bool `help:"Delete the work directory when the run ends" env:"CLEANUP_INTERMEDIATE"`
	TUI                 bool `help:"Show the live dashboard instead of plain logs"`
}

// Run assembles the pipeline from the flags, checks the external tools,
// and executes until done or interrupted.
func (cmd *RunCmd) Run(app *types.AppContext) error {
	mode, err := frames.ParseMode(cmd.FrameMode)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		InputDir:               cmd.Input,
		OutputDir:              cmd.Output,
		WorkDir:                cmd.WorkDir,
		DupThreshold:           cmd.DupThreshold,
		BlurThreshold:          cmd.BlurThreshold,
		FrameMode:              mode,
		FrameOffset:            cmd.FrameOffset,
		FrameInterval:          cmd.FrameInterval,
		EnablePersonFilter:     cmd.EnablePersonFilter,
		MinPersonRatio:         cmd.MinPersonRatio,
		DetectionConfidence:    cmd.DetectionConfidence,
		MinResolutionNoUpscale: cmd.MinResolutionNoUpscale,
		MinResolution2xUpscale: cmd.MinResolution2xUpscale,
		FaceEnhance:            cmd.FaceEnhance,
		ParallelDownloads:      cmd.ParallelDownloads,
		ParallelProcessing:     cmd.ParallelProcessing,
		MaxItems:               cmd.MaxItems,
		CleanupIntermediate:    cmd.CleanupIntermediate,
	}

	opts, err := cmd.buildCollaborators(&cfg, app.Log)
	if err != nil {
		return err
	}

	run, err := pipeline.NewRun(cfg, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.TUI {
		return runWithDashboard(ctx, run, app.Version)
	}
	return runPlain(ctx, run, app.Version)
}

// buildCollaborators checks the external tools and wires up the ones the
// configuration needs. Hard requirements fail here, before any work;
// optional tools degrade with a warning.
func (cmd *RunCmd) buildCollaborators(cfg *pipeline.Config, log zerolog.Logger) (pipeline.Options, error) {
	if err := utils.ValidateFFmpegDependencies(); err != nil {
		return pipeline.Options{}, err
	}

	if utils.IsNetworkDrive(cfg.InputDir) {
		fmt.Printf("%s\n", ui.WarnStyle.Render(
			"⚠️  input looks like a network mount, scanning and hashing will be slower"))
	}

	var detector gate.Detector
	if cfg.EnablePersonFilter {
		if err := utils.ValidateTool("yolo", "person filtering"); err != nil {
			return pipeline.Options{}, err
		}
		detector = detect.NewYOLO(detect.Options{
			Model:      cmd.YoloModel,
			Confidence: cmd.DetectionConfidence,
			ScratchDir: cfg.WorkDir,
		}, log)
	}

	upscaler := enhance.NewRealESRGAN("", cmd.UpscaleModel, cmd.ModelDir, log)
	if !utils.ToolAvailable(upscaler.Binary) {
		fmt.Printf("%s\n", ui.WarnStyle.Render(
			fmt.Sprintf("⚠️  %s not found, low resolution items will fail enhancement", upscaler.Binary)))
	}

	var restorer enhance.FaceRestorer
	if cfg.FaceEnhance {
		tool := enhance.NewFaceTool(cmd.FaceEnhanceModel, 0, log)
		if utils.ToolAvailable(tool.Binary) {
			restorer = tool
		} else {
			fmt.Printf("%s\n", ui.WarnStyle.Render(
				fmt.Sprintf("⚠️  %s not found, continuing without face enhancement", tool.Binary)))
			cfg.FaceEnhance = false
		}
	}

	return pipeline.Options{
		Detector: detector,
		Upscaler: upscaler,
		Restorer: restorer,
		Log:      log,
	}, nil
}

// runWithDashboard runs the pipeline under the live bubbletea view. The
// dashboard's quit key cancels the run context; the summary prints after
// the terminal is restored.
func runWithDashboard(ctx context.Context, run *pipeline.Run, version string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewDashboard(func() pipeline.Snapshot {
		return run.Counters().Snapshot()
	}, cancel, version)
	program := tea.NewProgram(model)

	var snap pipeline.Snapshot
	var runErr error
	go func() {
		snap, runErr = run.Execute(ctx)
		program.Send(ui.RunDoneMsg{Err: runErr})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		return fmt.Errorf("dashboard failed: %w", err)
	}

	fmt.Println(ui.Summary(snap))
	return runErr
}

// runPlain runs the pipeline with a progress bar and the usual logs.
func runPlain(ctx context.Context, run *pipeline.Run, version string) error {
	fmt.Println(ui.Banner(version))

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("curating"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetWriter(os.Stderr),
	)

	quit := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				snap := run.Counters().Snapshot()
				if snap.Scanned > 0 {
					bar.ChangeMax64(snap.Scanned)
				}
				_ = bar.Set64(snap.Completed)
			}
		}
	}()

	snap, runErr := run.Execute(ctx)
	close(quit)
	_ = bar.Finish()
	fmt.Println()

	fmt.Println(ui.Summary(snap))
	return runErr
}
