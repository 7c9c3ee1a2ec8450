package cmd

import (
	"fmt"
	"os"

	"github.com/corona10/goimagehash"

	"github.com/lepinkainen/datasetpipe/catalog"
	"github.com/lepinkainen/datasetpipe/dedup"
	"github.com/lepinkainen/datasetpipe/frames"
	"github.com/lepinkainen/datasetpipe/router"
	"github.com/lepinkainen/datasetpipe/source"
	"github.com/lepinkainen/datasetpipe/ui"
)

// ProbeCmd prints the measurements the pipeline would base its decisions
// on, without moving or writing anything. Useful for picking thresholds
// before a real run.
type ProbeCmd struct {
	Files        []string `arg:"" name:"files" help:"Media files to inspect" type:"existingfile"`
	Threshold    int      `help:"Hamming distance threshold for similarity (0-64)" default:"8"`
	NoUpscaleMin int      `help:"Min edge for the keep-as-is tier" default:"2048"`
	Upscale2XMin int      `name:"upscale-2x-min" help:"Min edge for the 2x tier" default:"1024"`
}

type probedFile struct {
	path string
	hash *goimagehash.ImageHash
}

// Run inspects each file and then compares all hashes pairwise.
func (cmd *ProbeCmd) Run() error {
	rt, err := router.New(cmd.NoUpscaleMin, cmd.Upscale2XMin)
	if err != nil {
		return err
	}

	var probed []probedFile
	for _, file := range cmd.Files {
		kind, ok := source.KindFor(file)
		if !ok {
			fmt.Printf("%s\n", ui.WarnStyle.Render(fmt.Sprintf("⚠️  %s: not a supported media file", file)))
			continue
		}

		var p *probedFile
		switch kind {
		case catalog.KindImage:
			p = probeImage(file, rt)
		case catalog.KindVideo:
			p = probeVideo(file, rt)
		}
		if p != nil {
			probed = append(probed, *p)
		}
	}

	if len(probed) < 2 {
		return nil
	}

	fmt.Printf("\n%s\n", ui.InfoStyle.Render(
		fmt.Sprintf("Comparing %d files for similarity (threshold: %d):", len(probed), cmd.Threshold)))

	found := false
	for i := 0; i < len(probed); i++ {
		for j := i + 1; j < len(probed); j++ {
			distance, err := probed[i].hash.Distance(probed[j].hash)
			if err != nil {
				fmt.Printf("%s\n", ui.ErrorStyle.Render(
					fmt.Sprintf("❌ comparing %s and %s: %v", probed[i].path, probed[j].path, err)))
				continue
			}
			if distance <= cmd.Threshold {
				fmt.Printf("🎯 Similar (distance %d): %s ↔ %s\n", distance, probed[i].path, probed[j].path)
				found = true
			}
		}
	}
	if !found {
		fmt.Printf("%s\n", ui.SuccessStyle.Render("✅ No similar files within threshold"))
	}
	return nil
}

func probeImage(file string, rt *router.Router) *probedFile {
	hash, width, height, err := dedup.HashFile(file)
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %v", file, err)))
		return nil
	}
	sharpness, err := frames.SharpnessFile(file)
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: sharpness: %v", file, err)))
		return nil
	}

	fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ %s", file)))
	fmt.Printf("   %dx%d  tier=%s  sharpness=%.1f  phash=%016x\n",
		width, height, rt.Route(width, height), sharpness, hash.GetHash())
	return &probedFile{path: file, hash: hash}
}

func probeVideo(file string, rt *router.Router) *probedFile {
	if err := frames.ValidateVideoIntegrity(file); err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %v", file, err)))
		return nil
	}
	width, height, err := frames.GetVideoResolution(file)
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %v", file, err)))
		return nil
	}
	duration, err := frames.GetVideoDuration(file)
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %v", file, err)))
		return nil
	}

	preview, err := frames.ExtractPreviewFrame(file, os.TempDir())
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: preview: %v", file, err)))
		return nil
	}
	defer func() { _ = os.Remove(preview) }()

	hash, _, _, err := dedup.HashFile(preview)
	if err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: hash preview: %v", file, err)))
		return nil
	}

	fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ %s", file)))
	fmt.Printf("   %dx%d  %.1fs  frames-tier=%s  phash=%016x\n",
		width, height, duration, rt.Route(width, height), hash.GetHash())
	return &probedFile{path: file, hash: hash}
}
