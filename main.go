package main

import (
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/lepinkainen/datasetpipe/cmd"
	"github.com/lepinkainen/datasetpipe/types"
)

var Version = types.DefaultVersion

// CLI is the top level command tree.
type CLI struct {
	Run    cmd.RunCmd    `cmd:"" help:"Curate an input directory into a clean dataset"`
	Probe  cmd.ProbeCmd  `cmd:"" help:"Inspect media files the way the pipeline would"`
	Verify cmd.VerifyCmd `cmd:"" help:"Verify a finished dataset against its manifest"`
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if s := os.Getenv("DATASETPIPE_LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func main() {
	// A .env next to the binary is a convenience, not a requirement.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("datasetpipe"),
		kong.Description("Curates raw media dumps into a clean, deduplicated, enhanced dataset."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&types.AppContext{Version: Version, Log: newLogger()})
	ctx.FatalIfErrorf(err)
}
