// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	installer "github.com/ralaunch/go-installer"
)

// Globals are the flags shared by all commands
type Globals struct {
	CacheInMemory     bool             `help:"Buffer zip and 7z payloads in memory instead of a temporary file."`
	ContinueOnError   bool             `short:"C" help:"Continue extraction on error."`
	DenySymlinks      bool             `short:"D" help:"Deny symlink extraction."`
	HeaderWindow      int              `optional:"" default:"50000" help:"Number of bytes scanned for the makeself header."`
	MaxFiles          int64            `optional:"" default:"1000000" help:"Maximum files that are extracted per archive before stop. (disable check: -1)"`
	MaxExtractionSize int64            `optional:"" default:"68719476736" help:"Maximum extraction size per archive (in bytes). (disable check: -1)"`
	MaxInputSize      int64            `optional:"" default:"68719476736" help:"Maximum input size per archive (in bytes). (disable check: -1)"`
	Metrics           bool             `short:"M" optional:"" default:"false" help:"Print metrics to log after each extraction."`
	ProfileOut        string           `optional:"" help:"Write a heap profile to this file after the command finished." type:"path"`
	TempDir           string           `optional:"" help:"Parent directory of temporary files." type:"path"`
	Timeout           time.Duration    `optional:"" default:"0" help:"Maximum time the command may take. (disable check: 0)"`
	Verbose           bool             `short:"v" optional:"" help:"Verbose logging."`
	Version           kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// CLI are the cli parameters for the goinstaller binary
type CLI struct {
	Globals

	Install installCmd `cmd:"" help:"Install a game from a makeself installer."`
	Inspect inspectCmd `cmd:"" help:"Print the metadata of a makeself installer as JSON."`
	Prefix  prefixCmd  `cmd:"" help:"Print the root directory that is unwrapped when an archive is staged."`
}

// runContext is bound to the Run methods of the commands
type runContext struct {
	ctx    context.Context
	logger *slog.Logger
	opts   []installer.ConfigOption
	stdout io.Writer
}

type installCmd struct {
	Installer string `arg:"" name:"installer" help:"Path to the .sh installer." type:"existingfile"`
	Output    string `arg:"" name:"output" default:"." help:"Output directory."`
	ModLoader string `optional:"" name:"mod-loader" help:"Archive that is staged into the mod loader directory." type:"existingfile"`
}

func (c *installCmd) Run(rc *runContext) error {
	sink := &consoleSink{w: rc.stdout, last: -1}

	var (
		res *installer.InstallResult
		err error
	)
	if len(c.ModLoader) > 0 {
		res, err = installer.InstallGameWithModLoader(rc.ctx, c.Installer, c.ModLoader, c.Output, sink, rc.opts...)
	} else {
		res, err = installer.InstallGame(rc.ctx, c.Installer, c.Output, sink, rc.opts...)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot install %s", filepath.Base(c.Installer))
	}

	rc.logger.Info("installation finished",
		"game", res.Metadata.DisplayName(filepath.Base(c.Installer)),
		"directory", res.GameDir,
		"icon", res.IconPath,
		"mod_loader", res.ModLoaderDir,
	)
	return nil
}

type inspectCmd struct {
	Installer string `arg:"" name:"installer" help:"Path to the .sh installer." type:"existingfile"`
	IconDir   string `optional:"" name:"icon-dir" help:"Directory the icon is copied to." type:"path"`
}

func (c *inspectCmd) Run(rc *runContext) error {
	m, err := installer.Inspect(rc.ctx, c.Installer, c.IconDir, rc.opts...)
	if err != nil {
		return errors.Wrapf(err, "cannot inspect %s", filepath.Base(c.Installer))
	}
	if m == nil {
		return errors.Errorf("%s carries no metadata", filepath.Base(c.Installer))
	}

	enc := json.NewEncoder(rc.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

type prefixCmd struct {
	Archive string `arg:"" name:"archive" help:"Path to the archive." type:"existingfile"`
}

func (c *prefixCmd) Run(rc *runContext) error {
	cfg := installer.NewConfig(rc.opts...)
	_, err := fmt.Fprintf(rc.stdout, "%q\n", installer.AnalyzeArchive(rc.ctx, c.Archive, cfg))
	return err
}

// consoleSink prints progress as "[ 42%] message", one line per percent.
type consoleSink struct {
	w    io.Writer
	last int
}

func (s *consoleSink) Progress(text string, percent int) {
	if percent == s.last {
		return
	}
	s.last = percent
	fmt.Fprintf(s.w, "[%3d%%] %s\n", percent, text)
}

func (s *consoleSink) Error(text string) {
	fmt.Fprintf(s.w, "[fail] %s\n", text)
}

func (s *consoleSink) Complete(primary, secondary string) {
	fmt.Fprintf(s.w, "game installed to %s\n", primary)
	if len(secondary) > 0 {
		fmt.Fprintf(s.w, "mod loader staged to %s\n", secondary)
	}
}

// Run the entrypoint into goinstaller as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Description("Installs games from makeself installers"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	} else if cli.Metrics {
		logLevel = slog.LevelInfo
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// setup telemetry hook
	telemetryToLog := func(ctx context.Context, td *installer.TelemetryData) {
		if cli.Metrics {
			logger.Info("extraction finished",
				"type", td.ExtractedType,
				"size", humanize.Bytes(uint64(td.ExtractionSize)),
				"input", humanize.Bytes(uint64(max(td.InputSize, 0))),
				"duration", td.ExtractionDuration,
				"telemetry", td,
			)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	rc := &runContext{
		ctx:    ctx,
		logger: logger,
		stdout: os.Stdout,
		opts: []installer.ConfigOption{
			installer.WithCacheInMemory(cli.CacheInMemory),
			installer.WithContinueOnError(cli.ContinueOnError),
			installer.WithDenySymlinkExtraction(cli.DenySymlinks),
			installer.WithHeaderWindow(cli.HeaderWindow),
			installer.WithLogger(logger),
			installer.WithMaxExtractionSize(cli.MaxExtractionSize),
			installer.WithMaxFiles(cli.MaxFiles),
			installer.WithMaxInputSize(cli.MaxInputSize),
			installer.WithTelemetryHook(telemetryToLog),
			installer.WithTempDir(cli.TempDir),
		},
	}

	err := kctx.Run(rc)
	if len(cli.ProfileOut) > 0 {
		writeHeapProfile(logger, cli.ProfileOut)
	}
	kctx.FatalIfErrorf(err)
}

// writeHeapProfile stores a heap profile at path. Failures are logged only.
func writeHeapProfile(logger *slog.Logger, path string) {
	logger.Info(fmt.Sprintf("analyze with: go tool pprof -http=:8080 %s", path))
	f, err := os.Create(path)
	if err != nil {
		logger.Error("cannot create heap profile", "error", err)
		return
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		logger.Error("cannot write heap profile", "error", err)
	}
}
