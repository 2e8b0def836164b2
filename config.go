// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds all configuration options for header parsing,
// probing and the extraction process. The configuration options can be
// adjusted using the option pattern style.
//
// The default configuration rejects path traversal and limits the amount of
// data that is written, but overwrites existing files, because re-installing
// a game into the same directory is the normal case.
type Config struct {
	// cacheInMemory offers the option to enable/disable caching in memory. This applies only
	// to the extraction of zip and 7z archives, which are provided as a stream.
	cacheInMemory bool

	// continueOnError decides if the extraction should be continued even if an error occurred
	continueOnError bool

	// customCreateDirMode is the file mode for created directories
	customCreateDirMode fs.FileMode

	// denySymlinkExtraction offers the option to enable/disable the extraction of symlinks
	denySymlinkExtraction bool

	// headerWindow is the number of bytes that are scanned for the makeself markers
	headerWindow int

	// installDirName is the directory below the output directory that receives games
	installDirName string

	// logger stream for extraction
	logger logger

	// maxExtractionSize is the maximum number of bytes written for one archive.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum of files (including folder and symlinks) in an archive.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of the input
	// Set value to -1 to disable the check.
	maxInputSize int64

	// modLoaderDirName is the directory below the install directory that receives the mod loader
	modLoaderDirName string

	// overwrite existing files in the destination
	overwrite bool

	// telemetryHook is a function to consume telemetry data after finished extraction
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook

	// tempDir is the parent directory for per-run workspaces
	tempDir string
}

// CacheInMemory returns true if caching in memory is enabled. This applies only to
// the extraction of zip and 7z archives, which are provided as a stream.
//
// If set to false, the cache is stored on disk to avoid memory exhaustion.
func (c *Config) CacheInMemory() bool {
	return c.cacheInMemory
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CheckExtractionSize checks if fileSize exceeds configured maximum. If the maximum is exceeded,
// a [ErrMaxExtractionSizeExceeded] error is returned.
func (c *Config) CheckExtractionSize(fileSize int64) error {

	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	// check value
	if fileSize > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// ContinueOnError returns true if the extraction should continue on error.
func (c *Config) ContinueOnError() bool {
	return c.continueOnError
}

// CustomCreateDirMode returns the file mode for created directories.
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// DenySymlinkExtraction returns true if symlinks are NOT allowed.
func (c *Config) DenySymlinkExtraction() bool {
	return c.denySymlinkExtraction
}

// HeaderWindow returns the number of leading bytes of an installer that are
// scanned for the makeself markers.
func (c *Config) HeaderWindow() int {
	return c.headerWindow
}

// InstallDirName returns the name of the directory below the output
// directory that receives installed games.
func (c *Config) InstallDirName() string {
	return c.installDirName
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	if c.logger == nil {
		return defaultLogger
	}
	return c.logger
}

// MaxExtractionSize returns the maximum size over all extracted files of one archive.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of files (including folder and symlinks) in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of the input.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// ModLoaderDirName returns the name of the directory below the install
// directory that receives the mod loader.
func (c *Config) ModLoaderDirName() string {
	return c.modLoaderDirName
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// TempDir returns the parent directory for temporary workspaces. An empty
// string means [os.TempDir].
func (c *Config) TempDir() string {
	return c.tempDir
}

const (
	defaultCacheInMemory         = false              // cache on disk
	defaultContinueOnError       = false              // stop on error and return error
	defaultCustomCreateDirMode   = 0755               // default directory permissions rwxr-xr-x
	defaultDenySymlinkExtraction = false              // allow symlink extraction
	defaultHeaderWindow          = 50000              // bytes scanned for makeself markers
	defaultInstallDirName        = "GoG Games"        // games land in <output>/GoG Games/<name>
	defaultMaxExtractionSize     = 64 << (10 * 3)     // 64 Gb
	defaultMaxFiles              = 1000000            // 1M files
	defaultMaxInputSize          = 64 << (10 * 3)     // 64 Gb
	defaultModLoaderDirName      = "ModLoader"        // mod loader lands in <install dir>/ModLoader
	defaultOverwrite             = true               // re-installs overwrite
	defaultTempDir               = ""                 // os.TempDir
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		cacheInMemory:         defaultCacheInMemory,
		continueOnError:       defaultContinueOnError,
		customCreateDirMode:   defaultCustomCreateDirMode,
		denySymlinkExtraction: defaultDenySymlinkExtraction,
		headerWindow:          defaultHeaderWindow,
		installDirName:        defaultInstallDirName,
		logger:                defaultLogger,
		maxExtractionSize:     defaultMaxExtractionSize,
		maxFiles:              defaultMaxFiles,
		maxInputSize:          defaultMaxInputSize,
		modLoaderDirName:      defaultModLoaderDirName,
		overwrite:             defaultOverwrite,
		telemetryHook:         defaultTelemetryHook,
		tempDir:               defaultTempDir,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithCacheInMemory options pattern function to enable/disable caching in memory.
// This applies only to the extraction of zip and 7z archives, which are provided as a stream.
//
// If set to false, the cache is stored on disk to avoid memory exhaustion.
func WithCacheInMemory(cache bool) ConfigOption {
	return func(c *Config) {
		c.cacheInMemory = cache
	}
}

// WithContinueOnError options pattern function to continue on error during extraction. If set to true,
// the error is logged and the extraction continues. If set to false, the extraction stops and returns the error.
func WithContinueOnError(yes bool) ConfigOption {
	return func(c *Config) {
		c.continueOnError = yes
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithDenySymlinkExtraction options pattern function to deny symlink extraction.
func WithDenySymlinkExtraction(deny bool) ConfigOption {
	return func(c *Config) {
		c.denySymlinkExtraction = deny
	}
}

// WithHeaderWindow options pattern function to set the number of bytes that
// are scanned for the makeself markers. Values <= 0 are ignored.
func WithHeaderWindow(size int) ConfigOption {
	return func(c *Config) {
		if size > 0 {
			c.headerWindow = size
		}
	}
}

// WithInstallDirName options pattern function to set the directory below the
// output directory that receives games.
func WithInstallDirName(name string) ConfigOption {
	return func(c *Config) {
		if len(name) > 0 {
			c.installDirName = name
		}
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over all
// extracted files of one archive. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of extracted, files, directories
// and symlinks during the extraction. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set MaxInputSize for extraction input file. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithModLoaderDirName options pattern function to set the directory below
// the install directory that receives the mod loader.
func WithModLoaderDirName(name string) ConfigOption {
	return func(c *Config) {
		if len(name) > 0 {
			c.modLoaderDirName = name
		}
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after extraction.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}

// WithTempDir options pattern function to set the parent directory of the
// temporary workspaces that hold payload copies.
func WithTempDir(dir string) ConfigOption {
	return func(c *Config) {
		c.tempDir = dir
	}
}
