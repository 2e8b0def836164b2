// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ProgressFunc receives the completed fraction in [0,1] of a unit of work
// together with a short message.
type ProgressFunc func(fraction float64, message string)

// ExtractArchive extracts the archive src into dst. Supported are zip, 7z,
// rar, tar and tar compressed with gzip, bzip2, xz, zstd, lz4, snappy or
// brotli (by file extension only).
//
// Only entries below prefix are extracted, with the prefix removed from
// their names. An empty prefix extracts everything. Entries that would be
// written outside of dst are skipped and counted in [TelemetryData].
//
// report is called after each entry and may be nil.
func ExtractArchive(ctx context.Context, src, prefix, dst string, cfg *Config, report ProgressFunc) error {
	if cfg == nil {
		cfg = NewConfig()
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cannot open archive: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat archive: %w", err)
	}

	return extractReader(ctx, f, stat.Size(), filepath.Base(src), prefix, dst, cfg, report)
}

// extractReader extracts the archive in src, which has size bytes or -1 if
// unknown, into dst and emits telemetry.
func extractReader(ctx context.Context, src io.Reader, size int64, name, prefix, dst string, cfg *Config, report ProgressFunc) error {
	// prepare telemetry capturing
	td := &TelemetryData{}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureExtractionDuration(td, now())

	ar, err := openArchiveReader(src, size, name, cfg)
	if err != nil {
		return failExtraction(td, fmt.Sprintf("cannot open archive %s", name), err)
	}
	defer ar.Close()
	defer func() { td.InputSize = ar.InputSize() }()
	td.ExtractedType = ar.Type()

	return extract(ctx, NewTargetDisk(), dst, prefix, ar, cfg, td, report)
}

// extract checks ctx for cancellation, while it walks the entries of ar and
// extracts the ones below prefix to dst.
func extract(ctx context.Context, t Target, dst, prefix string, ar *archiveReader, cfg *Config, td *TelemetryData, report ProgressFunc) error {
	// create destination and resolve it once, entries are checked against it
	if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
		return failExtraction(td, "cannot create destination", err)
	}
	root, err := canonicalRoot(dst)
	if err != nil {
		return failExtraction(td, "cannot resolve destination", err)
	}

	prefix = normalizePrefix(prefix)
	progress := &progressTracker{
		report:    report,
		total:     ar.uncompressedSize(prefix),
		inputSize: ar.inputSize,
		consumed:  ar.input.BytesRead,
	}

	cfg.Logger().Info("start extraction", "type", ar.Type(), "prefix", prefix, "destination", root)
	var objectCounter int64
	var extractedBytes int64

	for {
		// check if context is canceled
		if err := ctx.Err(); err != nil {
			return failExtraction(td, "extraction canceled", err)
		}

		// get next file
		ae, err := ar.walker.Next()

		switch {

		// if no more files are found exit loop
		case errors.Is(err, io.EOF):
			if err := ar.drain(); err != nil {
				cfg.Logger().Debug("ignoring archive trailer", "error", err)
			}
			progress.finish()
			cfg.Logger().Info("extraction finished", "files", td.ExtractedFiles, "bytes", td.ExtractionSize, "rejected", td.RejectedEntries)
			return nil

		// the walker cannot recover from read errors
		case err != nil:
			return failExtraction(td, "cannot read next entry", err)

		case ae == nil:
			continue
		}

		// strip the prefix, skip entries outside of it
		rel, ok := stripPrefix(normalizeEntryName(ae.Name()), prefix)
		if !ok {
			td.SkippedEntries++
			continue
		}
		if len(rel) == 0 {
			continue
		}

		// check if maximum of objects is exceeded
		objectCounter++
		if err := cfg.CheckMaxFiles(objectCounter); err != nil {
			return failExtraction(td, "max objects check failed", err)
		}

		cfg.Logger().Debug("extract", "name", ae.Name())
		switch {

		// if its a dir and it doesn't exist create it
		case ae.IsDir():
			if _, err := createDir(t, root, rel, cfg); err != nil {
				if err := handleEntryError(cfg, td, ae.Name(), "failed to create safe directory", err); err != nil {
					return err
				}
				continue
			}
			td.ExtractedDirs++

		// if it's a file create it
		case ae.IsRegular():
			if err := cfg.CheckExtractionSize(extractedBytes + ae.Size()); err != nil {
				return failExtraction(td, "max extraction size exceeded", err)
			}

			n, err := extractFile(t, root, rel, ae, cfg, remaining(cfg.MaxExtractionSize(), extractedBytes))
			extractedBytes += n
			td.ExtractionSize = extractedBytes
			if errors.Is(err, ErrMaxExtractionSizeExceeded) {
				return failExtraction(td, "max extraction size exceeded", err)
			}
			if err != nil {
				if err := handleEntryError(cfg, td, ae.Name(), "failed to create file", err); err != nil {
					return err
				}
				continue
			}
			td.ExtractedFiles++

		// its a symlink !!
		case ae.IsSymlink():
			path, err := createSymlink(t, root, rel, ae.Linkname(), cfg)
			if err != nil {
				if err := handleEntryError(cfg, td, ae.Name(), "failed to create symlink", err); err != nil {
					return err
				}
				continue
			}
			if err := t.Lchtimes(path, ae.AccessTime(), ae.ModTime()); err != nil {
				cfg.Logger().Debug("cannot set symlink times", "name", ae.Name(), "error", err)
			}
			td.ExtractedSymlinks++

		default:
			// tar specific: skip the git comment file `pax_global_header`
			if ae.Type()&tar.TypeXGlobalHeader == tar.TypeXGlobalHeader && ae.Name() == "pax_global_header" {
				continue
			}
			if err := handleEntryError(cfg, td, ae.Name(), "cannot extract file", unsupportedFile(ae.Name())); err != nil {
				return err
			}
			continue
		}

		progress.update(extractedBytes, rel)
	}
}

// extractFile streams the content of ae into the file rel below root and
// restores its modification time.
func extractFile(t Target, root, rel string, ae archiveEntry, cfg *Config, maxSize int64) (int64, error) {
	fin, err := ae.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer fin.Close()

	path, n, err := createFile(t, root, rel, fin, ae.Mode(), maxSize, cfg)
	if err != nil {
		return n, err
	}
	if mtime := ae.ModTime(); !mtime.IsZero() {
		if err := t.Chtimes(path, ae.AccessTime(), mtime); err != nil {
			cfg.Logger().Debug("cannot set file times", "name", rel, "error", err)
		}
	}
	return n, nil
}

// handleEntryError classifies a failed entry. Path traversal and unsupported
// files are counted and skipped, any other error increases the error counter
// and ends the extraction unless [Config.ContinueOnError] is set.
func handleEntryError(cfg *Config, td *TelemetryData, name, msg string, err error) error {
	switch {
	case errors.Is(err, ErrPathTraversal):
		cfg.Logger().Warn("rejected entry", "name", name, "error", err)
		td.RejectedEntries++
		td.LastRejectedEntry = name
		return nil

	case errors.Is(err, ErrUnsupportedFile):
		cfg.Logger().Info("skipped unsupported entry", "name", name)
		td.UnsupportedFiles++
		td.LastUnsupportedFile = name
		return nil
	}
	return handleError(cfg, td, msg, err)
}

// handleError increases the error counter, sets the latest error and
// decides if extraction should continue.
func handleError(cfg *Config, td *TelemetryData, msg string, err error) error {

	// increase error counter and set error
	td.ExtractionErrors++
	td.LastExtractionError = fmt.Errorf("%s: %w", msg, err)

	// do not end on error
	if cfg.ContinueOnError() {
		cfg.Logger().Error(msg, "error", err)
		return nil
	}

	// end extraction on error
	return td.LastExtractionError
}

// failExtraction records an error that always ends the extraction.
func failExtraction(td *TelemetryData, msg string, err error) error {
	td.ExtractionErrors++
	td.LastExtractionError = fmt.Errorf("%s: %w", msg, err)
	return td.LastExtractionError
}

// remaining returns how many bytes may still be written, or -1 if unlimited.
func remaining(limit, written int64) int64 {
	if limit < 0 {
		return -1
	}
	return limit - written
}

// normalizePrefix converts prefix into the form "dir/sub/", or "" for none.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(normalizeEntryName(prefix), "/")
	if len(prefix) == 0 || prefix == "." {
		return ""
	}
	return prefix + "/"
}

// stripPrefix removes prefix from name. It reports false if name is not
// located below prefix.
func stripPrefix(name, prefix string) (string, bool) {
	if len(prefix) == 0 {
		return name, true
	}
	if name == strings.TrimSuffix(prefix, "/") {
		return "", true
	}
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return strings.TrimPrefix(name, prefix), true
}

// progressTracker maps extraction progress to a monotonic fraction: bytes
// written over the declared total when the archive has a central directory,
// input consumed over input size otherwise.
type progressTracker struct {
	report    ProgressFunc
	total     int64
	inputSize int64
	consumed  func() int64
	last      float64
}

func (p *progressTracker) update(written int64, name string) {
	if p.report == nil {
		return
	}

	var f float64
	switch {
	case p.total > 0:
		f = float64(written) / float64(p.total)
	case p.inputSize > 0:
		f = float64(p.consumed()) / float64(p.inputSize)
	}
	if f > 1 {
		f = 1
	}
	if f < p.last {
		f = p.last
	}
	p.last = f
	p.report(f, name)
}

func (p *progressTracker) finish() {
	if p.report == nil {
		return
	}
	p.last = 1
	p.report(1, "extraction finished")
}
