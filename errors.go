// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderParse is returned when the line offset or the payload size
	// cannot be found in the header window of a makeself installer.
	ErrHeaderParse = errors.New("cannot parse makeself header")

	// ErrInvalidSegment is returned when the offsets computed from the header
	// do not fit into the installer file.
	ErrInvalidSegment = errors.New("invalid segment boundaries")

	// ErrFormatMismatch is returned when a payload is neither a (compressed)
	// tar nor a zip archive.
	ErrFormatMismatch = errors.New("unsupported archive format")

	// ErrPathTraversal marks an archive entry that would be written outside
	// of the destination. Such entries are skipped and counted, the error is
	// only used for logging and telemetry.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrMaxFilesExceeded indicates that the maximum number of files is exceeded.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded indicates that the maximum size is exceeded.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded indicates that the archive is larger than allowed.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")

	// ErrUnsupportedFile is returned for entries that cannot be extracted,
	// e.g. devices or fifos.
	ErrUnsupportedFile = errors.New("unsupported file")

	// errWorkspace marks failures to write into the temporary workspace,
	// which always abort a probe.
	errWorkspace = errors.New("cannot write workspace")

	errMissingStageInput = errors.New("stage needs a source and a destination")
)

// unsupportedFile returns an error that indicates that a file is not supported.
func unsupportedFile(name string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
}
