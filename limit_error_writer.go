// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"fmt"
	"io"
)

// limitErrorWriter caps the number of bytes written to W. The write that
// crosses the limit is truncated and fails with [ErrMaxExtractionSizeExceeded].
type limitErrorWriter struct {
	W io.Writer // underlying writer
	L int64     // limit
	N int64     // number of bytes written
}

// Write writes up to len(p) bytes from p to the underlying writer. It returns
// a non-nil error when fewer than len(p) bytes are written.
func (l *limitErrorWriter) Write(p []byte) (n int, err error) {
	// check if we reached the limit
	if l.N >= l.L {
		return 0, fmt.Errorf("%w: limit of %d bytes reached", ErrMaxExtractionSizeExceeded, l.L)
	}

	// write until we reach the limit
	if int64(len(p)) > l.L-l.N {
		n, err = l.W.Write(p[:l.L-l.N])
		l.N += int64(n)
		if err == nil {
			err = fmt.Errorf("%w: limit of %d bytes reached", ErrMaxExtractionSizeExceeded, l.L)
		}
		return n, err
	}

	// write normally
	n, err = l.W.Write(p)
	l.N += int64(n)
	return n, err
}

// limitWriter wraps w so that at most maxSize bytes are accepted. A negative
// maxSize disables the limit.
func limitWriter(w io.Writer, maxSize int64) io.Writer {
	if maxSize < 0 {
		return w
	}
	return &limitErrorWriter{W: w, L: maxSize}
}
