// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"fmt"
	"io"
)

// limitErrorReader counts the bytes read from an archive input and fails with
// [ErrMaxInputSizeExceeded] once more than L bytes would be consumed. If L is
// -1, the input is not limited and only counted.
type limitErrorReader struct {
	R io.Reader // underlying reader
	L int64     // limit
	N int64     // number of bytes read
}

// Read reads from the underlying reader and fills up p.
func (l *limitErrorReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// determine how many bytes to read
	m := int64(len(p))
	if l.L != -1 && l.L-l.N < m {
		m = l.L - l.N
	}

	// probe one byte past the limit to tell a full input from an oversized one
	if m == 0 {
		var one [1]byte
		n, err := l.R.Read(one[:])
		if n > 0 {
			return 0, fmt.Errorf("%w: more than %d bytes", ErrMaxInputSizeExceeded, l.L)
		}
		return 0, err
	}

	// read from underlying reader and preserve error type
	n, err := l.R.Read(p[:m])
	l.N += int64(n)
	return n, err
}

// BytesRead returns how many bytes have been read from the underlying reader.
func (l *limitErrorReader) BytesRead() int64 {
	return l.N
}

// newLimitErrorReader returns a new limitErrorReader that reads from r.
func newLimitErrorReader(r io.Reader, limit int64) *limitErrorReader {
	return &limitErrorReader{R: r, L: limit}
}
