// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import "io"

// BoundedReader exposes only the next limit bytes of an underlying reader.
// Once the limit is consumed every read returns io.EOF, regardless of what
// remains upstream.
type BoundedReader struct {
	lr io.LimitedReader
}

// NewBoundedReader returns a reader that reads at most limit bytes from r.
// A negative limit behaves like zero.
func NewBoundedReader(r io.Reader, limit int64) *BoundedReader {
	if limit < 0 {
		limit = 0
	}
	return &BoundedReader{lr: io.LimitedReader{R: r, N: limit}}
}

// Read reads at most min(len(p), Remaining()) bytes into p.
func (b *BoundedReader) Read(p []byte) (int, error) {
	return b.lr.Read(p)
}

// Remaining returns the number of bytes that can still be read.
func (b *BoundedReader) Remaining() int64 {
	if b.lr.N < 0 {
		return 0
	}
	return b.lr.N
}
