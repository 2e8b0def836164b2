// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import "io"

// noopReaderCloser hands out a tar entry reader without closing the
// underlying archive stream.
type noopReaderCloser struct {
	io.Reader
}

// Close is a no-op method that satisfies the io.Closer interface.
func (n *noopReaderCloser) Close() error {
	return nil
}

// closerFunc adapts a cleanup function to io.Closer.
type closerFunc func() error

// Close calls f.
func (f closerFunc) Close() error {
	return f()
}
