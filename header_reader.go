// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"errors"
	"fmt"
	"io"
)

// headerReader is an io.Reader that returns the first bytes of r twice: once
// through PeekHeader for format detection and once through Read for the
// decoder that consumes the payload.
type headerReader struct {
	r      io.Reader
	header []byte
	peeked []byte
}

// newHeaderReader reads up to headerSize bytes of r. A payload shorter than
// headerSize is not an error.
func newHeaderReader(r io.Reader, headerSize int) (*headerReader, error) {
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	return &headerReader{r: r, header: buf[:n], peeked: buf[:n]}, nil
}

func (p *headerReader) Read(b []byte) (int, error) {
	// replay header first
	if len(p.header) > 0 {
		n := copy(b, p.header)
		p.header = p.header[n:]
		return n, nil
	}

	// then continue reading from the source
	return p.r.Read(b)
}

// PeekHeader returns the bytes read during construction.
func (p *headerReader) PeekHeader() []byte {
	return p.peeked
}
