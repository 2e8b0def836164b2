// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Segment is a byte range of an installer file.
type Segment struct {
	Start  int64 `json:"start"`
	Length int64 `json:"length"`
}

// End returns the first offset after the segment.
func (s Segment) End() int64 {
	return s.Start + s.Length
}

// Layout describes where the two payloads of a makeself installer are located.
type Layout struct {
	Header     Header `json:"header"`
	ByteOffset int64  `json:"byte_offset"`
	FileLength int64  `json:"file_length"`
}

// NewLayout validates that the installer segment described by h and
// byteOffset fits into a file of fileLength bytes. Otherwise an error
// wrapping [ErrInvalidSegment] is returned.
func NewLayout(h Header, byteOffset, fileLength int64) (Layout, error) {
	switch {
	case byteOffset < 0 || fileLength < 0 || h.FileSize < 0:
		return Layout{}, fmt.Errorf("%w: negative offset or size", ErrInvalidSegment)
	case byteOffset > fileLength:
		return Layout{}, fmt.Errorf("%w: offset %d beyond file length %d", ErrInvalidSegment, byteOffset, fileLength)
	case h.FileSize > fileLength-byteOffset:
		return Layout{}, fmt.Errorf("%w: installer segment [%d, %d+%d) exceeds file length %d",
			ErrInvalidSegment, byteOffset, byteOffset, h.FileSize, fileLength)
	}
	return Layout{Header: h, ByteOffset: byteOffset, FileLength: fileLength}, nil
}

// InstallerSegment returns the range of the first payload.
func (l Layout) InstallerSegment() Segment {
	return Segment{Start: l.ByteOffset, Length: l.Header.FileSize}
}

// DataSegment returns the range of the second payload, which reaches up to
// the end of the file.
func (l Layout) DataSegment() Segment {
	start := l.ByteOffset + l.Header.FileSize
	return Segment{Start: start, Length: l.FileLength - start}
}

// Archive is an opened makeself installer with a validated [Layout]. The
// file is only read; it stays open until Close is called.
type Archive struct {
	cfg    *Config
	f      *os.File
	layout Layout
	path   string
}

// OpenArchive opens the installer at path, scans its header and resolves the
// byte offset of the first payload.
func OpenArchive(path string, cfg *Config) (*Archive, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open installer: %w", err)
	}

	a, err := newArchive(f, path, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func newArchive(f *os.File, path string, cfg *Config) (*Archive, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat installer: %w", err)
	}
	size := stat.Size()
	if cfg.MaxInputSize() != -1 && size > cfg.MaxInputSize() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMaxInputSizeExceeded, size)
	}

	h, err := ReadHeader(io.NewSectionReader(f, 0, size), cfg.HeaderWindow())
	if err != nil {
		return nil, err
	}
	cfg.Logger().Debug("parsed makeself header", "line_offset", h.LineOffset, "file_size", h.FileSize)

	byteOffset, err := ResolveByteOffset(io.NewSectionReader(f, 0, size), h.LineOffset)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve byte offset: %w", err)
	}

	layout, err := NewLayout(h, byteOffset, size)
	if err != nil {
		return nil, err
	}
	cfg.Logger().Debug("resolved installer layout", "byte_offset", byteOffset, "file_length", size)

	return &Archive{cfg: cfg, f: f, layout: layout, path: path}, nil
}

// Path returns the path of the installer file.
func (a *Archive) Path() string {
	return a.path
}

// Layout returns the validated payload layout.
func (a *Archive) Layout() Layout {
	return a.layout
}

// OpenSegment returns a reader over s. The reader does not move the file
// offset, several segments can be read independently.
func (a *Archive) OpenSegment(s Segment) *BoundedReader {
	return NewBoundedReader(io.NewSectionReader(a.f, s.Start, s.Length), s.Length)
}

// CopySegment streams s into w and returns the number of bytes written.
func (a *Archive) CopySegment(ctx context.Context, s Segment, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := io.CopyBuffer(w, a.OpenSegment(s), make([]byte, copyBufferSize))
	if err != nil {
		return n, fmt.Errorf("cannot copy segment: %w", err)
	}
	if n != s.Length {
		return n, fmt.Errorf("short segment copy: %d of %d bytes: %w", n, s.Length, io.ErrUnexpectedEOF)
	}
	return n, nil
}

// Close closes the installer file.
func (a *Archive) Close() error {
	return a.f.Close()
}
