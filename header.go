// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// Header holds the two values a makeself shell header encodes: the number of
// script lines before the first payload and the byte length of that payload.
type Header struct {
	// LineOffset is the number of lines of the shell script
	LineOffset int64 `json:"line_offset"`

	// FileSize is the length in bytes of the installer segment
	FileSize int64 `json:"file_size"`
}

// offsetMarkers are the historical spellings of the line offset, checked in order.
var offsetMarkers = [][]byte{
	[]byte("head -n"),
	[]byte("SKIP="),
}

// sizeMarkers are the spellings of the payload size, checked in order.
var sizeMarkers = [][]byte{
	[]byte("filesizes="),
	[]byte("SIZE="),
}

// ReadHeader reads up to window bytes from r and scans them with [ScanHeader].
func ReadHeader(r io.Reader, window int) (Header, error) {
	if window <= 0 {
		window = defaultHeaderWindow
	}
	buf := make([]byte, window)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Header{}, fmt.Errorf("cannot read header: %w", err)
	}
	return ScanHeader(buf[:n])
}

// ScanHeader searches text line by line for the offset and size markers and
// stops as soon as both are found. A marker only matches if at least one
// digit follows it on the same line. If a marker is missing, or a number does
// not fit into an int64, an error wrapping [ErrHeaderParse] is returned.
func ScanHeader(text []byte) (Header, error) {
	var h Header
	var foundOffset, foundSize bool

	for _, line := range bytes.Split(text, []byte("\n")) {
		if !foundOffset {
			v, ok, err := scanMarkers(line, offsetMarkers)
			if err != nil {
				return Header{}, err
			}
			if ok {
				h.LineOffset, foundOffset = v, true
			}
		}

		if !foundSize {
			v, ok, err := scanMarkers(line, sizeMarkers)
			if err != nil {
				return Header{}, err
			}
			if ok {
				h.FileSize, foundSize = v, true
			}
		}

		if foundOffset && foundSize {
			return h, nil
		}
	}

	switch {
	case !foundOffset && !foundSize:
		return Header{}, fmt.Errorf("%w: offset and size markers not found", ErrHeaderParse)
	case !foundOffset:
		return Header{}, fmt.Errorf("%w: offset marker not found", ErrHeaderParse)
	default:
		return Header{}, fmt.Errorf("%w: size marker not found", ErrHeaderParse)
	}
}

// scanMarkers returns the number following the first marker of markers that
// occurs in line.
func scanMarkers(line []byte, markers [][]byte) (int64, bool, error) {
	for _, m := range markers {
		idx := indexMarker(line, m)
		if idx < 0 {
			continue
		}
		return parseNumber(line[idx+len(m):])
	}
	return 0, false, nil
}

// indexMarker returns the index of the first occurrence of marker in line
// that does not continue a shell identifier, so USIZE= is no SIZE= marker.
func indexMarker(line []byte, marker []byte) int {
	off := 0
	for {
		idx := bytes.Index(line[off:], marker)
		if idx < 0 {
			return -1
		}
		idx += off
		if idx == 0 || !isIdentByte(line[idx-1]) {
			return idx
		}
		off = idx + 1
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(rune(c)) || (c|0x20 >= 'a' && c|0x20 <= 'z')
}

// parseNumber skips leading non-digits of s and parses the following maximal
// run of ASCII digits.
func parseNumber(s []byte) (int64, bool, error) {
	start := bytes.IndexFunc(s, isDigit)
	if start < 0 {
		return 0, false, nil
	}
	var v int64
	for _, c := range s[start:] {
		if !isDigit(rune(c)) {
			break
		}
		d := int64(c - '0')
		if v > (math.MaxInt64-d)/10 {
			return 0, false, fmt.Errorf("%w: number overflows int64", ErrHeaderParse)
		}
		v = v*10 + d
	}
	return v, true, nil
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
