// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ResolveByteOffset converts the line count of a makeself header into a byte
// offset. It reads lineOffset lines from r and sums len(line)+1 for each, the
// +1 being the newline the shell tooling assumes. A final line without a
// terminator still counts the extra byte.
//
// If r holds fewer lines than requested, the partial sum is returned without
// an error.
func ResolveByteOffset(r io.Reader, lineOffset int64) (int64, error) {
	br := bufio.NewReader(r)

	var offset int64
	for i := int64(0); i < lineOffset; i++ {
		n, terminated, err := skipLine(br)
		if n > 0 || terminated {
			offset += n + 1
		}
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return 0, fmt.Errorf("cannot read line %d: %w", i+1, err)
		}
	}

	return offset, nil
}

// skipLine consumes one line of br and returns its length without the
// trailing newline.
func skipLine(br *bufio.Reader) (int64, bool, error) {
	var n int64
	for {
		chunk, err := br.ReadSlice('\n')
		n += int64(len(chunk))
		switch {
		case err == nil:
			return n - 1, true, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return n, false, err
		}
	}
}
