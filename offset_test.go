// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"bytes"
	"strings"
	"testing"
)

func TestResolveByteOffset(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		lineOffset int64
		expect     int64
	}{
		{
			name:       "no lines",
			input:      "abc\ndef\n",
			lineOffset: 0,
			expect:     0,
		},
		{
			name:       "two of three lines",
			input:      "abc\nde\nf\n",
			lineOffset: 2,
			expect:     7,
		},
		{
			name:       "empty lines",
			input:      "\n\n\nx",
			lineOffset: 3,
			expect:     3,
		},
		{
			name:       "final line without newline counts the newline",
			input:      "abc\nde",
			lineOffset: 2,
			expect:     7,
		},
		{
			name:       "fewer lines than requested",
			input:      "abc\nde\n",
			lineOffset: 10,
			expect:     7,
		},
		{
			name:       "carriage returns belong to the line",
			input:      "ab\r\ncd\r\n",
			lineOffset: 1,
			expect:     4,
		},
		{
			name:       "line longer than the read buffer",
			input:      strings.Repeat("x", 10000) + "\nrest",
			lineOffset: 1,
			expect:     10001,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ResolveByteOffset(strings.NewReader(test.input), test.lineOffset)
			if err != nil {
				t.Fatalf("ResolveByteOffset() error = %v", err)
			}
			if got != test.expect {
				t.Errorf("ResolveByteOffset() = %d, want %d", got, test.expect)
			}
		})
	}
}

func TestResolveByteOffsetBinaryPayload(t *testing.T) {
	header := makeselfHeader(t, 120, 16)
	payload := []byte{0x1f, 0x8b, '\n', 0x00, '\n'}

	got, err := ResolveByteOffset(bytes.NewReader(append(header, payload...)), 120)
	if err != nil {
		t.Fatalf("ResolveByteOffset() error = %v", err)
	}
	if got != int64(len(header)) {
		t.Errorf("ResolveByteOffset() = %d, want %d", got, len(header))
	}
}
