// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"bytes"
	"errors"
	"testing"
)

func TestLimitWriter(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		writes  []string
		expect  string
		wantErr bool
	}{
		{
			name:   "within limit",
			limit:  10,
			writes: []string{"abc", "def"},
			expect: "abcdef",
		},
		{
			name:   "exactly at limit",
			limit:  6,
			writes: []string{"abc", "def"},
			expect: "abcdef",
		},
		{
			name:    "crossing the limit truncates",
			limit:   4,
			writes:  []string{"abc", "def"},
			expect:  "abcd",
			wantErr: true,
		},
		{
			name:   "unlimited",
			limit:  -1,
			writes: []string{"abc", "def"},
			expect: "abcdef",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			w := limitWriter(buf, test.limit)

			var err error
			for _, s := range test.writes {
				if _, err = w.Write([]byte(s)); err != nil {
					break
				}
			}
			if (err != nil) != test.wantErr {
				t.Fatalf("Write() error = %v, wantErr %v", err, test.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMaxExtractionSizeExceeded) {
				t.Errorf("Write() error = %v, want ErrMaxExtractionSizeExceeded", err)
			}
			if buf.String() != test.expect {
				t.Errorf("written %q, want %q", buf.String(), test.expect)
			}
		})
	}
}
