// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// TestDataString tests the String method of the data struct
func TestDataString(t *testing.T) {
	m := TelemetryData{
		ExtractedType:       "tar",
		ExtractionDuration:  5 * time.Millisecond,
		ExtractionSize:      1024,
		ExtractedFiles:      5,
		ExtractedSymlinks:   2,
		ExtractedDirs:       1,
		ExtractionErrors:    1,
		LastExtractionError: fmt.Errorf("example error"),
		InputSize:           2048,
		RejectedEntries:     1,
		LastRejectedEntry:   "../evil",
	}

	expected := `{"last_extraction_error":"example error","extracted_dirs":1,"extraction_duration":5000000,"extraction_errors":1,"extracted_files":5,"extraction_size":1024,"extracted_symlinks":2,"extracted_type":"tar","input_size":2048,"rejected_entries":1,"last_rejected_entry":"../evil","skipped_entries":0,"unsupported_files":0,"last_unsupported_file":""}`
	if m.String() != expected {
		t.Errorf("Expected '%s', but got '%s'", expected, m.String())
	}
}

func TestTelemetryHookReceivesCounts(t *testing.T) {
	dir := t.TempDir()
	archive := writeTestFile(t, filepath.Join(dir, "a.tar"), packTar(t, []archiveContent{
		regularFile("a", "1"),
		regularFile("../evil", "2"),
		regularFile("other/b", "3"),
	}))

	var got *TelemetryData
	cfg := NewConfig(WithTelemetryHook(func(_ context.Context, td *TelemetryData) {
		got = td
	}))

	if err := ExtractArchive(context.Background(), archive, "", filepath.Join(dir, "out"), cfg, nil); err != nil {
		t.Fatalf("ExtractArchive() error = %v", err)
	}

	expect := &TelemetryData{
		ExtractedFiles:    2,
		ExtractionSize:    2,
		ExtractedType:     "tar",
		RejectedEntries:   1,
		LastRejectedEntry: "../evil",
	}
	if !got.Equals(expect) {
		t.Errorf("telemetry = %v, want %v", got, expect)
	}
	if got.InputSize == 0 {
		t.Errorf("telemetry input size not captured")
	}
}
