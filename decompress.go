// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"bytes"
	"io"
	"strings"
)

// archiveFormat names a container or compression format by its file extension.
type archiveFormat string

const formatUnknown archiveFormat = ""

// container formats
const (
	formatTar      archiveFormat = fileExtensionTar
	formatZip      archiveFormat = fileExtensionZip
	formatSevenZip archiveFormat = fileExtension7zip
	formatRar      archiveFormat = fileExtensionRar
)

// compression formats
const (
	formatGZip   archiveFormat = fileExtensionGZip
	formatBzip2  archiveFormat = fileExtensionBzip2
	formatXz     archiveFormat = fileExtensionXz
	formatZstd   archiveFormat = fileExtensionZstd
	formatLZ4    archiveFormat = fileExtensionLZ4
	formatSnappy archiveFormat = fileExtensionSnappy
	formatBrotli archiveFormat = fileExtensionBrotli
)

// decompressionFunc wraps a compressed stream into a reader of the plain data.
type decompressionFunc func(io.Reader) (io.ReadCloser, error)

// compressions lists the stream compressions in detection order.
var compressions = []struct {
	format     archiveFormat
	check      func([]byte) bool
	decompress decompressionFunc
}{
	{formatGZip, isGZip, decompressGZipStream},
	{formatBzip2, isBzip2, decompressBzip2Stream},
	{formatXz, isXz, decompressXzStream},
	{formatZstd, isZstd, decompressZstdStream},
	{formatLZ4, isLZ4, decompressLZ4Stream},
	{formatSnappy, isSnappy, decompressSnappyStream},
	{formatBrotli, func([]byte) bool { return false }, decompressBrotliStream},
}

// containers lists the archive formats in detection order. Tar comes last,
// its magic bytes are located deepest in the header.
var containers = []struct {
	format archiveFormat
	check  func([]byte) bool
}{
	{formatZip, isZip},
	{formatSevenZip, is7zip},
	{formatRar, isRar},
	{formatTar, isTar},
}

// maxHeaderLength is the number of bytes needed to detect every format.
var maxHeaderLength int

// init calculates the maximum header length
func init() {
	magics := []struct {
		offset int
		bytes  [][]byte
	}{
		{0, magicBytesGZip},
		{0, magicBytesBzip2},
		{0, magicBytesXz},
		{0, magicBytesZstd},
		{0, magicBytesLZ4},
		{0, magicBytesSnappy},
		{0, magicBytesZip},
		{0, magicBytes7zip},
		{0, magicBytesRar},
		{offsetTar, magicBytesTar},
	}
	for _, m := range magics {
		for _, mb := range m.bytes {
			if needs := m.offset + len(mb); needs > maxHeaderLength {
				maxHeaderLength = needs
			}
		}
	}
}

// detectFormat sniffs the magic bytes in header and returns the detected
// container or compression format, or formatUnknown.
func detectFormat(header []byte) archiveFormat {
	for _, c := range containers {
		if c.check(header) {
			return c.format
		}
	}
	for _, c := range compressions {
		if c.check(header) {
			return c.format
		}
	}
	return formatUnknown
}

// formatFromName guesses the format from the file name. It is only consulted
// when the magic bytes are inconclusive.
func formatFromName(name string) archiveFormat {
	lower := strings.ToLower(name)
	switch {
	case isBrotliName(lower):
		return formatBrotli
	case strings.HasSuffix(lower, "."+fileExtensionTar):
		return formatTar
	}
	return formatUnknown
}

// decompressorFor returns the decompression function of a compression format.
func decompressorFor(f archiveFormat) (decompressionFunc, bool) {
	for _, c := range compressions {
		if c.format == f {
			return c.decompress, true
		}
	}
	return nil, false
}

// matchesMagicBytes checks if data contains one of magicBytes at offset.
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	// check all possible magic bytes until match is found
	for _, mb := range magicBytes {
		// check if header is long enough
		if offset+len(mb) > len(data) {
			continue
		}

		// check for byte match
		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}

	// no match found
	return false
}
