// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"io"

	"github.com/klauspost/pgzip"
)

// fileExtensionGZip is the file extension for gzip files.
const fileExtensionGZip = "gz"

// magicBytesGZip are the magic bytes for gzip compressed files.
var magicBytesGZip = [][]byte{
	{0x1f, 0x8b},
}

// isGZip checks if the header matches the magic bytes for gzip compressed files.
func isGZip(header []byte) bool {
	return matchesMagicBytes(header, 0, magicBytesGZip)
}

// decompressGZipStream returns a reader that inflates src. Blocks are
// decoded ahead in parallel, which pays off on multi-gigabyte game payloads.
func decompressGZipStream(src io.Reader) (io.ReadCloser, error) {
	return pgzip.NewReader(src)
}
