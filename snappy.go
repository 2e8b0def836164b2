// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"io"

	"github.com/klauspost/compress/snappy"
)

// fileExtensionSnappy is the file extension for snappy files.
const fileExtensionSnappy = "sz"

// magicBytesSnappy is the stream identifier of the snappy framing format.
var magicBytesSnappy = [][]byte{
	append([]byte{0xff, 0x06, 0x00, 0x00}, []byte("sNaPpY")...),
}

// isSnappy checks if the header matches the snappy magic bytes.
func isSnappy(header []byte) bool {
	return matchesMagicBytes(header, 0, magicBytesSnappy)
}

// decompressSnappyStream returns a reader that decompresses framed snappy data.
func decompressSnappyStream(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}
