// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// fileExtensionBrotli is the file extension for brotli files
const fileExtensionBrotli = "br"

// isBrotliName reports whether name carries a brotli extension. Brotli
// streams have no magic bytes, so they are only recognized by name.
func isBrotliName(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, "."+fileExtensionBrotli) || strings.HasSuffix(name, ".tbr")
}

// decompressBrotliStream returns a reader that decompresses src with brotli.
func decompressBrotliStream(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(src)), nil
}
