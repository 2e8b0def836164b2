// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"io"
	"io/fs"
	"time"

	"github.com/nwaples/rardecode"
)

// fileExtensionRar is the file extension for Rar files.
const fileExtensionRar = "rar"

// magicBytesRar are the magic bytes for Rar files.
var magicBytesRar = [][]byte{
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00},       // Rar 1.5
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, // Rar 5.0
}

// isRar checks if the header matches the magic bytes for Rar files.
func isRar(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytesRar)
}

// rarWalker is an archiveWalker for Rar files.
type rarWalker struct {
	r *rardecode.Reader
}

// Type returns the file extension for rar files.
func (rw *rarWalker) Type() string {
	return fileExtensionRar
}

// Next returns the next entry in the rar file.
func (rw *rarWalker) Next() (archiveEntry, error) {
	fh, err := rw.r.Next()
	if err != nil {
		return nil, err
	}
	return &rarEntry{fh, rw.r}, nil
}

// rarEntry is an archiveEntry for Rar files.
type rarEntry struct {
	f *rardecode.FileHeader
	r io.Reader
}

// AccessTime returns the access time of the file.
func (r *rarEntry) AccessTime() time.Time {
	return r.f.AccessTime
}

// Name returns the name of the file.
func (r *rarEntry) Name() string {
	return r.f.Name
}

// Size returns the size of the file.
func (r *rarEntry) Size() int64 {
	return r.f.UnPackedSize
}

// Mode returns the mode of the file.
func (r *rarEntry) Mode() fs.FileMode {
	return r.f.Mode()
}

// ModTime returns the modification time of the file.
func (r *rarEntry) ModTime() time.Time {
	return r.f.ModificationTime
}

// Linkname symlinks are not supported.
func (r *rarEntry) Linkname() string {
	return ""
}

// IsRegular returns true if the file is a regular file.
func (r *rarEntry) IsRegular() bool {
	return r.f.Mode().IsRegular()
}

// IsDir returns true if the file is a directory.
func (r *rarEntry) IsDir() bool {
	return r.f.IsDir
}

// IsSymlink returns true if the file is a symlink.
func (r *rarEntry) IsSymlink() bool {
	return false
}

// Open returns a reader for the file. The reader is only valid until the
// walker advances.
func (r *rarEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(r.r), nil
}

// Type returns the type of the file.
func (r *rarEntry) Type() fs.FileMode {
	return r.f.Mode().Type()
}
