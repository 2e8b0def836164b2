// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"io"
	"io/fs"
	"time"

	"github.com/bodgit/sevenzip"
)

// fileExtension7zip is the file extension for 7zip files
const fileExtension7zip = "7z"

// magicBytes7zip are the magic bytes for 7zip files
var magicBytes7zip = [][]byte{
	{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C},
}

// is7zip checks if the header matches the magic bytes for 7zip files
func is7zip(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytes7zip)
}

// sevenZipWalker is a walker for 7zip files
type sevenZipWalker struct {
	r  *sevenzip.Reader
	fp int
}

// Type returns the file extension for 7zip files
func (z *sevenZipWalker) Type() string {
	return fileExtension7zip
}

// Next returns the next entry in the 7zip file
func (z *sevenZipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.r.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &sevenZipEntry{z.r.File[z.fp]}, nil
}

// sevenZipEntry is an entry in a 7zip file
type sevenZipEntry struct {
	f *sevenzip.File
}

// AccessTime returns the access time of the 7zip entry
func (z *sevenZipEntry) AccessTime() time.Time {
	return z.f.FileInfo().ModTime()
}

// Name returns the name of the 7zip entry
func (z *sevenZipEntry) Name() string {
	return z.f.Name
}

// Size returns the size of the 7zip entry
func (z *sevenZipEntry) Size() int64 {
	return z.f.FileInfo().Size()
}

// Mode returns the mode of the 7zip entry
func (z *sevenZipEntry) Mode() fs.FileMode {
	return z.f.FileInfo().Mode()
}

// ModTime returns the modification time of the 7zip entry
func (z *sevenZipEntry) ModTime() time.Time {
	return z.f.FileInfo().ModTime()
}

// Linkname returns the linkname of the 7zip entry
// Remark: 7zip does not support symlinks
func (z *sevenZipEntry) Linkname() string {
	return ""
}

// IsRegular returns true if the 7zip entry is a regular file
func (z *sevenZipEntry) IsRegular() bool {
	return z.f.FileInfo().Mode().IsRegular()
}

// IsDir returns true if the 7zip entry is a directory
func (z *sevenZipEntry) IsDir() bool {
	return z.f.FileInfo().Mode().IsDir()
}

// IsSymlink returns true if the 7zip entry is a symlink
// Remark: 7zip does not support symlinks
func (z *sevenZipEntry) IsSymlink() bool {
	return false
}

// Open returns a reader for the 7zip entry
func (z *sevenZipEntry) Open() (io.ReadCloser, error) {
	return z.f.Open()
}

// Type returns the type of the 7zip entry
func (z *sevenZipEntry) Type() fs.FileMode {
	return z.f.FileInfo().Mode().Type()
}
