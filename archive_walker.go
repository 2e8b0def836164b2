// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode"
)

// archiveWalker is an interface that represents a file walker in an archive
type archiveWalker interface {
	Type() string
	Next() (archiveEntry, error)
}

// archiveEntry is an interface that represents a file in an archive
type archiveEntry interface {
	AccessTime() time.Time
	IsRegular() bool
	IsDir() bool
	IsSymlink() bool
	Linkname() string
	Mode() fs.FileMode
	ModTime() time.Time
	Name() string
	Open() (io.ReadCloser, error)
	Size() int64
	Type() fs.FileMode
}

// archiveReader is an opened archive of any supported format together with
// the resources that must be released after use.
type archiveReader struct {
	walker      archiveWalker
	format      archiveFormat
	compression archiveFormat
	input       *limitErrorReader
	inputSize   int64
	stream      io.Reader
	zr          *zip.Reader
	sz          *sevenzip.Reader
	closers     []io.Closer
}

// openArchiveReader sniffs the format of src and returns a reader over its
// entries. size is the length of src or -1 if unknown; name is only used to
// recognize formats without magic bytes. Zip and 7z need random access: if
// src is not an io.ReaderAt of known size, it is spooled to memory or to a
// temporary file, depending on [Config.CacheInMemory].
func openArchiveReader(src io.Reader, size int64, name string, cfg *Config) (*archiveReader, error) {
	if size >= 0 && cfg.MaxInputSize() != -1 && size > cfg.MaxInputSize() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMaxInputSizeExceeded, size)
	}

	ar := &archiveReader{inputSize: size, input: newLimitErrorReader(src, cfg.MaxInputSize())}
	hr, err := newHeaderReader(ar.input, maxHeaderLength)
	if err != nil {
		return nil, err
	}

	format := detectFormat(hr.PeekHeader())
	if format == formatUnknown {
		format = formatFromName(name)
	}

	var stream io.Reader = hr
	if decompress, ok := decompressorFor(format); ok {
		rc, err := decompress(hr)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot start %s decompression: %v", ErrFormatMismatch, format, err)
		}
		ar.closers = append(ar.closers, rc)
		ar.compression = format

		inner, err := newHeaderReader(rc, maxHeaderLength)
		if err != nil {
			ar.Close()
			return nil, fmt.Errorf("%w: cannot decompress %s stream: %v", ErrFormatMismatch, format, err)
		}
		if !isTar(inner.PeekHeader()) {
			ar.Close()
			return nil, fmt.Errorf("%w: %s stream does not contain a tar archive", ErrFormatMismatch, format)
		}
		stream, format = inner, formatTar
	}
	ar.format = format

	switch format {
	case formatTar:
		ar.stream, ar.walker = stream, &tarWalker{tr: tar.NewReader(stream)}

	case formatRar:
		r, err := rardecode.NewReader(stream, "")
		if err != nil {
			return nil, fmt.Errorf("%w: cannot create rar decoder: %v", ErrFormatMismatch, err)
		}
		ar.stream, ar.walker = stream, &rarWalker{r: r}

	case formatZip, formatSevenZip:
		ra, n, err := ar.randomAccess(src, size, hr, cfg)
		if err != nil {
			ar.Close()
			return nil, err
		}
		if format == formatZip {
			zr, err := zip.NewReader(ra, n)
			if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
				// insecure names are rejected per entry during extraction
				err = nil
			}
			if err != nil {
				ar.Close()
				return nil, fmt.Errorf("%w: cannot create zip reader: %v", ErrFormatMismatch, err)
			}
			ar.zr, ar.walker = zr, &zipWalker{zr: zr}
		} else {
			sz, err := sevenzip.NewReader(ra, n)
			if err != nil {
				ar.Close()
				return nil, fmt.Errorf("%w: cannot create 7zip reader: %v", ErrFormatMismatch, err)
			}
			ar.sz, ar.walker = sz, &sevenZipWalker{r: sz}
		}

	default:
		return nil, fmt.Errorf("%w: unknown header %x", ErrFormatMismatch, headerPrefix(hr.PeekHeader()))
	}

	return ar, nil
}

// randomAccess returns src as io.ReaderAt when possible, otherwise the rest
// of rest is spooled.
func (ar *archiveReader) randomAccess(src io.Reader, size int64, rest io.Reader, cfg *Config) (io.ReaderAt, int64, error) {
	if ra, ok := src.(io.ReaderAt); ok && size >= 0 {
		return ra, size, nil
	}

	if cfg.CacheInMemory() {
		b, err := io.ReadAll(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("cannot cache archive in memory: %w", err)
		}
		ar.inputSize = int64(len(b))
		return bytes.NewReader(b), int64(len(b)), nil
	}

	f, err := os.CreateTemp(cfg.TempDir(), "installer-spool-*")
	if err != nil {
		return nil, 0, fmt.Errorf("cannot create spool file: %w", err)
	}
	ar.closers = append(ar.closers, closerFunc(func() error {
		f.Close()
		return os.Remove(f.Name())
	}))
	n, err := io.CopyBuffer(f, rest, make([]byte, copyBufferSize))
	if err != nil {
		return nil, 0, fmt.Errorf("cannot spool archive: %w", err)
	}
	ar.inputSize = n
	return f, n, nil
}

// Type returns the archive type, e.g. "zip" or "tar.gz".
func (ar *archiveReader) Type() string {
	if ar.compression != formatUnknown {
		return fmt.Sprintf("%s.%s", formatTar, ar.compression)
	}
	return string(ar.format)
}

// InputSize returns the size of the archive input. For streamed formats it is
// the number of bytes consumed so far.
func (ar *archiveReader) InputSize() int64 {
	if (ar.zr != nil || ar.sz != nil) && ar.inputSize >= 0 {
		return ar.inputSize
	}
	return ar.input.BytesRead()
}

// uncompressedSize sums the declared sizes of all entries below prefix. It
// returns 0 for formats without a central directory.
func (ar *archiveReader) uncompressedSize(prefix string) int64 {
	var total int64
	switch {
	case ar.zr != nil:
		for _, f := range ar.zr.File {
			if strings.HasPrefix(normalizeEntryName(f.Name), prefix) {
				total += int64(f.UncompressedSize64)
			}
		}
	case ar.sz != nil:
		for _, f := range ar.sz.File {
			if strings.HasPrefix(normalizeEntryName(f.Name), prefix) {
				total += f.FileInfo().Size()
			}
		}
	}
	return total
}

// names lists the entry names of the archive. Streamed archives are consumed.
func (ar *archiveReader) names() ([]string, error) {
	var names []string
	for {
		ae, err := ar.walker.Next()
		if err == io.EOF {
			// all entries are known, a broken trailer only skews the input size
			_ = ar.drain()
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if ae != nil {
			names = append(names, normalizeEntryName(ae.Name()))
		}
	}
}

// drain reads the rest of a streamed archive after its last entry, so that
// the trailer of a compression is consumed and counted as input.
func (ar *archiveReader) drain() error {
	if ar.stream == nil {
		return nil
	}
	if _, err := io.Copy(io.Discard, ar.stream); err != nil {
		return fmt.Errorf("cannot read archive trailer: %w", err)
	}
	return nil
}

// Close releases decoders and spool files in reverse order of acquisition.
func (ar *archiveReader) Close() error {
	var firstErr error
	for i := len(ar.closers) - 1; i >= 0; i-- {
		if err := ar.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ar.closers = nil
	return firstErr
}

// normalizeEntryName converts an entry name into a slash separated relative
// name without a leading "./".
func normalizeEntryName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	return name
}

// headerPrefix returns at most the first 8 bytes of header for error messages.
func headerPrefix(header []byte) []byte {
	if len(header) > 8 {
		return header[:8]
	}
	return header
}
