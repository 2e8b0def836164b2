// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// archiveContent describes one entry of a test archive
type archiveContent struct {
	Name       string
	Content    []byte
	Mode       fs.FileMode
	Filetype   byte
	Linktarget string
}

// packTar creates a tar archive with the given content
func packTar(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, c := range content {
		mode := c.Mode
		if mode == 0 {
			mode = 0644
		}
		hdr := &tar.Header{
			Name:     c.Name,
			Mode:     int64(mode.Perm()),
			Size:     int64(len(c.Content)),
			Linkname: c.Linktarget,
			Typeflag: c.Filetype,
			ModTime:  time.Date(2024, 9, 4, 8, 3, 44, 0, time.UTC),
		}
		if c.Filetype != tar.TypeReg {
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("error writing tar header: %v", err)
		}
		if c.Filetype == tar.TypeReg {
			if _, err := tw.Write(c.Content); err != nil {
				t.Fatalf("error writing tar data: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("error closing tar writer: %v", err)
	}
	return buf.Bytes()
}

// packZip creates a zip archive with the given content. Symlinks store their
// target as content.
func packZip(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, c := range content {
		mode := c.Mode
		if mode == 0 {
			mode = 0644
		}
		hdr := &zip.FileHeader{Name: c.Name, Method: zip.Deflate}
		data := c.Content
		switch c.Filetype {
		case tar.TypeDir:
			hdr.SetMode(fs.ModeDir | 0755)
			data = nil
		case tar.TypeSymlink:
			hdr.SetMode(fs.ModeSymlink | 0777)
			data = []byte(c.Linktarget)
		default:
			hdr.SetMode(mode.Perm())
		}
		hdr.Modified = time.Date(2024, 9, 4, 8, 3, 44, 0, time.UTC)

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("error creating zip entry: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("error writing zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("error closing zip writer: %v", err)
	}
	return buf.Bytes()
}

// regularFile is a shortcut for a regular tar or zip entry
func regularFile(name, content string) archiveContent {
	return archiveContent{Name: name, Content: []byte(content), Mode: 0644, Filetype: tar.TypeReg}
}

// compressFunc is a function that compresses a byte slice
type compressFunc func(*testing.T, []byte) []byte

func compressGzip(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := pgzip.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing gzip: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

func compressBzip2(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w, err := bzip2.NewWriter(buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		t.Fatalf("error creating bzip2 writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing bzip2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing bzip2 writer: %v", err)
	}
	return buf.Bytes()
}

func compressXz(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w, err := xz.NewWriter(buf)
	if err != nil {
		t.Fatalf("error creating xz writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing xz: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing xz writer: %v", err)
	}
	return buf.Bytes()
}

func compressZstd(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w, err := zstd.NewWriter(buf)
	if err != nil {
		t.Fatalf("error creating zstd writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing zstd: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing zstd writer: %v", err)
	}
	return buf.Bytes()
}

func compressLZ4(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := lz4.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing lz4: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing lz4 writer: %v", err)
	}
	return buf.Bytes()
}

func compressSnappy(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := snappy.NewBufferedWriter(buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing snappy: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing snappy writer: %v", err)
	}
	return buf.Bytes()
}

func compressBrotli(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := brotli.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing brotli: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing brotli writer: %v", err)
	}
	return buf.Bytes()
}

// gzipWithSize compresses data into a gzip stream of exactly size bytes by
// padding the extra field of the gzip header.
func gzipWithSize(t *testing.T, data []byte, size int) []byte {
	t.Helper()

	encode := func(extra []byte) []byte {
		buf := &bytes.Buffer{}
		w := gzip.NewWriter(buf)
		w.Extra = extra
		if _, err := w.Write(data); err != nil {
			t.Fatalf("error writing gzip: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("error closing gzip writer: %v", err)
		}
		return buf.Bytes()
	}

	// an extra field adds two length bytes plus its content
	pad := size - len(encode(nil)) - 2
	if pad < 0 || pad > 0xffff {
		t.Fatalf("cannot pad gzip stream to %d bytes", size)
	}
	out := encode(make([]byte, pad))
	if len(out) != size {
		t.Fatalf("padded gzip stream has %d bytes, want %d", len(out), size)
	}
	return out
}

// makeselfHeader returns a shell header of exactly lines lines that
// declares lines and fileSize the way makeself does.
func makeselfHeader(t *testing.T, lines int, fileSize int) []byte {
	t.Helper()

	script := []string{
		"#!/bin/sh",
		"# This script was generated using Makeself 2.4.5",
		"ORIG_UMASK=`umask`",
		`CRCsum="0000000000"`,
		`MD5="00000000000000000000000000000000"`,
		`label="test game"`,
		fmt.Sprintf(`filesizes="%d"`, fileSize),
		`USIZE=12`,
		fmt.Sprintf("offset=`head -n %d \"$0\" | wc -c | tr -d \" \"`", lines),
	}
	if lines < len(script) {
		t.Fatalf("header needs at least %d lines", len(script))
	}

	buf := &bytes.Buffer{}
	for i := 0; i < lines; i++ {
		if i < len(script) {
			buf.WriteString(script[i])
		} else {
			fmt.Fprintf(buf, "# line %d", i+1)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// buildInstaller writes a makeself installer that consists of a header with
// lines lines followed by the installer and the data payload.
func buildInstaller(t *testing.T, dir string, lines int, installer, data []byte) string {
	t.Helper()

	content := append(makeselfHeader(t, lines, len(installer)), installer...)
	content = append(content, data...)
	return writeTestFile(t, filepath.Join(dir, "test_game_1.0.sh"), content)
}

// writeTestFile writes content to path and returns path
func writeTestFile(t *testing.T, path string, content []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("error creating directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("error writing file: %v", err)
	}
	return path
}

// gameinfo returns a gameinfo file with all seven fields
func gameinfo() string {
	return "Test Game\n1.0.2\n47111\nen-US\n2024-09-03\n2024-09-04\n1207658924\n"
}
