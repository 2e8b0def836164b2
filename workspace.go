// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// workspace is the private temporary directory of one installation run. It
// holds payload copies and probed entries and is removed by Close.
type workspace struct {
	dir      string
	cfg      *Config
	dataPath string
}

// newWorkspace creates a fresh directory below [Config.TempDir].
func newWorkspace(cfg *Config) (*workspace, error) {
	dir, err := os.MkdirTemp(cfg.TempDir(), "installer-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create workspace: %w", err)
	}
	return &workspace{dir: dir, cfg: cfg}, nil
}

// path returns the location of name inside the workspace.
func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// writeFile stores at most size bytes of src as name in the workspace. A
// negative size copies src completely.
func (w *workspace) writeFile(name string, src io.Reader, size int64) (string, error) {
	path := w.path(name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errWorkspace, err)
	}

	if size >= 0 {
		src = io.LimitReader(src, size)
	}
	_, err = io.CopyBuffer(f, src, make([]byte, copyBufferSize))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", errWorkspace, cerr)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// dataSegment copies the data segment of a into the workspace once and
// returns the path of the copy.
func (w *workspace) dataSegment(ctx context.Context, a *Archive) (string, error) {
	if len(w.dataPath) > 0 {
		return w.dataPath, nil
	}

	path := w.path("data.zip")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errWorkspace, err)
	}
	_, err = a.CopySegment(ctx, a.Layout().DataSegment(), f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("cannot copy data segment: %w", err)
	}

	w.dataPath = path
	return path, nil
}

// Close removes the workspace. Failures are logged only, they must not
// hide the result of the run.
func (w *workspace) Close() error {
	if err := os.RemoveAll(w.dir); err != nil {
		w.cfg.Logger().Warn("cannot remove workspace", "dir", w.dir, "error", err)
	}
	return nil
}
