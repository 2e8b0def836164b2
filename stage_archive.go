// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"path/filepath"
)

// ArchiveStage extracts a generic archive, e.g. a mod loader package.
type ArchiveStage struct {
	Source      string
	Prefix      string
	Destination string

	// DetectPrefix replaces Prefix with the result of [AnalyzeArchive]
	DetectPrefix bool

	Config *Config
}

// Name implements [Stage].
func (s *ArchiveStage) Name() string {
	return "archive"
}

// Run implements [Stage].
func (s *ArchiveStage) Run(ctx context.Context, _ *State, report ProgressFunc) (StageOutput, error) {
	cfg := s.Config
	if cfg == nil {
		cfg = NewConfig()
	}
	if report == nil {
		report = func(float64, string) {}
	}
	if len(s.Source) == 0 || len(s.Destination) == 0 {
		return nil, errMissingStageInput
	}

	prefix := s.Prefix
	if s.DetectPrefix {
		report(0, "analyzing "+filepath.Base(s.Source))
		prefix = AnalyzeArchive(ctx, s.Source, cfg)
	}

	if err := ExtractArchive(ctx, s.Source, prefix, s.Destination, cfg, report); err != nil {
		return nil, err
	}
	return &ArchiveOutput{Dir: s.Destination, Prefix: normalizePrefix(prefix)}, nil
}
