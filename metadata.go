// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// GameMetadata is the record stored in the `gameinfo` file of an installer.
// Fields that were not present in the file are empty.
type GameMetadata struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Build      string `json:"build"`
	Locale     string `json:"locale"`
	Timestamp1 string `json:"timestamp1"`
	Timestamp2 string `json:"timestamp2"`
	ID         string `json:"id"`

	// IconPath is set by the probe that found the icon, not by the parser
	IconPath string `json:"icon_path,omitempty"`
}

// maxMetadataLine bounds a single line of a gameinfo file.
const maxMetadataLine = 64 << 10

// ParseMetadata reads a gameinfo file. Every line advances a 1-based
// counter, including blank lines; a non-blank line is assigned to the field
// with the ordinal of the counter: name, version, build, locale,
// timestamp1, timestamp2, id. Lines after the seventh are ignored.
func ParseMetadata(r io.Reader) (*GameMetadata, error) {
	m := &GameMetadata{}
	fields := []*string{&m.Name, &m.Version, &m.Build, &m.Locale, &m.Timestamp1, &m.Timestamp2, &m.ID}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxMetadataLine)

	line := 0
	for line < len(fields) && scanner.Scan() {
		line++
		value := strings.TrimSpace(scanner.Text())
		if len(value) == 0 {
			continue
		}
		*fields[line-1] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read metadata: %w", err)
	}

	return m, nil
}

// ReadMetadataFile parses the gameinfo file at path. It returns nil if the
// file cannot be opened or read; metadata is optional for an installation.
func ReadMetadataFile(path string) *GameMetadata {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	m, err := ParseMetadata(f)
	if err != nil {
		return nil
	}
	return m
}

// DisplayName returns the name of the game, falling back to the id and
// then to fallback. It is safe to call on a nil record.
func (m *GameMetadata) DisplayName(fallback string) string {
	switch {
	case m == nil:
		return fallback
	case len(m.Name) > 0:
		return m.Name
	case len(m.ID) > 0:
		return m.ID
	}
	return fallback
}

// String returns the JSON representation of the record.
func (m GameMetadata) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// parseConfigID extracts the id from a scripts/config.lua file: the first
// quoted value on a line containing "id = ".
func parseConfigID(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxMetadataLine)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "id = ") {
			continue
		}
		start := strings.IndexAny(line, `"'`)
		if start < 0 {
			continue
		}
		end := strings.IndexAny(line[start+1:], `"'`)
		if end <= 0 {
			continue
		}
		return line[start+1 : start+1+end]
	}
	return ""
}
