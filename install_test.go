// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingSink records the calls of an installation.
type recordingSink struct {
	percents  []int
	messages  []string
	errors    []string
	completed [][2]string
}

func (s *recordingSink) Progress(text string, percent int) {
	s.percents = append(s.percents, percent)
	s.messages = append(s.messages, text)
}

func (s *recordingSink) Error(text string) {
	s.errors = append(s.errors, text)
}

func (s *recordingSink) Complete(primary, secondary string) {
	s.completed = append(s.completed, [2]string{primary, secondary})
}

// installerSegmentSize is the size of the first payload of the test installer
const installerSegmentSize = 45000

// buildTestGame writes an installer with a 120 line header. The first
// payload carries only the icon, the data zip carries the gameinfo record
// and the game files.
func buildTestGame(t *testing.T, dir string) string {
	t.Helper()

	installer := gzipWithSize(t, packTar(t, []archiveContent{
		regularFile("scripts/postinstall.sh", "#!/bin/sh\n"),
		regularFile("./support/icon.png", "\x89PNG icon"),
	}), installerSegmentSize)

	data := packZip(t, []archiveContent{
		regularFile("data/noarch/gameinfo", gameinfo()),
		{Name: "data/noarch/game/start.sh", Content: []byte("#!/bin/sh\nexec ./game.x86_64\n"), Mode: 0755},
		regularFile("data/noarch/game/game.dat", "level data"),
		regularFile("data/noarch/game/assets/textures/wall.png", "texture"),
		regularFile("data/noarch/docs/README", "readme"),
		regularFile("data/noarch/support/gog-logo.png", "logo"),
	})

	return buildInstaller(t, dir, 120, installer, data)
}

func TestOpenArchiveLayout(t *testing.T) {
	path := buildTestGame(t, t.TempDir())

	a, err := OpenArchive(path, nil)
	require.NoError(t, err)
	defer a.Close()

	layout := a.Layout()
	require.Equal(t, int64(120), layout.Header.LineOffset)
	require.Equal(t, int64(installerSegmentSize), layout.Header.FileSize)
	require.Equal(t, int64(len(makeselfHeader(t, 120, installerSegmentSize))), layout.ByteOffset)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, stat.Size(), layout.DataSegment().End())
	require.Equal(t, layout.InstallerSegment().End(), layout.DataSegment().Start)
}

func TestInstallGame(t *testing.T) {
	dir := t.TempDir()
	path := buildTestGame(t, dir)
	out := filepath.Join(dir, "library")
	sink := &recordingSink{}

	res, err := InstallGame(context.Background(), path, out, sink, WithTempDir(t.TempDir()))
	require.NoError(t, err)
	require.NotNil(t, res)

	gameDir := filepath.Join(out, "GoG Games", "Test Game")
	require.Equal(t, gameDir, res.GameDir)
	require.Empty(t, res.ModLoaderDir)

	// all seven fields of the data zip record
	require.NotNil(t, res.Metadata)
	require.Equal(t, GameMetadata{
		Name:       "Test Game",
		Version:    "1.0.2",
		Build:      "47111",
		Locale:     "en-US",
		Timestamp1: "2024-09-03",
		Timestamp2: "2024-09-04",
		ID:         "1207658924",
		IconPath:   res.IconPath,
	}, *res.Metadata)

	// icon of the installer payload
	require.Equal(t, filepath.Join(gameDir, "support", "icon.png"), res.IconPath)
	icon, err := os.ReadFile(res.IconPath)
	require.NoError(t, err)
	require.Equal(t, "\x89PNG icon", string(icon))

	// game files without the data/noarch/game prefix
	for name, content := range map[string]string{
		"start.sh":                 "#!/bin/sh\nexec ./game.x86_64\n",
		"game.dat":                 "level data",
		"assets/textures/wall.png": "texture",
		"support/gog-logo.png":     "logo",
	} {
		b, err := os.ReadFile(filepath.Join(gameDir, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		require.Equal(t, content, string(b), name)
	}
	stat, err := os.Stat(filepath.Join(gameDir, "start.sh"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0755), stat.Mode().Perm())

	// entries outside of game and support are not installed
	_, err = os.Stat(filepath.Join(gameDir, "docs"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(gameDir, "gameinfo"))
	require.True(t, os.IsNotExist(err))

	// progress is monotonic and ends with completion
	require.NotEmpty(t, sink.percents)
	for i := 1; i < len(sink.percents); i++ {
		require.GreaterOrEqual(t, sink.percents[i], sink.percents[i-1])
	}
	require.Equal(t, 100, sink.percents[len(sink.percents)-1])
	require.Empty(t, sink.errors)
	require.Equal(t, [][2]string{{gameDir, ""}}, sink.completed)
}

func TestInstallGameTwice(t *testing.T) {
	dir := t.TempDir()
	path := buildTestGame(t, dir)
	out := filepath.Join(dir, "library")

	_, err := InstallGame(context.Background(), path, out, nil)
	require.NoError(t, err)

	res, err := InstallGame(context.Background(), path, out, nil)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(res.GameDir, "game.dat"))
}

func TestInstallGameWithModLoader(t *testing.T) {
	dir := t.TempDir()
	path := buildTestGame(t, dir)
	out := filepath.Join(dir, "library")

	loader := writeTestFile(t, filepath.Join(dir, "MelonLoader.v0.6.1.zip"), packZip(t, []archiveContent{
		regularFile("MelonLoader/version.dll", "dll"),
		regularFile("MelonLoader/Dependencies/Il2Cpp.dll", "dep"),
	}))

	sink := &recordingSink{}
	res, err := InstallGameWithModLoader(context.Background(), path, loader, out, sink)
	require.NoError(t, err)

	loaderDir := filepath.Join(out, "GoG Games", "ModLoader")
	require.Equal(t, loaderDir, res.ModLoaderDir)
	require.FileExists(t, filepath.Join(loaderDir, "version.dll"))
	require.FileExists(t, filepath.Join(loaderDir, "Dependencies", "Il2Cpp.dll"))
	require.NoDirExists(t, filepath.Join(loaderDir, "MelonLoader"))
	require.FileExists(t, filepath.Join(res.GameDir, "game.dat"))

	// the installer covers 70 percent of the run
	require.Contains(t, sink.percents, 70)
	for i := 1; i < len(sink.percents); i++ {
		require.GreaterOrEqual(t, sink.percents[i], sink.percents[i-1])
	}
	require.Equal(t, [][2]string{{res.GameDir, loaderDir}}, sink.completed)
}

func TestInstallGameFailures(t *testing.T) {
	dir := t.TempDir()

	noHeader := writeTestFile(t, filepath.Join(dir, "plain.sh"), []byte("#!/bin/sh\necho hello\n"))
	truncated := writeTestFile(t, filepath.Join(dir, "truncated.sh"),
		append(makeselfHeader(t, 20, 5000), []byte("short")...))

	tests := []struct {
		name   string
		path   string
		expect error
	}{
		{"missing file", filepath.Join(dir, "missing.sh"), os.ErrNotExist},
		{"no makeself header", noHeader, ErrHeaderParse},
		{"installer segment beyond file", truncated, ErrInvalidSegment},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sink := &recordingSink{}
			out := filepath.Join(t.TempDir(), "out")

			res, err := InstallGame(context.Background(), test.path, out, sink)
			require.ErrorIs(t, err, test.expect)
			require.Nil(t, res)
			require.Len(t, sink.errors, 1)
			require.Empty(t, sink.completed)
		})
	}
}

func TestInstallGameModLoaderFailure(t *testing.T) {
	dir := t.TempDir()
	path := buildTestGame(t, dir)
	broken := writeTestFile(t, filepath.Join(dir, "loader.zip"), []byte("not a zip"))

	sink := &recordingSink{}
	_, err := InstallGameWithModLoader(context.Background(), path, broken, filepath.Join(dir, "out"), sink)
	require.ErrorIs(t, err, ErrFormatMismatch)
	require.ErrorContains(t, err, "archive")
	require.Len(t, sink.errors, 1)
	require.Empty(t, sink.completed)

	// the game itself was installed before the failure
	require.FileExists(t, filepath.Join(dir, "out", "GoG Games", "Test Game", "game.dat"))
}

func TestInstallGameCanceled(t *testing.T) {
	path := buildTestGame(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := InstallGame(ctx, path, t.TempDir(), nil)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestInstallGameWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	path := buildInstaller(t, dir, 12,
		compressGzip(t, packTar(t, []archiveContent{regularFile("setup.sh", "#!/bin/sh")})),
		packZip(t, []archiveContent{regularFile("data/noarch/game/run", "run")}),
	)

	res, err := InstallGame(context.Background(), path, filepath.Join(dir, "out"), nil)
	require.NoError(t, err)
	require.Nil(t, res.Metadata)
	require.Empty(t, res.IconPath)

	// the installer file name names the directory
	require.Equal(t, filepath.Join(dir, "out", "GoG Games", "test_game_1.0"), res.GameDir)
	require.FileExists(t, filepath.Join(res.GameDir, "run"))
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := buildTestGame(t, dir)

	m, err := Inspect(context.Background(), path, "")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, "Test Game", m.Name)
	require.Equal(t, "1207658924", m.ID)
	require.Empty(t, m.IconPath)

	iconDir := filepath.Join(dir, "icons")
	m, err = Inspect(context.Background(), path, iconDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(iconDir, "Test Game.png"), m.IconPath)
	icon, err := os.ReadFile(m.IconPath)
	require.NoError(t, err)
	require.Equal(t, "\x89PNG icon", string(icon))

	// nothing is installed
	_, err = os.Stat(filepath.Join(dir, "GoG Games"))
	require.True(t, os.IsNotExist(err))
}

func TestInspectWithoutMetadata(t *testing.T) {
	path := buildInstaller(t, t.TempDir(), 12,
		compressGzip(t, packTar(t, []archiveContent{regularFile("setup.sh", "#!/bin/sh")})),
		packZip(t, []archiveContent{regularFile("data/noarch/game/run", "run")}),
	)

	m, err := Inspect(context.Background(), path, t.TempDir())
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestSanitizeDirName(t *testing.T) {
	tests := map[string]string{
		"Test Game":             "Test Game",
		"Game: The Sequel":      "Game_ The Sequel",
		`a/b\c<d>e|f?g*h"i`:     "a_b_c_d_e_f_g_h_i",
		"  .hidden.  ":          "hidden",
		"tab\tand\nnewline":     "tabandnewline",
		"":                      "game",
		"...":                   "game",
		"Ünïcode Adventure 2.0": "Ünïcode Adventure 2.0",
	}
	for input, expect := range tests {
		require.Equal(t, expect, sanitizeDirName(input), input)
	}
}

func TestInstallerBaseName(t *testing.T) {
	require.Equal(t, "test_game_1.0", installerBaseName("/tmp/test_game_1.0.sh"))
	require.Equal(t, "setup", installerBaseName("setup.SH"))
	require.Equal(t, "setup.run", installerBaseName("setup.run"))
}
