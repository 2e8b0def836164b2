// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package installer unpacks makeself self-extracting shell installers, the
// `.sh` format GOG ships for Linux games, into a local game directory.
//
// A makeself file is a shell header followed by two concatenated payloads: a
// small installer archive (usually tar.gz) and the game data archive (a zip).
// The header encodes the line count of the script and the byte length of the
// first payload; [OpenArchive] turns these into byte-accurate [Segment]s.
// [Archive.Probe] recovers the `gameinfo` descriptor and the game icon from
// either payload, and [ExtractArchive] performs a path traversal safe bulk
// extraction of any supported archive.
//
// Multi-step installs are composed with a [Pipeline] of [Stage]s which run
// sequentially on one worker goroutine and report weighted progress through
// a channel of [Event]s. [InstallGame] and [InstallGameWithModLoader] wire
// the common pipelines.
//
// Configuration is done using the [Config], which is created with
// [NewConfig] and adjusted with [ConfigOption]s in an option pattern style.
package installer
