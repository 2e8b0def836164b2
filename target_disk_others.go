// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package installer

import (
	"fmt"
	"runtime"
	"time"
)

// lchtimes is not available outside of unix.
func lchtimes(_ string, _, _ time.Time) error {
	return fmt.Errorf("Lchtimes is not supported on this platform (%s)", runtime.GOOS)
}

// canMaintainSymlinkTimestamps reports whether symlink timestamps can be
// set on this platform.
const canMaintainSymlinkTimestamps = false
