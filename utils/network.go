package utils

import (
	"path/filepath"
	"strings"
)

// mountPrefixes are directories that commonly front network filesystems.
var mountPrefixes = []string{
	"/mnt/",     // Linux NFS/SMB mounts
	"/media/",   // Linux removable/network media
	"/Volumes/", // macOS network volumes
}

// fsIndicators are network filesystem names that tend to show up inside
// mount paths.
var fsIndicators = []string{"nfs", "cifs", "smb", "webdav", "ftp", "sftp"}

// IsNetworkDrive reports whether a path looks like it lives on a network
// mount. Scanning and hashing touch every byte of every file, so callers
// back off the local-disk fast paths when this returns true.
func IsNetworkDrive(path string) bool {
	// UNC paths must be caught before Abs mangles the double slash.
	if strings.HasPrefix(path, "//") || strings.HasPrefix(path, `\\`) {
		return true
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, prefix := range mountPrefixes {
		if strings.HasPrefix(abs, prefix) {
			return true
		}
	}

	lower := strings.ToLower(abs)
	for _, indicator := range fsIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
