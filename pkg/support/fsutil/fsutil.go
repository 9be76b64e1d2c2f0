// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
// A "~name/..." prefix is replaced by the home directory of the user "name".
//
// It returns an error if `dir` has an unknown user.
func ReplaceTildeInDir(dir string) (string, error) {
	rest, hasTilde := strings.CutPrefix(dir, "~")
	if !hasTilde {
		return dir, nil
	}
	userName, rest, _ := strings.Cut(rest, "/")
	var homeDir string
	if userName == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return "", errors.Wrapf(err, "failed to find home directory for path %q", dir)
		}
	} else {
		usr, err := user.Lookup(userName)
		if err != nil {
			return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
		}
		homeDir = usr.HomeDir
	}
	return filepath.Join(homeDir, rest), nil
}

// ExpandPaths applies ReplaceTildeInDir to each of the paths, and returns the first error.
func ExpandPaths(paths ...string) ([]string, error) {
	expanded := make([]string, 0, len(paths))
	for _, p := range paths {
		e, err := ReplaceTildeInDir(p)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, e)
	}
	return expanded, nil
}
