/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

// Package util collects small cross-package helpers that don't belong
// to any one component: path normalization between the JVM's internal
// '/'-separated class-name format and the host OS path separator.
package util

import (
	"os"
	"strings"
)

// ConvertToPlatformPathSeparators converts a class name in
// java/lang/Object form to the host OS's path separator, so it can be
// joined into a filesystem path.
func ConvertToPlatformPathSeparators(className string) string {
	if os.PathSeparator == '/' {
		return className
	}
	return strings.ReplaceAll(className, "/", string(os.PathSeparator))
}

// ConvertClassFilenameToInternalFormat converts back from a platform
// path to the internal '/'-separated class name, trimming a trailing
// ".class" if present.
func ConvertClassFilenameToInternalFormat(filename string) string {
	name := strings.TrimSuffix(filename, ".class")
	if os.PathSeparator != '/' {
		name = strings.ReplaceAll(name, string(os.PathSeparator), "/")
	}
	return strings.ReplaceAll(name, "\\", "/")
}
