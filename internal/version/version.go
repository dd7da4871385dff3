/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

// Package version exposes the build version of the application.
package version

// Version is overridden at build time via -ldflags "-X goslidewriter/internal/version.Version=...".
var Version = "0.1.0-dev"

// String returns a printable version string.
func String() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
