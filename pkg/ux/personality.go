// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputEnv overrides the detected output level.
const OutputEnv = "VENUEWATCH_OUTPUT"

// PersonalityLevel defines the richness of CLI output
type PersonalityLevel string

const (
	// PersonalityStandard enables colors, icons, bars and boxes
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal keeps icons and alignment but drops colors
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs tab-separated text suitable for scripting
	PersonalityMachine PersonalityLevel = "machine"
)

// ParsePersonalityLevel converts a string to PersonalityLevel. Unknown
// names give PersonalityStandard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q", "tsv":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// DetectLevel picks the level for output written to f: the OutputEnv
// value if set, machine output when f is not a terminal, standard
// otherwise.
func DetectLevel(f *os.File) PersonalityLevel {
	if env := os.Getenv(OutputEnv); env != "" {
		return ParsePersonalityLevel(env)
	}
	if f == nil || !isTerminal(f.Fd()) {
		return PersonalityMachine
	}
	return PersonalityStandard
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ShouldShowColors reports whether level renders lipgloss colors.
func ShouldShowColors(level PersonalityLevel) bool {
	return level == PersonalityStandard
}
