// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for values that arrive from
// HTTP paths, query strings and CLI flags.
//
// Identity ids end up in InfluxDB tags (export), log lines and URL paths,
// so they are restricted to a conservative character set before use.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identityIDPattern matches identity ids as they appear in rankings.
// Allows: letters, digits, underscore, dot, hyphen. Max length: 64.
var identityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,63}$`)

// ValidateIdentityID rejects ids that are empty, too long, or contain
// characters outside [A-Za-z0-9_.-].
//
// Example:
//
//	if err := validation.ValidateIdentityID(id); err != nil {
//	    return nil, fmt.Errorf("invalid identity: %w", err)
//	}
func ValidateIdentityID(id string) error {
	if id == "" {
		return fmt.Errorf("identity id cannot be empty")
	}
	if !identityIDPattern.MatchString(id) {
		return fmt.Errorf("invalid identity id format: %q (must be 1-64 alphanumeric chars, dots, underscores or hyphens)", id)
	}
	return nil
}

// ValidateIdentityIDs validates several ids and lists every invalid one.
func ValidateIdentityIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentityID(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid identity ids: %q", invalid)
	}
	return nil
}

// SanitizeIdentityID trims surrounding whitespace and validates the result.
func SanitizeIdentityID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateIdentityID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
