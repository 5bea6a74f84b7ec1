// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import "errors"

var (
	// ErrInvalidRange is returned when timestamps that must describe one
	// calendar day do not.
	ErrInvalidRange = errors.New("timestamps span more than one day")

	// ErrUnknownIdentity is returned when an identity is queried against a
	// log that never ranked it.
	ErrUnknownIdentity = errors.New("identity not present in log")
)
