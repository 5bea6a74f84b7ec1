// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot holds the data model for ranked venue observations.
//
// # Description
//
// A Snapshot is one timestamped, partial ranking of the identities that a
// venue currently reports as active. A Log collects the snapshots of a
// single calendar day and indexes, for every identity, the rank it held
// at each sample.
//
// The ranking is only a prefix of a larger ordering. An identity missing
// from a snapshot may simply be ranked below the cutoff, so a Log never
// treats absence as departure on its own.
//
// # Thread Safety
//
// Identity, Snapshot and Log are immutable after construction. Every
// accessor that could expose internal slices returns a copy, so a Log can
// be shared freely between goroutines.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Identity identifies a participant.
//
// Two identities are the same participant when their IDs match. Name is a
// display name that may change between days and never takes part in
// equality.
type Identity struct {
	Name string
	ID   string
}

// Key returns the value identities are compared and hashed by.
func (p Identity) Key() string {
	return p.ID
}

// Equal reports whether p and other refer to the same participant.
func (p Identity) Equal(other Identity) bool {
	return p.ID == other.ID
}

func (p Identity) String() string {
	return fmt.Sprintf("%s(%s)", p.Name, p.ID)
}

// MarshalJSON writes the identity as a [name, id] pair, the shape day files
// have always used.
func (p Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Name, p.ID})
}

// UnmarshalJSON accepts either a [name, id] pair or a {"name","id"} object.
func (p *Identity) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("identity pair must have 2 elements, got %d", len(pair))
		}
		p.Name, p.ID = pair[0], pair[1]
		return nil
	}

	var obj struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	p.Name, p.ID = obj.Name, obj.ID
	return nil
}

// IdentitySet is a set of identities keyed by ID.
//
// Adding an identity whose ID is already present keeps the stored entry,
// so the first observed display name wins.
type IdentitySet map[string]Identity

// Add inserts p unless an identity with the same ID is already present.
func (s IdentitySet) Add(p Identity) {
	if _, ok := s[p.ID]; !ok {
		s[p.ID] = p
	}
}

// Contains reports whether an identity with p's ID is in the set.
func (s IdentitySet) Contains(p Identity) bool {
	_, ok := s[p.ID]
	return ok
}

// Clone returns an independent copy of the set.
func (s IdentitySet) Clone() IdentitySet {
	out := make(IdentitySet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Sorted returns the members ordered by ID.
func (s IdentitySet) Sorted() []Identity {
	out := make([]Identity, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
