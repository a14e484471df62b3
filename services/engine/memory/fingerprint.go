// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// fingerprintLength is the number of hex characters kept from the digest.
const fingerprintLength = 16

// Fingerprint derives the deterministic session identifier for an
// identity set. The set is sorted first, so ordering never changes the
// result. An empty set is valid and maps to the fingerprint of an empty
// list, giving path-less requests a single shared session.
func Fingerprint(identitySet []string) string {
	sorted := append([]string(nil), identitySet...)
	sort.Strings(sorted)
	if sorted == nil {
		sorted = []string{}
	}

	// Marshal of a sorted string slice cannot fail.
	encoded, _ := json.Marshal(sorted)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
