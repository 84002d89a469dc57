// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package offline

import "strings"

// Resolve merges a locally queued write with a remote record that describes
// the same event (as paired by their MatchKey).
//
// The newer side wins outright on strict timestamp precedence. On an exact
// tie the payloads are union-merged: remote fields form the base, local
// fields overlay them, and free-text notes from both sides are preserved
// rather than either being discarded.
//
// Resolve is pure and deterministic: identical inputs always produce an
// identical result, which the drain relies on for idempotence.
func Resolve(t RecordType, local QueuedWrite, remote RemoteRecord) Payload {
	if local.CreatedAt.After(remote.CreatedAt) {
		return local.Payload.Clone()
	}
	if remote.CreatedAt.After(local.CreatedAt) {
		return remote.Payload.Clone()
	}

	merged := remote.Payload.Clone()
	for k, v := range local.Payload {
		merged[k] = v
	}

	if notes := unionNotes(stringField(remote.Payload, "notes"), stringField(local.Payload, "notes")); notes != "" {
		merged["notes"] = notes
	}
	return merged
}

// unionNotes joins the distinct, non-empty, trimmed note texts from both
// sides with a newline, remote first. Returns "" when neither side has notes.
func unionNotes(remote, local string) string {
	var parts []string
	for _, s := range []string{remote, local} {
		if s == "" {
			continue
		}
		dup := false
		for _, seen := range parts {
			if seen == s {
				dup = true
				break
			}
		}
		if !dup {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
