// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// Package alerts derives immunization follow-up alerts from the merged read
// view. Deduplication state is owned explicitly by the caller and scoped to
// a session, never shared process-wide.
package alerts

import (
	"sync"
	"time"

	"github.com/Blaqmann/ehr-system/offline"
)

// Alert is a due-date notification for a missed immunization follow-up.
type Alert struct {
	Kind        string
	Message     string
	Key         string
	VaccineType string
	NextDueDate string
}

// SeenSet remembers which alerts were already raised within one session.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSeenSet creates an empty session-scoped dedup set.
func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[string]struct{})}
}

// Add records a key and reports whether it was new.
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Remove forgets a key, allowing the alert to fire again (e.g. after the
// user dismisses the on-screen notification).
func (s *SeenSet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// CheckOverdue scans a merged immunization view and returns follow-up alerts
// for records whose nextDueDate has passed. Records still tagged offline are
// never alerted on: a pending local write must not look like a missed
// follow-up. Already-seen alerts are suppressed through the caller's set.
func CheckOverdue(immunizations []offline.MergedRecord, today time.Time, seen *SeenSet) []Alert {
	cutoff := today.Format("2006-01-02")

	var out []Alert
	for _, imm := range immunizations {
		if imm.Offline || imm.Type != offline.RecordImmunization {
			continue
		}
		due, _ := imm.Payload["nextDueDate"].(string)
		if due == "" || due >= cutoff {
			continue
		}

		vaccine, _ := imm.Payload["vaccineType"].(string)
		key := "followup-" + vaccine + "-" + due
		if !seen.Add(key) {
			continue
		}
		out = append(out, Alert{
			Kind:        "followup",
			Message:     "Follow-up immunization due for " + vaccine + " on " + due + ".",
			Key:         key,
			VaccineType: vaccine,
			NextDueDate: due,
		})
	}
	return out
}
