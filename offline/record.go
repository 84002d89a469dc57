// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// Package offline implements the offline-first synchronization engine for
// the EHR client: a durable local write queue, connectivity-aware write
// routing, a read-path merger and a deterministic conflict resolver.
package offline

import (
	"fmt"
	"strings"
	"time"
)

// RecordType identifies a clinical record kind. It is a closed set; adding a
// type requires extending the switches in matchKey, validatePayload and
// ParseRecordType, which the compiler and tests enforce.
type RecordType int

const (
	RecordVisit RecordType = iota
	RecordImmunization
	RecordReferral
)

// recordTypeNames are the wire/storage names, matching the remote API paths.
var recordTypeNames = map[RecordType]string{
	RecordVisit:        "visit",
	RecordImmunization: "immunization",
	RecordReferral:     "referral",
}

func (t RecordType) String() string {
	if name, ok := recordTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("recordtype(%d)", int(t))
}

// ParseRecordType converts a storage/wire name back to a RecordType.
func ParseRecordType(name string) (RecordType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "visit":
		return RecordVisit, nil
	case "immunization":
		return RecordImmunization, nil
	case "referral":
		return RecordReferral, nil
	default:
		return 0, fmt.Errorf("unknown record type %q", name)
	}
}

// RecordTypes returns all known record types, in declaration order.
func RecordTypes() []RecordType {
	return []RecordType{RecordVisit, RecordImmunization, RecordReferral}
}

// Payload holds the domain fields of a clinical record (visit date, symptoms,
// vaccine type, referral facility and so on) as captured by the entry form.
type Payload map[string]any

// Clone returns a shallow copy. Payload values are scalars or strings coming
// from JSON, so a shallow copy is sufficient for merge isolation.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// stringField returns the trimmed string value of a payload field, or "" when
// the field is absent or not a string.
func stringField(p Payload, key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// QueuedWrite is a pending local mutation awaiting delivery to the remote
// store. The triple (PatientID, Type, CreatedAt) is unique in the queue and
// serves as the natural de-duplication key during conflict detection.
type QueuedWrite struct {
	ID        string
	Type      RecordType
	PatientID string
	Payload   Payload
	CreatedAt time.Time
	Synced    bool
}

// RemoteRecord is the authoritative, server-confirmed counterpart of a
// clinical record, with a server-assigned identifier.
type RemoteRecord struct {
	ID        string
	PatientID string
	Type      RecordType
	Payload   Payload
	CreatedAt time.Time
}

// MergedRecord is one entry of the read-time union of remote and
// pending-local records. Offline marks entries still waiting in the queue.
type MergedRecord struct {
	ID        string
	PatientID string
	Type      RecordType
	Payload   Payload
	CreatedAt time.Time
	Offline   bool
}

// matchKey computes the per-type natural key used to detect that a pending
// local write and a remote write describe the same real-world event. It is
// used only for conflict detection, never for storage identity.
func matchKey(t RecordType, p Payload) string {
	switch t {
	case RecordVisit:
		return stringField(p, "date")
	case RecordImmunization:
		return stringField(p, "vaccineType") + "\x00" + stringField(p, "dateAdministered")
	case RecordReferral:
		return stringField(p, "facility") + "\x00" + stringField(p, "referralDate")
	default:
		return ""
	}
}

// validatePayload rejects malformed payloads before they reach the queue or
// the remote store. A payload is valid when the fields forming its MatchKey
// are present and non-empty.
func validatePayload(t RecordType, p Payload) error {
	if len(p) == 0 {
		return &ValidationError{Type: t, Reason: "empty payload"}
	}
	switch t {
	case RecordVisit:
		if stringField(p, "date") == "" {
			return &ValidationError{Type: t, Reason: "missing visit date"}
		}
	case RecordImmunization:
		if stringField(p, "vaccineType") == "" || stringField(p, "dateAdministered") == "" {
			return &ValidationError{Type: t, Reason: "missing vaccineType or dateAdministered"}
		}
	case RecordReferral:
		if stringField(p, "facility") == "" || stringField(p, "referralDate") == "" {
			return &ValidationError{Type: t, Reason: "missing facility or referralDate"}
		}
	default:
		return &ValidationError{Type: t, Reason: "unknown record type"}
	}
	return nil
}
