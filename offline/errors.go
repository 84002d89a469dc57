// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package offline

import (
	"errors"
	"fmt"
)

// StorageError reports that the local durable queue is unavailable or
// corrupt. It is fatal to the current operation and is never retried
// automatically.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage fault: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RemoteError reports a network or remote-store failure. The write router
// recovers from it by falling back to the offline queue when detected
// proactively; mid-drain it fails only the record being delivered.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote fault: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ValidationError reports a malformed payload. It is raised synchronously
// before submit/enqueue; invalid payloads never enter the queue.
type ValidationError struct {
	Type   RecordType
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation fault: %s: %s", e.Type, e.Reason)
}

// IsStorageFault reports whether err is (or wraps) a local queue failure.
func IsStorageFault(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRemoteFault reports whether err is (or wraps) a remote-store failure.
func IsRemoteFault(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsValidationFault reports whether err is (or wraps) a payload rejection.
func IsValidationFault(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
