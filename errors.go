// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import "errors"

// Configuration errors returned by [Builder.Build]. These are the only
// recoverable errors in the declaration layer; once a Config builds
// successfully, name resolution can no longer fail at runtime.
var (
	// ErrNoEntryPoint is returned when neither EntryPoint nor Passes was called.
	ErrNoEntryPoint = errors.New("compute: no entry point or pass list declared")

	// ErrTooManyInputs is returned when a pass declares more than MaxPassInputs inputs.
	ErrTooManyInputs = errors.New("compute: pass declares more than 3 inputs")

	// ErrUnknownBuffer is returned when a pass input names a buffer no pass produces.
	ErrUnknownBuffer = errors.New("compute: input references a buffer no pass writes")

	// ErrDuplicatePass is returned when two passes share a name.
	ErrDuplicatePass = errors.New("compute: duplicate pass name")

	// ErrEmptyPassName is returned when a pass has an empty name.
	ErrEmptyPassName = errors.New("compute: pass name must not be empty")

	// ErrBadStorageBuffer is returned for a zero-sized or duplicate storage buffer.
	ErrBadStorageBuffer = errors.New("compute: invalid storage buffer spec")

	// ErrBadWorkgroup is returned when a workgroup dimension is zero.
	ErrBadWorkgroup = errors.New("compute: workgroup dimensions must be positive")

	// ErrTooManyChannels is returned when more than MaxChannels channels are declared.
	ErrTooManyChannels = errors.New("compute: too many channels")
)
