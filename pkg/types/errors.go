package types

import "errors"

// Sentinel errors shared across packages that operate on the data model.
// The richer, categorized error taxonomy of spec.md §7 lives in
// internal/obserr; these sentinels are what that taxonomy wraps when the
// failure originates in plan construction or merging itself.
var (
	ErrChecksumConflict = errors.New("conflicting checksums for the same path across merged plans")
	ErrOverlappingEdits = errors.New("overlapping text edits on the same file")
	ErrMissingChecksum  = errors.New("plan references a path with no recorded checksum")
)
