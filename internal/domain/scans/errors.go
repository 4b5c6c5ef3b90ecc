package scans

import "errors"

// ErrTenantMismatch signals a job from another organization reached an executor.
var ErrTenantMismatch = errors.New("tenant mismatch")

var ErrNotFound = errors.New("scan not found")
