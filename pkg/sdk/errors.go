package libcat

import "github.com/kailas-cloud/libcat/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound       = domain.ErrNotFound
	ErrAccessDenied   = domain.ErrAccessDenied
	ErrUnavailable    = domain.ErrUnavailable
	ErrInvalidRequest = domain.ErrInvalidRequest
	ErrNotImplemented = domain.ErrNotImplemented
)
