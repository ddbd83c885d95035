package services

import "errors"

// ErrUnauthenticated means the Authorization header was missing, malformed,
// failed verification or did not carry a usable member number.
var ErrUnauthenticated = errors.New("authentication required")

// Rejections. Not-found and not-owner share one message per operation so
// callers cannot probe for posts owned by others.
var (
	ErrPostNotFound       = errors.New("post not found")
	ErrUpdateDenied       = errors.New("post not found or no permission to modify")
	ErrDeleteDenied       = errors.New("post not found or no permission to delete")
	ErrAttachmentMismatch = errors.New("attachment not found or does not belong to this post")
	ErrAttachmentDenied   = errors.New("no permission to modify post")
	ErrConflict           = errors.New("post was modified concurrently, reload and try again")
)

// ErrUpload wraps every object storage failure; nothing was persisted.
var ErrUpload = errors.New("attachment upload failed")

var rejections = []error{
	ErrPostNotFound,
	ErrUpdateDenied,
	ErrDeleteDenied,
	ErrAttachmentMismatch,
	ErrAttachmentDenied,
	ErrConflict,
}

// IsRejection reports whether err is an expected business outcome that is
// reported to the caller as a failure envelope rather than a server error.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
