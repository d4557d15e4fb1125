package errorutil

import "errors"

// ErrInvalidArgument indicates missing or malformed caller input. It is
// returned synchronously and is never worth retrying.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotFound indicates an unknown session, snapshot or breakpoint id.
var ErrNotFound = errors.New("not found")

// ErrCaptureUnavailable indicates the platform collaborator cannot attach to
// a process or enumerate one of its memory views.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// ErrIntegrityViolation is a base error type to use for failures that are due
// to unrecoverable data integrity issues, such as overlapping used regions
// reported for a single memory view.
var ErrIntegrityViolation = errors.New("data integrity violation")

// ErrEndOfStream is reported by a capture stream once the traced process has
// exited and no further events will be delivered.
var ErrEndOfStream = errors.New("end of event stream")
