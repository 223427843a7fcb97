package editor

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrSave          = errors.New("save failed")
	ErrReadOnly      = errors.New("edit mode is not enabled")
	ErrSessionClosed = errors.New("editing session is closed")
	ErrSlugImmutable = errors.New("slug cannot change once the post is saved")
	ErrUnknownField  = errors.New("unknown field")
	ErrNoSession     = errors.New("no editing session")
)

// errNoChange aborts a mutation that turned out to be a no-op.
var errNoChange = errors.New("no change")
