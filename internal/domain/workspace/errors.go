package workspace

import "errors"

// Validation errors surfaced to the caller before the store is touched
var (
	ErrDuplicateName        = errors.New("name already in use")
	ErrProtectedTab         = errors.New("tab is protected")
	ErrLastTab              = errors.New("a layout must keep at least one tab")
	ErrTabNotFound          = errors.New("tab not found")
	ErrLayoutNotFound       = errors.New("layout not found")
	ErrProtectedLayout      = errors.New("the default layout cannot be deleted")
	ErrNotDynamic           = errors.New("tab does not host a grid")
	ErrNotEditable          = errors.New("tab is not in edit mode")
	ErrSubComponentNotFound = errors.New("sub-component not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrClosed               = errors.New("workspace session closed")
)
