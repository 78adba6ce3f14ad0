package analysis

import "errors"

var (
	ErrUnsupported      = errors.New("analysis: unsupported option")
	ErrMissingParameter = errors.New("analysis: missing parameter")
	ErrUnknownNode      = errors.New("analysis: move refers to an unknown node")
)
