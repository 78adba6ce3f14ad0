package move

import "errors"

var (
	ErrUnknownProposal = errors.New("move: unknown proposal type")
	ErrWrongNodeType   = errors.New("move: proposal cannot operate on this node")
	ErrBadWeight       = errors.New("move: weight must be positive")
	ErrBadParameter    = errors.New("move: invalid proposal parameter")
	ErrEmptySchedule   = errors.New("move: schedule has no moves")
)
