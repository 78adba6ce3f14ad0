package tree

import "errors"

var (
	ErrIndexOutOfRange = errors.New("tree: node index out of range")
	ErrNoRoot          = errors.New("tree: root is not set")
	ErrBadIndexing     = errors.New("tree: node indices are not a valid tips-first permutation")
	ErrNewick          = errors.New("tree: malformed newick string")
	ErrUnknownTip      = errors.New("tree: unknown tip")
	ErrTooFewTaxa      = errors.New("tree: too few taxa for operation")
	ErrNotChild        = errors.New("tree: node is not a child of parent")
	ErrBadRootDegree   = errors.New("tree: root must have two or three children")
	ErrAncestor        = errors.New("tree: node is an ancestor of the other")
)
