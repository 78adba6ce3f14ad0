package dag

import "errors"

var (
	// ErrConstantAffected is returned when a constant node is asked for the
	// nodes it affects. Constants have no parents, so reaching one while
	// collecting affected nodes means the graph was wired incorrectly.
	ErrConstantAffected = errors.New("dag: constant node asked for affected nodes")

	// ErrDuplicateName is returned by CloneDAG and NewModel when two distinct
	// nodes share a non-empty name.
	ErrDuplicateName = errors.New("dag: duplicate node name")

	// ErrUnsupportedValue is returned when a constant cannot parse a value of its type.
	ErrUnsupportedValue = errors.New("dag: value type cannot be parsed from text")

	// ErrEmptyModel is returned when a model is built from no nodes.
	ErrEmptyModel = errors.New("dag: model has no nodes")

	// ErrCycle is returned when a node set contains a directed cycle.
	ErrCycle = errors.New("dag: graph contains a cycle")
)
