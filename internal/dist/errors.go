package dist

import "errors"

var (
	// ErrTooFewTaxa is returned when a tree prior is built over fewer than
	// three taxa.
	ErrTooFewTaxa = errors.New("dist: unrooted tree prior needs at least three taxa")

	// ErrDuplicateTaxon is returned when a tree prior lists a taxon twice.
	ErrDuplicateTaxon = errors.New("dist: duplicate taxon")
)
