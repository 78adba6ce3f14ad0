package character

import "errors"

var (
	ErrUnknownSymbol     = errors.New("character: symbol not in alphabet")
	ErrStateCount        = errors.New("character: unsupported number of states")
	ErrDimensionMismatch = errors.New("character: sequences differ in length")
	ErrUnknownTaxon      = errors.New("character: taxon not in alignment")
	ErrDuplicateTaxon    = errors.New("character: duplicate taxon")
	ErrSiteOutOfRange    = errors.New("character: site index out of range")
	ErrNoIncludedSites   = errors.New("character: every site is excluded")
	ErrEmptyAlignment    = errors.New("character: alignment has no taxa")
	ErrFASTA             = errors.New("character: malformed FASTA input")
)
