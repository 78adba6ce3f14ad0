package phyloctmc

import "errors"

var (
	ErrNoTree         = errors.New("phyloctmc: tree value is not set")
	ErrNoData         = errors.New("phyloctmc: no character data attached")
	ErrNoGenerator    = errors.New("phyloctmc: rate generator value is not set")
	ErrTaxaMismatch   = errors.New("phyloctmc: alignment taxa do not match tree tips")
	ErrMissingTaxon   = errors.New("phyloctmc: tree tip has no alignment row")
	ErrStateMismatch  = errors.New("phyloctmc: alphabet and rate generator disagree on state count")
	ErrPolytomy       = errors.New("phyloctmc: nodes may have at most three children")
	ErrNoRates        = errors.New("phyloctmc: site-rate vector is empty")
	ErrDistributed    = errors.New("phyloctmc: ancestral states need a single-member group")
	ErrNodeOutOfRange = errors.New("phyloctmc: node index out of range")
)
