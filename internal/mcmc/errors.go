package mcmc

import "errors"

var (
	// ErrNotComputable is returned when no initial state with a finite
	// posterior was found.
	ErrNotComputable = errors.New("mcmc: could not find an initial state with a finite posterior")

	ErrBadReplicates = errors.New("mcmc: replicates and workers must be positive")
	ErrUnknownChain  = errors.New("mcmc: unknown chain")
)
