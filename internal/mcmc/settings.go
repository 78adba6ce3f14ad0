package mcmc

import "time"

// Settings control a running chain. They are swapped atomically and read
// once per generation, so a reload takes effect at the next generation.
type Settings struct {
	Generations    int
	BurnIn         int
	TuneInterval   int
	PrintEvery     int
	SampleEvery    int
	MaxTime        time.Duration
	LikelihoodHeat float64
	PosteriorHeat  float64
	HillClimbing   bool
}

// DefaultSettings returns the settings used when a field is left unset.
func DefaultSettings() Settings {
	return Settings{
		Generations:    10000,
		BurnIn:         1000,
		TuneInterval:   100,
		PrintEvery:     1000,
		SampleEvery:    100,
		LikelihoodHeat: 1,
		PosteriorHeat:  1,
	}
}
