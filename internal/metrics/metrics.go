package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phylomc_proposals_total",
		Help: "Total number of proposals made, labelled by move.",
	}, []string{"move"})

	AcceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phylomc_proposals_accepted_total",
		Help: "Total number of accepted proposals, labelled by move.",
	}, []string{"move"})

	NonComputableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phylomc_proposals_noncomputable_total",
		Help: "Proposals rejected because a probability ratio was NaN or infinite.",
	}, []string{"move"})

	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phylomc_generations_total",
		Help: "Total number of completed MCMC generations, labelled by chain.",
	}, []string{"chain"})

	LnPosterior = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "phylomc_ln_posterior",
		Help: "Current log posterior of each chain.",
	}, []string{"chain"})

	ChainsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phylomc_chains_running",
		Help: "Number of chains currently executing.",
	})

	LikelihoodDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phylomc_likelihood_duration_us",
		Help:    "Phylogenetic likelihood evaluation latency in microseconds.",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
	})

	PartialsRecomputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phylomc_partials_recomputed_total",
		Help: "Total number of node partial-likelihood vectors recomputed.",
	})

	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phylomc_config_reloads_total",
		Help: "Analysis file reloads, labelled by outcome.",
	}, []string{"status"})
)
