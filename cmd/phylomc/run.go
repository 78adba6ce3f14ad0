package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/phylomc/internal/analysis"
	"github.com/gyaneshwarpardhi/phylomc/internal/api"
	"github.com/gyaneshwarpardhi/phylomc/internal/config"
	"github.com/gyaneshwarpardhi/phylomc/internal/mcmc"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis",
	Args:  cobra.NoArgs,
	RunE:  runAnalysis,
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Load config and build the model ──────────────────────────────────────
	loader, rc, a, err := loadAnalysis(analysis.WithContext(ctx))
	if err != nil {
		return err
	}
	cfg := loader.Config()
	logger := slog.Default().With("run", rc.ID)

	// ── Sample output ─────────────────────────────────────────────────────────
	baseDir := filepath.Dir(configPath)
	sink, closeSink, err := openOutput(baseDir, cfg.Output)
	if err != nil {
		return err
	}
	defer closeSink()

	// ── Chains ────────────────────────────────────────────────────────────────
	tracker := mcmc.NewTracker()
	settings := analysis.Settings(cfg.Run)
	id := ulid.Make().String()
	template, err := mcmc.NewChain(id, a.Model, a.Moves, rc.RNG, settings,
		mcmc.WithLogger(logger),
		mcmc.WithSampleHandler(func(s mcmc.Sample) { sink(id, s) }))
	if err != nil {
		return err
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Analysis) {
		tracker.ApplySettings(analysis.Settings(newCfg.Run))
		logger.Info("run settings reloaded", "generations", newCfg.Run.Generations)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── Status server ─────────────────────────────────────────────────────────
	if addr := cfg.Server.Addr; addr != "" {
		srv := &http.Server{
			Addr:         addr,
			Handler:      api.New(rc.ID, tracker, loader),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("status server starting", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", "err", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	// ── Sample ────────────────────────────────────────────────────────────────
	var statuses []mcmc.Status
	if cfg.Run.Replicates == 1 {
		tracker.Add(template)
		if err := template.Initialize(); err != nil {
			return err
		}
		err = template.Run(ctx)
		statuses = []mcmc.Status{template.Status()}
	} else {
		var r *mcmc.Replicates
		r, err = mcmc.NewReplicates(template, rc, cfg.Run.Workers,
			mcmc.WithTracker(tracker),
			mcmc.WithReplicateLogger(logger),
			mcmc.WithReplicateSamples(sink))
		if err != nil {
			return err
		}
		var results []*mcmc.Result
		results, err = r.Run(ctx, cfg.Run.Replicates)
		for _, res := range results {
			if res != nil {
				statuses = append(statuses, res.Status)
			}
		}
	}
	printSummary(cmd.OutOrStdout(), statuses)
	return err
}

// openOutput opens the trace and tree files named in out. With no trace file
// samples are dropped.
func openOutput(baseDir string, out config.OutputConf) (func(string, mcmc.Sample), func(), error) {
	if out.Trace == "" {
		return func(string, mcmc.Sample) {}, func() {}, nil
	}
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	trace, err := os.Create(resolve(out.Trace))
	if err != nil {
		return nil, nil, err
	}
	files = append(files, trace)
	var trees io.Writer
	if out.Trees != "" {
		f, err := os.Create(resolve(out.Trees))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		trees = f
	}
	w := analysis.NewSampleWriter(trace, trees)
	return w.Write, func() {
		if err := w.Flush(); err != nil {
			slog.Error("writing samples failed", "err", err)
		}
		closeAll()
	}, nil
}

func printSummary(out io.Writer, statuses []mcmc.Status) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tSTATE\tGENERATION\tLN POSTERIOR\tLN LIKELIHOOD")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%.4f\n", st.ID, st.State, st.Generation, st.LnPosterior, st.LnLikelihood)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CHAIN\tMOVE\tTRIED\tACCEPTED\tRATE")
	for _, st := range statuses {
		for _, m := range st.Moves {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.3f\n", st.ID, m.Name, m.Tried, m.Accepted, m.AcceptanceRate)
		}
	}
	tw.Flush()
}
