package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gyaneshwarpardhi/phylomc/internal/analysis"
	"github.com/gyaneshwarpardhi/phylomc/internal/config"
	"github.com/gyaneshwarpardhi/phylomc/internal/runctx"
)

// loadAnalysis reads and validates the analysis file and builds its model.
func loadAnalysis(opts ...analysis.Option) (*config.Loader, *runctx.RunContext, *analysis.Analysis, error) {
	loader, err := config.NewLoader(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := loader.Config()
	s := cfg.Seed
	if seed != 0 {
		s = seed
	}
	rc := runctx.New(s, nil)
	logger := slog.Default().With("run", rc.ID)

	opts = append([]analysis.Option{
		analysis.WithBaseDir(filepath.Dir(configPath)),
		analysis.WithLogger(logger),
	}, opts...)
	a, err := analysis.Build(cfg, rc, opts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build %s: %w", configPath, err)
	}
	return loader, rc, a, nil
}
