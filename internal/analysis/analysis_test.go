package analysis_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/phylomc/internal/analysis"
	"github.com/gyaneshwarpardhi/phylomc/internal/character"
	"github.com/gyaneshwarpardhi/phylomc/internal/config"
	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/mcmc"
	"github.com/gyaneshwarpardhi/phylomc/internal/runctx"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const fasta = `>A
ACGTAACGTTAC
>B
ACGTTACGTTAC
>C
ACTTAACGATAC
>D
GCTTAACGATAA
>E
GCGTAACGTTAA
`

const doc = `
version: "1"
seed: 7
run:
  generations: 300
  burn_in: 100
  tune_interval: 20
  sample_every: 20
  print_every: 100
data:
  alignment: five.fasta
tree:
  start: "((A:0.1,B:0.1):0.1,(C:0.1,D:0.1):0.1,E:0.1);"
model:
  substitution: hky
  kappa:
    value: 2
    prior: {type: exponential, rate: 0.5}
  gamma_categories: 4
  p_inv:
    value: 0.2
    prior: {type: uniform, lower: 0, upper: 1}
moves:
  - type: branch_length_scale
    node: tree
    weight: 3
    auto_tune: true
  - type: nni
    node: tree
  - type: scale
    node: kappa
    auto_tune: true
  - type: scale
    node: alpha
  - type: slide
    node: p_inv
    params: {delta: 0.2, lower: 0, upper: 1}
`

func loadConfig(t *testing.T, text string) *config.Analysis {
	t.Helper()
	cfg, err := config.Parse([]byte(text))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func writeData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "five.fasta"), []byte(fasta), 0o644))
	return dir
}

func TestBuild(t *testing.T) {
	cfg := loadConfig(t, doc)
	rc := runctx.New(cfg.Seed, nil)
	a, err := analysis.Build(cfg, rc, analysis.WithBaseDir(writeData(t)), analysis.WithLogger(quiet))
	require.NoError(t, err)

	for _, name := range []string{config.NodeTree, config.NodeKappa, config.NodeAlpha, config.NodePInv, config.NodeSequences} {
		assert.NotNil(t, a.Model.Node(name), name)
	}
	assert.Len(t, a.Moves, 5)
	assert.Equal(t, 5, a.Alignment.NumTaxa())
	assert.Equal(t, 5, rc.Taxa.Len())
	assert.True(t, a.Sequences.IsClamped())
	assert.False(t, a.Tree.Value().IsRooted())

	lnL := a.Sequences.LnProbability()
	assert.False(t, math.IsNaN(lnL) || math.IsInf(lnL, 0))
	assert.Less(t, lnL, 0.0)
	assert.Greater(t, a.Engine.NumPatterns(), 0)
}

func TestBuild_RunsChain(t *testing.T) {
	cfg := loadConfig(t, doc)
	rc := runctx.New(cfg.Seed, nil)
	a, err := analysis.Build(cfg, rc, analysis.WithBaseDir(writeData(t)), analysis.WithLogger(quiet))
	require.NoError(t, err)

	var trace, trees bytes.Buffer
	out := analysis.NewSampleWriter(&trace, &trees)
	chain, err := mcmc.NewChain("c1", a.Model, a.Moves, rc.RNG, analysis.Settings(cfg.Run),
		mcmc.WithLogger(quiet), mcmc.WithSampleHandler(func(s mcmc.Sample) { out.Write("c1", s) }))
	require.NoError(t, err)
	require.NoError(t, chain.Initialize())
	require.NoError(t, chain.Run(context.Background()))
	require.NoError(t, out.Flush())

	lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
	require.Len(t, lines, 1+(300-100)/20)
	assert.Equal(t, "chain\tgeneration\tln_posterior\tln_likelihood\tln_prior\talpha\tkappa\tp_inv", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "c1\t120\t"))

	treeLines := strings.Split(strings.TrimSpace(trees.String()), "\n")
	assert.Len(t, treeLines, (300-100)/20)
	assert.Contains(t, treeLines[0], "\ttree\t(")

	// the incrementally maintained likelihood agrees with a fresh evaluation
	fresh, err := analysis.Build(cfg, runctx.New(cfg.Seed, nil),
		analysis.WithAlignment(a.Alignment), analysis.WithLogger(quiet))
	require.NoError(t, err)
	fresh.Tree.SetValue(a.Tree.Value().Clone())
	copyScalar(t, a.Model, fresh.Model, config.NodeKappa)
	copyScalar(t, a.Model, fresh.Model, config.NodeAlpha)
	copyScalar(t, a.Model, fresh.Model, config.NodePInv)
	assert.InDelta(t, a.Sequences.LnProbability(), fresh.Sequences.LnProbability(), 1e-8)
}

func copyScalar(t *testing.T, from, to *dag.Model, name string) {
	t.Helper()
	src, ok := from.Node(name).(dag.TypedNode[float64])
	require.True(t, ok)
	dst, ok := to.Node(name).(dag.TypedNode[float64])
	require.True(t, ok)
	dst.SetValue(src.Value())
}

func TestBuild_DrawsStartingTree(t *testing.T) {
	cfg := loadConfig(t, strings.Replace(doc, `start: "((A:0.1,B:0.1):0.1,(C:0.1,D:0.1):0.1,E:0.1);"`, `start: ""`, 1))
	a, err := analysis.Build(cfg, runctx.New(3, nil), analysis.WithBaseDir(writeData(t)), analysis.WithLogger(quiet))
	require.NoError(t, err)
	assert.Equal(t, 5, a.Tree.Value().NumberOfTips())
	assert.False(t, math.IsInf(a.Tree.LnProbability(), -1))
}

func TestBuild_JukesCantor(t *testing.T) {
	cfg := loadConfig(t, `
version: "1"
data: {alignment: five.fasta}
moves:
  - {type: branch_length_scale, node: tree}
`)
	a, err := analysis.Build(cfg, runctx.New(1, nil), analysis.WithBaseDir(writeData(t)), analysis.WithLogger(quiet))
	require.NoError(t, err)
	assert.Nil(t, a.Model.Node(config.NodeKappa))
	assert.Len(t, a.Moves, 1)
}

func TestBuild_Errors(t *testing.T) {
	dir := writeData(t)

	t.Run("unknown move type", func(t *testing.T) {
		cfg := loadConfig(t, strings.Replace(doc, "type: nni", "type: spr", 1))
		_, err := analysis.Build(cfg, runctx.New(1, nil), analysis.WithBaseDir(dir), analysis.WithLogger(quiet))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "moves[1]")
	})

	t.Run("missing alignment", func(t *testing.T) {
		cfg := loadConfig(t, doc)
		_, err := analysis.Build(cfg, runctx.New(1, nil), analysis.WithBaseDir(t.TempDir()), analysis.WithLogger(quiet))
		assert.Error(t, err)
	})

	t.Run("starting tree with wrong taxa", func(t *testing.T) {
		cfg := loadConfig(t, strings.Replace(doc, "E:0.1", "F:0.1", 1))
		_, err := analysis.Build(cfg, runctx.New(1, nil), analysis.WithBaseDir(dir), analysis.WithLogger(quiet))
		assert.Error(t, err)
	})

	t.Run("alignment missing tree taxa", func(t *testing.T) {
		aln, err := character.NewAlignment(character.DNA(), []string{"A", "B", "C"}, []string{"AC", "AG", "AT"})
		require.NoError(t, err)
		cfg := loadConfig(t, doc)
		_, err = analysis.Build(cfg, runctx.New(1, nil), analysis.WithAlignment(aln), analysis.WithLogger(quiet))
		// the starting tree names taxa D and E, which the alignment lacks
		assert.Error(t, err)
	})
}

func TestSettings(t *testing.T) {
	cfg := loadConfig(t, doc)
	s := analysis.Settings(cfg.Run)
	assert.Equal(t, 300, s.Generations)
	assert.Equal(t, 100, s.BurnIn)
	assert.Equal(t, 20, s.TuneInterval)
	assert.Equal(t, 1.0, s.LikelihoodHeat)
	assert.Equal(t, 1.0, s.PosteriorHeat)
}
