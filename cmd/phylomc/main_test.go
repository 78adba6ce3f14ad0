package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/phylomc/internal/character"
)

const testFASTA = `>A
ACGTAACGTTAC
>B
ACGTTACGTTAC
>C
ACTTAACGATAC
>D
GCTTAACGATAA
`

const testAnalysis = `
version: "1"
seed: 11
run:
  generations: 200
  burn_in: 50
  sample_every: 10
  print_every: 100
  replicates: 2
data:
  alignment: four.fasta
model:
  substitution: jc
output:
  trace: out.tsv
  trees: out.trees
moves:
  - {type: branch_length_scale, node: tree, weight: 2, auto_tune: true}
  - {type: nni, node: tree}
`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "four.fasta"), []byte(testFASTA), 0o644))
	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testAnalysis), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := setup(t)
	out, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (4 taxa, 12 sites")
}

func TestRunCommand(t *testing.T) {
	path := setup(t)
	out, err := execute(t, "run", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "CHAIN")
	assert.Equal(t, 2, strings.Count(out, "done"))

	trace, err := os.ReadFile(filepath.Join(filepath.Dir(path), "out.tsv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(trace)), "\n")
	// header plus 15 samples from each replicate
	assert.Len(t, lines, 1+2*15)

	trees, err := os.ReadFile(filepath.Join(filepath.Dir(path), "out.trees"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(trees)), "\n"), 2*15)
}

func TestSimulateCommand(t *testing.T) {
	path := setup(t)
	dest := filepath.Join(t.TempDir(), "sim.fasta")
	_, err := execute(t, "simulate", "-c", path, "-o", dest)
	require.NoError(t, err)
	simulateOut = ""

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()
	aln, err := character.ReadFASTA(f, character.DNA())
	require.NoError(t, err)
	assert.Equal(t, 4, aln.NumTaxa())
	assert.Equal(t, 12, aln.NumSites())
}

func TestInvalidConfig(t *testing.T) {
	path := setup(t)
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\nmoves: []\n"), 0o644))
	_, err := execute(t, "validate", "-c", path)
	assert.Error(t, err)
}
