package analysis

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/phylomc/internal/mcmc"
)

// SampleWriter writes chain samples as a tab-separated trace and, when a tree
// writer is given, one Newick line per sampled tree. It is safe for
// concurrent use by replicate chains.
type SampleWriter struct {
	mu      sync.Mutex
	trace   *bufio.Writer
	trees   *bufio.Writer
	columns []string
	err     error
}

// NewSampleWriter creates a writer. trees may be nil.
func NewSampleWriter(trace, trees io.Writer) *SampleWriter {
	w := &SampleWriter{trace: bufio.NewWriter(trace)}
	if trees != nil {
		w.trees = bufio.NewWriter(trees)
	}
	return w
}

// Write records s for chain. The parameter columns are fixed by the first
// sample written.
func (w *SampleWriter) Write(chain string, s mcmc.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if w.columns == nil {
		w.columns = make([]string, 0, len(s.Parameters))
		for name := range s.Parameters {
			w.columns = append(w.columns, name)
		}
		slices.Sort(w.columns)
		header := append([]string{"chain", "generation", "ln_posterior", "ln_likelihood", "ln_prior"}, w.columns...)
		w.printf(w.trace, "%s\n", strings.Join(header, "\t"))
	}

	row := make([]string, 0, 5+len(w.columns))
	row = append(row, chain, strconv.Itoa(s.Generation), formatFloat(s.LnPosterior),
		formatFloat(s.LnLikelihood), formatFloat(s.LnPrior))
	for _, name := range w.columns {
		v, ok := s.Parameters[name]
		if !ok {
			row = append(row, "NA")
			continue
		}
		row = append(row, formatFloat(v))
	}
	w.printf(w.trace, "%s\n", strings.Join(row, "\t"))

	if w.trees != nil {
		names := make([]string, 0, len(s.Trees))
		for name := range s.Trees {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			w.printf(w.trees, "%s\t%d\t%s\t%s\n", chain, s.Generation, name, s.Trees[name])
		}
	}
}

func (w *SampleWriter) printf(out *bufio.Writer, format string, args ...any) {
	if w.err != nil {
		return
	}
	if _, err := fmt.Fprintf(out, format, args...); err != nil {
		w.err = err
	}
}

// Flush writes buffered output and returns the first error seen.
func (w *SampleWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if err := w.trace.Flush(); err != nil {
		return err
	}
	if w.trees != nil {
		return w.trees.Flush()
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
