package character

import (
	"fmt"
	"slices"
)

// Alignment is a taxa × sites matrix of states. Sites may be excluded from
// analysis without being removed.
type Alignment struct {
	alphabet *Alphabet
	taxa     []string
	index    map[string]int
	rows     [][]State
	excluded []bool
}

// NewAlignment parses one sequence per taxon. All sequences must have the
// same number of states.
func NewAlignment(alphabet *Alphabet, taxa []string, sequences []string) (*Alignment, error) {
	if len(taxa) != len(sequences) {
		return nil, fmt.Errorf("%w: %d taxa, %d sequences", ErrDimensionMismatch, len(taxa), len(sequences))
	}
	rows := make([][]State, len(sequences))
	for i, seq := range sequences {
		row, err := alphabet.Parse(seq)
		if err != nil {
			return nil, fmt.Errorf("taxon %q: %w", taxa[i], err)
		}
		rows[i] = row
	}
	return FromStates(alphabet, taxa, rows)
}

// FromStates builds an alignment from already-parsed rows. Rows are owned by
// the alignment afterwards.
func FromStates(alphabet *Alphabet, taxa []string, rows [][]State) (*Alignment, error) {
	if len(taxa) == 0 {
		return nil, ErrEmptyAlignment
	}
	if len(taxa) != len(rows) {
		return nil, fmt.Errorf("%w: %d taxa, %d rows", ErrDimensionMismatch, len(taxa), len(rows))
	}
	a := &Alignment{
		alphabet: alphabet,
		taxa:     append([]string(nil), taxa...),
		index:    make(map[string]int, len(taxa)),
		rows:     rows,
		excluded: make([]bool, len(rows[0])),
	}
	for i, name := range taxa {
		if _, dup := a.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTaxon, name)
		}
		a.index[name] = i
		if len(rows[i]) != len(rows[0]) {
			return nil, fmt.Errorf("%w: %q has %d sites, %q has %d",
				ErrDimensionMismatch, name, len(rows[i]), taxa[0], len(rows[0]))
		}
	}
	return a, nil
}

func (a *Alignment) Alphabet() *Alphabet  { return a.alphabet }
func (a *Alignment) NumStates() int       { return a.alphabet.NumStates() }
func (a *Alignment) NumTaxa() int         { return len(a.taxa) }
func (a *Alignment) NumSites() int        { return len(a.excluded) }
func (a *Alignment) TaxonNames() []string { return append([]string(nil), a.taxa...) }

// HasTaxon reports whether name has a row.
func (a *Alignment) HasTaxon(name string) bool {
	_, ok := a.index[name]
	return ok
}

// Row returns the states of taxon name. The slice must not be modified.
func (a *Alignment) Row(name string) ([]State, error) {
	i, ok := a.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaxon, name)
	}
	return a.rows[i], nil
}

// ExcludeSite removes site from analysis.
func (a *Alignment) ExcludeSite(site int) error {
	if site < 0 || site >= len(a.excluded) {
		return fmt.Errorf("%w: %d of %d", ErrSiteOutOfRange, site, len(a.excluded))
	}
	a.excluded[site] = true
	return nil
}

// IncludeSite reverses ExcludeSite.
func (a *Alignment) IncludeSite(site int) error {
	if site < 0 || site >= len(a.excluded) {
		return fmt.Errorf("%w: %d of %d", ErrSiteOutOfRange, site, len(a.excluded))
	}
	a.excluded[site] = false
	return nil
}

func (a *Alignment) IsExcluded(site int) bool { return a.excluded[site] }

// IncludedSiteIndices returns the indices of sites used in analysis.
func (a *Alignment) IncludedSiteIndices() ([]int, error) {
	out := make([]int, 0, len(a.excluded))
	for i, ex := range a.excluded {
		if !ex {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoIncludedSites
	}
	return out, nil
}

// Sequence returns the text form of taxon name's row.
func (a *Alignment) Sequence(name string) (string, error) {
	row, err := a.Row(name)
	if err != nil {
		return "", err
	}
	var out []byte
	for _, s := range row {
		out = append(out, a.alphabet.Symbol(s)...)
	}
	return string(out), nil
}

// Equal reports whether both alignments hold the same taxa, states and exclusions.
func (a *Alignment) Equal(b *Alignment) bool {
	if b == nil || a.NumTaxa() != b.NumTaxa() || !slices.Equal(a.excluded, b.excluded) {
		return false
	}
	for i, name := range a.taxa {
		row, err := b.Row(name)
		if err != nil || !slices.Equal(a.rows[i], row) {
			return false
		}
	}
	return true
}

// Clone deep-copies the alignment. The alphabet is shared.
func (a *Alignment) Clone() *Alignment {
	rows := make([][]State, len(a.rows))
	for i, r := range a.rows {
		rows[i] = append([]State(nil), r...)
	}
	c, _ := FromStates(a.alphabet, a.taxa, rows)
	copy(c.excluded, a.excluded)
	return c
}
