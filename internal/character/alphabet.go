package character

import (
	"fmt"
	"strings"
)

// Alphabet maps text symbols to states for one data type.
type Alphabet struct {
	name    string
	symbols []byte
	codes   map[byte]uint64
}

const (
	gapSymbol     = '-'
	missingSymbol = '?'
)

// DNA returns the nucleotide alphabet A,C,G,T with IUPAC ambiguity codes.
func DNA() *Alphabet { return nucleotide("DNA", 'T') }

// RNA returns the nucleotide alphabet A,C,G,U with IUPAC ambiguity codes.
func RNA() *Alphabet { return nucleotide("RNA", 'U') }

func nucleotide(name string, t byte) *Alphabet {
	const a, c, g, u = 1, 2, 4, 8
	codes := map[byte]uint64{
		'A': a, 'C': c, 'G': g, t: u,
		'R': a | g, 'Y': c | u, 'M': a | c, 'K': g | u,
		'S': c | g, 'W': a | u, 'H': a | c | u, 'B': c | g | u,
		'V': a | c | g, 'D': a | g | u, 'N': a | c | g | u,
	}
	return &Alphabet{name: name, symbols: []byte{'A', 'C', 'G', t}, codes: codes}
}

// standardSymbols are the state symbols of k-state morphological data.
const standardSymbols = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Standard returns a k-state alphabet using symbols 0..9, A..Z, a..z.
// Ambiguity is written as {01} or (01).
func Standard(k int) (*Alphabet, error) {
	if k < 2 || k > len(standardSymbols) {
		return nil, fmt.Errorf("%w: got %d", ErrStateCount, k)
	}
	a := &Alphabet{name: fmt.Sprintf("Standard(%d)", k), symbols: []byte(standardSymbols[:k]), codes: make(map[byte]uint64, k)}
	for i := 0; i < k; i++ {
		a.codes[standardSymbols[i]] = 1 << uint(i)
	}
	return a, nil
}

// ByName resolves "DNA", "RNA" or "Standard" (k states).
func ByName(name string, k int) (*Alphabet, error) {
	switch strings.ToLower(name) {
	case "dna":
		return DNA(), nil
	case "rna":
		return RNA(), nil
	case "standard":
		return Standard(k)
	}
	return nil, fmt.Errorf("%w: data type %q", ErrUnknownSymbol, name)
}

func (a *Alphabet) Name() string   { return a.name }
func (a *Alphabet) NumStates() int { return len(a.symbols) }

// Symbol returns the text form of s.
func (a *Alphabet) Symbol(s State) string {
	switch {
	case s.Gap:
		return string(gapSymbol)
	case s.Missing:
		return string(missingSymbol)
	}
	if i := s.IndexOfOnBit(); i != NoUniqueState {
		return string(a.symbols[i])
	}
	for sym, mask := range a.codes {
		if mask == s.Mask && a.isNucleotide() {
			return string(sym)
		}
	}
	var b strings.Builder
	b.WriteByte('{')
	for i := range a.symbols {
		if s.IsSet(i) {
			b.WriteByte(a.symbols[i])
		}
	}
	b.WriteByte('}')
	return b.String()
}

func (a *Alphabet) isNucleotide() bool { return len(a.codes) > len(a.symbols) }

// Parse converts a sequence string into states.
func (a *Alphabet) Parse(seq string) ([]State, error) {
	full := fullMask(a.NumStates())
	out := make([]State, 0, len(seq))
	for i := 0; i < len(seq); i++ {
		c := seq[i]
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case gapSymbol:
			out = append(out, State{Mask: full, Gap: true})
			continue
		case missingSymbol:
			out = append(out, State{Mask: full, Missing: true})
			continue
		case '{', '(':
			closer := byte('}')
			if c == '(' {
				closer = ')'
			}
			end := strings.IndexByte(seq[i:], closer)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated %q at %d", ErrUnknownSymbol, c, i)
			}
			var mask uint64
			for j := i + 1; j < i+end; j++ {
				m, err := a.code(seq[j])
				if err != nil {
					return nil, err
				}
				mask |= m
			}
			out = append(out, State{Mask: mask})
			i += end
			continue
		}
		m, err := a.code(c)
		if err != nil {
			return nil, err
		}
		out = append(out, State{Mask: m})
	}
	return out, nil
}

func (a *Alphabet) code(c byte) (uint64, error) {
	if m, ok := a.codes[c]; ok {
		return m, nil
	}
	if a.isNucleotide() {
		if m, ok := a.codes[upper(c)]; ok {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q in %s", ErrUnknownSymbol, c, a.name)
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
