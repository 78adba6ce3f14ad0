package character

import (
	"bufio"
	"fmt"
	"io"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

const fastaWidth = 60

// ReadFASTA reads an aligned FASTA file. Header text after the first space
// is ignored. Letters are passed through to the alphabet unchanged, so the
// same reader serves nucleotide and standard data.
func ReadFASTA(r io.Reader, alpha *Alphabet) (*Alignment, error) {
	var names, raw []string
	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNAredundant)))
	for sc.Next() {
		s, ok := sc.Seq().(*linear.Seq)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected record type %T", ErrFASTA, sc.Seq())
		}
		if s.Name() == "" {
			return nil, fmt.Errorf("%w: empty header for record %d", ErrFASTA, len(names)+1)
		}
		names = append(names, s.Name())
		raw = append(raw, lettersToString(s.Seq))
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFASTA, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrFASTA)
	}
	return NewAlignment(alpha, names, raw)
}

// WriteFASTA writes one record per taxon in alignment order.
func WriteFASTA(w io.Writer, a *Alignment) error {
	bw := bufio.NewWriter(w)
	fw := fasta.NewWriter(bw, fastaWidth)
	for _, name := range a.taxa {
		seq, err := a.Sequence(name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(linear.NewSeq(name, alphabet.BytesToLetters([]byte(seq)), alphabet.DNAredundant)); err != nil {
			return fmt.Errorf("write fasta %s: %w", name, err)
		}
	}
	return bw.Flush()
}

func lettersToString(ls alphabet.Letters) string {
	b := make([]byte, len(ls))
	for i, l := range ls {
		b[i] = byte(l)
	}
	return string(b)
}
