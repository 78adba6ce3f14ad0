package taxa_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/phylomc/internal/taxa"
)

func TestRegistry(t *testing.T) {
	r, err := taxa.NewRegistry("human", "chimp")
	require.NoError(t, err)

	idx, err := r.Index("chimp")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = r.Add("human")
	assert.ErrorIs(t, err, taxa.ErrDuplicateTaxon)

	idx, err = r.Ensure("gorilla")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "gorilla", r.Name(2))

	_, err = r.Index("orang")
	assert.ErrorIs(t, err, taxa.ErrUnknownTaxon)

	_, err = r.Add("")
	assert.ErrorIs(t, err, taxa.ErrEmptyName)
}

func TestRegistry_SortByIndex(t *testing.T) {
	r, err := taxa.NewRegistry("c", "a", "b")
	require.NoError(t, err)
	names := []string{"z", "b", "a", "c", "y"}
	r.SortByIndex(names)
	assert.Equal(t, []string{"c", "a", "b", "y", "z"}, names)
}
