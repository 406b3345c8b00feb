package locus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	l, err := Parse("chr18:79930227-79930311_+")
	require.NoError(t, err)

	assert.Equal(t, "chr18", l.Chrom)
	assert.Equal(t, int64(79930227), l.Start)
	assert.Equal(t, int64(79930311), l.End)
	assert.Equal(t, "+", l.Strand)
}

func TestParse_RoundTrip(t *testing.T) {
	for _, s := range []string{
		"chr18:79930227-79930311_+",
		"chr1:0-0_-",
		"chr22:100-50_+", // inverted loci are accepted
	} {
		l, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, l.String())
	}
}

func TestParse_StrandTokenNotRestricted(t *testing.T) {
	l, err := Parse("chr2:10-20_unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", l.Strand)
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"badstring",
		"",
		"chrX:100-200_+",                // non-numeric chromosome
		"18:100-200_+",                  // missing chr prefix
		"chr1:100-200",                  // missing strand
		"chr1:100-200_",                 // empty strand
		"chr1:100-200_+ extra",          // whitespace in strand
		"chr1:-100-200_+",               // signed start
		"chr1:100_200_+",                // wrong separator
		" chr1:100-200_+",               // leading space
		"chr1:99999999999999999999-1_+", // overflows int64
	}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			_, err := Parse(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCoordinateFormat))

			var ice *InvalidCoordinateFormatError
			require.True(t, errors.As(err, &ice))
			assert.Equal(t, s, ice.Input)
		})
	}
}

func TestFromFields(t *testing.T) {
	l, err := FromFields("chr7", "140753336", "140753400", "-")
	require.NoError(t, err)
	assert.Equal(t, Locus{Chrom: "chr7", Start: 140753336, End: 140753400, Strand: "-"}, l)

	_, err = FromFields("7", "1", "2", "+")
	assert.ErrorIs(t, err, ErrInvalidCoordinateFormat)
}

func TestLocus_RegionAndLen(t *testing.T) {
	l := Locus{Chrom: "chr3", Start: 100, End: 150, Strand: "+"}
	assert.Equal(t, "chr3:100-150", l.Region())
	assert.Equal(t, int64(50), l.Len())

	inverted := Locus{Chrom: "chr3", Start: 150, End: 100}
	assert.Zero(t, inverted.Len())
}
