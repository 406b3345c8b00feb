package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/exonedge/internal/locus"
)

func TestLoad_CSV(t *testing.T) {
	data := []byte("chromosome,start,end,strand\n" +
		"chr18,79930227,79930311,+\n" +
		"chr1,100,200,-\n")

	entries, err := Load(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.NoError(t, entries[0].Err)
	assert.Equal(t, "chr18:79930227-79930311_+", entries[0].Input)
	assert.Equal(t, locus.Locus{Chrom: "chr18", Start: 79930227, End: 79930311, Strand: "+"}, entries[0].Locus)
	assert.Equal(t, 2, entries[0].Line)
	assert.Equal(t, 3, entries[1].Line)
}

func TestLoad_TSVAndColumnOrder(t *testing.T) {
	data := []byte("strand\tchromosome\tend\tstart\n" +
		"+\tchr2\t500\t400\n")

	entries, err := Load(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, entries[0].Err)
	assert.Equal(t, locus.Locus{Chrom: "chr2", Start: 400, End: 500, Strand: "+"}, entries[0].Locus)
}

func TestLoad_BadRowDoesNotAbort(t *testing.T) {
	data := []byte("chromosome,start,end,strand\n" +
		"chr1,100,200,+\n" +
		"chrX,100,200,+\n" +
		"chr3,abc,200,+\n" +
		"chr4,1,2,-\n")

	entries, err := Load(data)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.NoError(t, entries[0].Err)
	assert.ErrorIs(t, entries[1].Err, locus.ErrInvalidCoordinateFormat)
	assert.ErrorIs(t, entries[2].Err, locus.ErrInvalidCoordinateFormat)
	assert.NoError(t, entries[3].Err)
}

func TestLoad_Empty(t *testing.T) {
	entries, err := Load([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = Load([]byte("chromosome,start,end,strand\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loci.csv")
	require.NoError(t, os.WriteFile(path, []byte("chromosome,start,end,strand\nchr5,10,20,+\n"), 0644))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chr5:10-20_+", entries[0].Locus.String())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, '\t', DetectDelimiter([]byte("a\tb\tc\n1\t2\t3\n")))
	assert.Equal(t, ',', DetectDelimiter([]byte("a,b,c\n1,2,3\n")))
}

func TestEntriesFromStrings(t *testing.T) {
	entries := EntriesFromStrings([]string{"chr1:1-2_+", "bogus"})
	require.Len(t, entries, 2)
	assert.NoError(t, entries[0].Err)
	assert.ErrorIs(t, entries[1].Err, locus.ErrInvalidCoordinateFormat)
	assert.Equal(t, 2, entries[1].Line)
}
