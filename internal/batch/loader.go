// Package batch runs edge and abundance analyses over many loci.
package batch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/csimplestring/go-csv/detector"
	"github.com/gocarina/gocsv"

	"github.com/inodb/exonedge/internal/locus"
)

// Row is one line of a batch file. Columns are kept as strings so that a
// bad value fails only its own row.
type Row struct {
	Chromosome string `csv:"chromosome"`
	Start      string `csv:"start"`
	End        string `csv:"end"`
	Strand     string `csv:"strand"`
}

// Entry is a batch row resolved to a locus, or the error that prevented it.
type Entry struct {
	Line  int    // 1-based position; in batch files the header is line 1
	Input string // raw locus string the row maps to
	Locus locus.Locus
	Err   error
}

// LoadFile reads a CSV or TSV batch file with chromosome,start,end,strand
// columns. Use "-" for stdin.
func LoadFile(path string) ([]Entry, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return Load(data)
}

// Load parses batch data. The delimiter is detected from the content.
// Rows with an invalid locus are returned with Err set instead of failing
// the whole load.
func Load(data []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = DetectDelimiter(data)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var rows []*Row
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		input := fmt.Sprintf("%s:%s-%s_%s",
			strings.TrimSpace(row.Chromosome), strings.TrimSpace(row.Start),
			strings.TrimSpace(row.End), strings.TrimSpace(row.Strand))
		l, err := locus.Parse(input)
		entries = append(entries, Entry{
			Line:  i + 2,
			Input: input,
			Locus: l,
			Err:   err,
		})
	}
	return entries, nil
}

// EntriesFromStrings wraps loci given on the command line as batch entries.
func EntriesFromStrings(inputs []string) []Entry {
	entries := make([]Entry, 0, len(inputs))
	for i, s := range inputs {
		l, err := locus.Parse(s)
		entries = append(entries, Entry{Line: i + 1, Input: s, Locus: l, Err: err})
	}
	return entries
}

// DetectDelimiter returns the most likely field delimiter of a CSV-like
// payload, defaulting to a comma.
func DetectDelimiter(data []byte) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(bytes.NewReader(data), '"')

	if len(delimiters) > 0 && delimiters[0] != "" {
		return rune(delimiters[0][0])
	}

	return ','
}
