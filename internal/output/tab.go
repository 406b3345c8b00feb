// Package output provides result output formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/exonedge/internal/batch"
)

// ResultWriter writes batch results.
type ResultWriter interface {
	WriteHeader() error
	Write(res batch.WorkResult) error
	Flush() error
}

// EdgeWriter writes exon edges in tab-delimited format, one row per edge.
// Loci without edges produce no rows.
type EdgeWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewEdgeWriter creates a new tab-delimited edge writer.
func NewEdgeWriter(w io.Writer) *EdgeWriter {
	return &EdgeWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Locus",
			"Edge",
			"Start",
			"End",
		},
	}
}

// WriteHeader writes the header line.
func (ew *EdgeWriter) WriteHeader() error {
	_, err := ew.w.WriteString(strings.Join(ew.columns, "\t") + "\n")
	return err
}

// Write writes the edges of a successful result. Failed results are skipped.
func (ew *EdgeWriter) Write(res batch.WorkResult) error {
	if res.Err != nil {
		return nil
	}
	for i, e := range res.Edges {
		values := []string{
			res.Entry.Locus.String(),
			strconv.Itoa(i + 1),
			strconv.FormatInt(e.Start, 10),
			strconv.FormatInt(e.End, 10),
		}
		if _, err := ew.w.WriteString(strings.Join(values, "\t") + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (ew *EdgeWriter) Flush() error {
	return ew.w.Flush()
}

// AbundanceWriter writes one row per (locus, coverage source).
type AbundanceWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewAbundanceWriter creates a new tab-delimited abundance writer.
func NewAbundanceWriter(w io.Writer) *AbundanceWriter {
	return &AbundanceWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Locus",
			"Source",
			"Abundance",
		},
	}
}

// WriteHeader writes the header line.
func (aw *AbundanceWriter) WriteHeader() error {
	_, err := aw.w.WriteString(strings.Join(aw.columns, "\t") + "\n")
	return err
}

// Write writes the abundance values of a successful result.
func (aw *AbundanceWriter) Write(res batch.WorkResult) error {
	if res.Err != nil {
		return nil
	}
	for _, a := range res.Abundance {
		values := []string{
			res.Entry.Locus.String(),
			a.Source,
			FormatAbundance(a.Value),
		}
		if _, err := aw.w.WriteString(strings.Join(values, "\t") + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (aw *AbundanceWriter) Flush() error {
	return aw.w.Flush()
}

// FormatAbundance renders a value with the shortest exact representation.
func FormatAbundance(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSummary prints a batch summary to w.
func WriteSummary(w io.Writer, s batch.Summary) {
	fmt.Fprintf(w, "\nBatch Summary:\n")
	fmt.Fprintf(w, "  Total loci:  %d\n", s.Total)
	fmt.Fprintf(w, "  Succeeded:   %d\n", s.Total-s.Failed)
	fmt.Fprintf(w, "  Failed:      %d\n", s.Failed)
}
