// Package locus parses genomic locus strings of the form chr18:79930227-79930311_+.
package locus

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidCoordinateFormat is matched by every error returned from Parse.
var ErrInvalidCoordinateFormat = errors.New("invalid genomic coordinate format")

// InvalidCoordinateFormatError reports a locus string that does not match
// chr<digits>:<digits>-<digits>_<strand>.
type InvalidCoordinateFormatError struct {
	Input string
}

func (e *InvalidCoordinateFormatError) Error() string {
	return fmt.Sprintf("invalid genomic coordinate format: %q (expected chr#:start-end_strand)", e.Input)
}

// Is makes errors.Is(err, ErrInvalidCoordinateFormat) work.
func (e *InvalidCoordinateFormatError) Is(target error) bool {
	return target == ErrInvalidCoordinateFormat
}

var locusPattern = regexp.MustCompile(`^(chr\d+):(\d+)-(\d+)_(\S+)$`)

// Locus is a named chromosome interval with a strand token.
type Locus struct {
	Chrom  string // e.g. "chr18"
	Start  int64
	End    int64
	Strand string // usually "+" or "-", not validated
}

// Parse validates s and splits it into its components.
// End >= Start is not checked here.
func Parse(s string) (Locus, error) {
	m := locusPattern.FindStringSubmatch(s)
	if m == nil {
		return Locus{}, &InvalidCoordinateFormatError{Input: s}
	}

	start, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Locus{}, &InvalidCoordinateFormatError{Input: s}
	}
	end, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return Locus{}, &InvalidCoordinateFormatError{Input: s}
	}

	return Locus{
		Chrom:  m[1],
		Start:  start,
		End:    end,
		Strand: m[4],
	}, nil
}

// FromFields assembles a locus string from batch-file columns and parses it.
func FromFields(chrom, start, end, strand string) (Locus, error) {
	return Parse(fmt.Sprintf("%s:%s-%s_%s", chrom, start, end, strand))
}

// String returns the locus in chr:start-end_strand form.
func (l Locus) String() string {
	return fmt.Sprintf("%s:%d-%d_%s", l.Chrom, l.Start, l.End, l.Strand)
}

// Region returns the chr:start-end form used by region queries.
func (l Locus) Region() string {
	return fmt.Sprintf("%s:%d-%d", l.Chrom, l.Start, l.End)
}

// Len returns the number of bases in [Start, End), or 0 for inverted loci.
func (l Locus) Len() int64 {
	if l.End <= l.Start {
		return 0
	}
	return l.End - l.Start
}
