// Package junction parses the tab-delimited junction feed returned by Snaptron.
package junction

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Feed column indices (0-based).
const (
	ColSnaptronID = 1
	ColChromosome = 2
	ColStart      = 3
	ColEnd        = 4
	ColStrand     = 6
	ColCoverage   = 14

	// MinFields is the number of fields a feed line must carry.
	MinFields = ColCoverage + 1
)

// Record is one reported splice junction.
type Record struct {
	Start    int64
	End      int64
	Coverage float64

	// Informational columns, not used for inference.
	SnaptronID string
	Chrom      string
	Strand     string
}

// ErrMalformedRecord is matched by every MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed junction record")

// MalformedRecordError reports a feed line that cannot be turned into a Record.
type MalformedRecordError struct {
	Line    int
	Message string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("junction parse error at line %d: %s", e.Line, e.Message)
}

// Is makes errors.Is(err, ErrMalformedRecord) work.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Parser reads junction records from a feed.
// The first non-blank line is the header and is discarded.
type Parser struct {
	reader     *bufio.Reader
	lineNumber int
	headerLine string
	headerRead bool
}

// NewParser creates a parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{reader: bufio.NewReader(r)}
}

// Next reads the next record.
// Returns nil, nil when there are no more records. A *MalformedRecordError
// leaves the parser usable, so callers may skip the line and continue.
func (p *Parser) Next() (*Record, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read junction line: %w", err)
		}
		if err == io.EOF && line == "" {
			return nil, nil
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			if err == io.EOF {
				return nil, nil
			}
			continue
		}

		if !p.headerRead {
			p.headerRead = true
			p.headerLine = line
			if err == io.EOF {
				return nil, nil
			}
			continue
		}

		return p.parseLine(line)
	}
}

// parseLine converts one data line into a Record.
func (p *Parser) parseLine(line string) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < MinFields {
		return nil, &MalformedRecordError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least %d fields, found %d", MinFields, len(fields)),
		}
	}

	start, err := strconv.ParseInt(strings.TrimSpace(fields[ColStart]), 10, 64)
	if err != nil {
		return nil, &MalformedRecordError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid start: %q", fields[ColStart]),
		}
	}

	end, err := strconv.ParseInt(strings.TrimSpace(fields[ColEnd]), 10, 64)
	if err != nil {
		return nil, &MalformedRecordError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid end: %q", fields[ColEnd]),
		}
	}

	coverage, err := strconv.ParseFloat(strings.TrimSpace(fields[ColCoverage]), 64)
	if err != nil || math.IsNaN(coverage) || coverage < 0 {
		return nil, &MalformedRecordError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid coverage: %q", fields[ColCoverage]),
		}
	}

	return &Record{
		Start:      start,
		End:        end,
		Coverage:   coverage,
		SnaptronID: fields[ColSnaptronID],
		Chrom:      fields[ColChromosome],
		Strand:     fields[ColStrand],
	}, nil
}

// Header returns the discarded header line, once it has been read.
func (p *Parser) Header() string {
	return p.headerLine
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// ParseFeed reads every record from r. The first malformed line aborts the
// read. An empty feed yields zero records and no error.
func ParseFeed(r io.Reader) ([]Record, error) {
	return readAll(NewParser(r), nil)
}

// ParseFeedLenient reads every record from r, passing malformed lines to
// skip instead of failing. I/O errors still abort.
func ParseFeedLenient(r io.Reader, skip func(*MalformedRecordError)) ([]Record, error) {
	if skip == nil {
		skip = func(*MalformedRecordError) {}
	}
	return readAll(NewParser(r), skip)
}

func readAll(p *Parser, skip func(*MalformedRecordError)) ([]Record, error) {
	records := []Record{}
	for {
		rec, err := p.Next()
		if err != nil {
			var mre *MalformedRecordError
			if skip != nil && errors.As(err, &mre) {
				skip(mre)
				continue
			}
			return nil, err
		}
		if rec == nil {
			return records, nil
		}
		records = append(records, *rec)
	}
}
