// Package results extracts structured performance records from HPCCG benchmark logs.
package results

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNotBenchmarkLog means the text never names its application; it is not a benchmark log at all.
	ErrNotBenchmarkLog = errors.New("not a benchmark log")
	// ErrMalformedLog means the text names its application but a required section is missing or corrupt.
	ErrMalformedLog = errors.New("malformed benchmark log")
)

// Metric names one of the timed kernels reported in every summary block.
type Metric string

const (
	MetricTotal    Metric = "Total"
	MetricDDOT     Metric = "DDOT"
	MetricWAXPBY   Metric = "WAXPBY"
	MetricSPARSEMV Metric = "SPARSEMV"
)

// Metrics is the schema of a summary block: every block lists exactly these, in this order.
var Metrics = []Metric{MetricTotal, MetricDDOT, MetricWAXPBY, MetricSPARSEMV}

// Section names a required part of a benchmark log.
type Section string

const (
	SectionDimensions Section = "Dimensions"
	SectionTime       Section = "Time Summary"
	SectionFLOPS      Section = "FLOPS Summary"
	SectionMFLOPS     Section = "MFLOPS Summary"
)

// MalformedError reports the first section of a named log that could not be decoded.
type MalformedError struct {
	Section Section
	Reason  string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrMalformedLog, e.Section, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedLog
}

// RunResult is the decoded content of one benchmark log.
type RunResult struct {
	Name       string
	Dimensions [3]int // nx, ny, nz
	Timings    map[Metric]float64
	FlopCounts map[Metric]int64
	Throughput map[Metric]float64 // MFLOPS
}

const numberPattern = `((?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][-+]?[0-9]+)?)`

var (
	namePattern       = regexp.MustCompile(`Mini-Application Name: ([a-zA-Z0-9_\-]*)`)
	dimensionsPattern = regexp.MustCompile(`nx:\s*(\d+)\s+ny:\s*(\d+)\s+nz:\s*(\d+)`)
	timePattern       = blockPattern(SectionTime)
	flopsPattern      = blockPattern(SectionFLOPS)
	mflopsPattern     = blockPattern(SectionMFLOPS)
)

// blockPattern builds the regexp of a summary block from the Metrics schema,
// one capture group per metric in schema order.
func blockPattern(header Section) *regexp.Regexp {
	var b strings.Builder
	// \b keeps "FLOPS Summary" from matching inside "MFLOPS Summary".
	b.WriteString(`\b` + regexp.QuoteMeta(string(header)) + `:\s+`)
	for i, m := range Metrics {
		if i > 0 {
			b.WriteString(`\s+`)
		}
		b.WriteString(regexp.QuoteMeta(string(m)) + `\s*:\s*` + numberPattern)
	}
	return regexp.MustCompile(b.String())
}

// Parse decodes a benchmark log.
//
// It returns ErrNotBenchmarkLog when the text has no application name, and a
// *MalformedError (matching ErrMalformedLog) when a named log lacks a dimension
// triple or one of the three summary blocks. A RunResult is only returned fully populated.
func Parse(text string) (RunResult, error) {
	name := namePattern.FindStringSubmatch(text)
	if name == nil {
		return RunResult{}, ErrNotBenchmarkLog
	}

	dims, err := parseDimensions(text)
	if err != nil {
		return RunResult{}, err
	}

	timings, err := parseBlock(text, SectionTime, timePattern)
	if err != nil {
		return RunResult{}, err
	}
	flops, err := parseBlock(text, SectionFLOPS, flopsPattern)
	if err != nil {
		return RunResult{}, err
	}
	mflops, err := parseBlock(text, SectionMFLOPS, mflopsPattern)
	if err != nil {
		return RunResult{}, err
	}

	counts := make(map[Metric]int64, len(Metrics))
	for m, v := range flops {
		// FLOP counts may be printed in scientific notation.
		if v >= math.MaxInt64 {
			return RunResult{}, &MalformedError{Section: SectionFLOPS, Reason: fmt.Sprintf("%s count %g overflows", m, v)}
		}
		counts[m] = int64(v)
	}

	return RunResult{
		Name:       name[1],
		Dimensions: dims,
		Timings:    timings,
		FlopCounts: counts,
		Throughput: mflops,
	}, nil
}

func parseDimensions(text string) ([3]int, error) {
	var dims [3]int
	m := dimensionsPattern.FindStringSubmatch(text)
	if m == nil {
		return dims, &MalformedError{Section: SectionDimensions, Reason: "not found"}
	}
	for i := range dims {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return dims, &MalformedError{Section: SectionDimensions, Reason: err.Error()}
		}
		if n <= 0 {
			return dims, &MalformedError{Section: SectionDimensions, Reason: fmt.Sprintf("non-positive dimension %d", n)}
		}
		dims[i] = n
	}
	return dims, nil
}

func parseBlock(text string, section Section, pattern *regexp.Regexp) (map[Metric]float64, error) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return nil, &MalformedError{Section: section, Reason: "not found"}
	}
	values := make(map[Metric]float64, len(Metrics))
	for i, metric := range Metrics {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return nil, &MalformedError{Section: section, Reason: fmt.Sprintf("%s: %v", metric, err)}
		}
		values[metric] = v
	}
	return values, nil
}
