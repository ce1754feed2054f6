package results

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSuffix is the extension of the scheduler's standard-output files.
const DefaultSuffix = ".out"

// Kind classifies a collected file.
type Kind int

const (
	// KindError marks an entry that could not be read; the paired error says why.
	KindError Kind = iota
	KindResult
	KindNotBenchmarkLog
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindResult:
		return "result"
	case KindNotBenchmarkLog:
		return "not_benchmark_log"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the result of parsing one output file.
type Outcome struct {
	Kind Kind
	// Group is the name of the run-group directory the file was found in.
	Group string
	Path  string
	// Result is only set when Kind is KindResult.
	Result RunResult
	// Err is the parse error for KindNotBenchmarkLog and KindMalformed.
	Err error
}

// Collector walks a results tree of run-group directories.
type Collector struct {
	// Suffix selects the files to parse. Empty means DefaultSuffix.
	Suffix string
}

// NewCollector creates a collector for files ending in suffix.
func NewCollector(suffix string) *Collector {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &Collector{Suffix: suffix}
}

// Collect parses every output file exactly two levels below root: root/<group>/<file>.
//
// Entries that are not directories at the first level, or not regular files with
// the collector's suffix at the second, are skipped. A root that cannot be read
// yields a single error. Unreadable groups or files yield an error for that entry
// and the walk continues.
func (c *Collector) Collect(root string) iter.Seq2[Outcome, error] {
	suffix := c.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return func(yield func(Outcome, error) bool) {
		groups, err := os.ReadDir(root)
		if err != nil {
			yield(Outcome{Path: root}, fmt.Errorf("failed to read results directory: %w", err))
			return
		}

		for _, group := range groups {
			if !group.IsDir() {
				continue
			}
			groupDir := filepath.Join(root, group.Name())
			files, err := os.ReadDir(groupDir)
			if err != nil {
				if !yield(Outcome{Group: group.Name(), Path: groupDir}, fmt.Errorf("failed to read run group: %w", err)) {
					return
				}
				continue
			}

			for _, file := range files {
				if !file.Type().IsRegular() || !strings.HasSuffix(file.Name(), suffix) {
					continue
				}
				path := filepath.Join(groupDir, file.Name())
				outcome, err := c.parseFile(group.Name(), path)
				if !yield(outcome, err) {
					return
				}
			}
		}
	}
}

func (c *Collector) parseFile(group, path string) (Outcome, error) {
	outcome := Outcome{Kind: KindError, Group: group, Path: path}

	content, err := os.ReadFile(path)
	if err != nil {
		return outcome, fmt.Errorf("failed to read output file: %w", err)
	}

	result, err := Parse(string(content))
	switch {
	case err == nil:
		outcome.Kind = KindResult
		outcome.Result = result
	case errors.Is(err, ErrNotBenchmarkLog):
		outcome.Kind = KindNotBenchmarkLog
		outcome.Err = err
	default:
		outcome.Kind = KindMalformed
		outcome.Err = fmt.Errorf("%s: %w", path, err)
	}
	return outcome, nil
}
