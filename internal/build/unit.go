package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/phobologic/reflgen/internal/ast"
	"github.com/phobologic/reflgen/internal/cache"
	"github.com/phobologic/reflgen/internal/codegen"
	"github.com/phobologic/reflgen/internal/extract"
	"github.com/phobologic/reflgen/internal/model"
)

// Status is the outcome of a unit.
type Status int

const (
	// StatusInvalid means the unit has not run.
	StatusInvalid Status = iota
	StatusCompleted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result describes one finished unit.
type Result struct {
	Input    string
	Output   string
	Status   Status
	Classes  int
	Bytes    int
	Cached   bool
	Duration time.Duration
	Err      error
	// Header is the parsed header, including its diagnostics.
	Header *model.Header
}

// Unit generates the output for one header.
type Unit struct {
	Input  string
	Output string

	flags   []string
	parser  ast.Parser
	logger  *zap.SugaredLogger
	cache   *cache.Store
	codegen codegen.Options
}

// NewUnit returns a unit outside any orchestrator.
func NewUnit(input, output string, flags []string, parser ast.Parser, logger *zap.SugaredLogger, opts codegen.Options) *Unit {
	return &Unit{Input: input, Output: output, flags: flags, parser: parser, logger: logger, codegen: opts}
}

// Run parses the header, generates its registration source and writes it.
// Invalid headers produce no output file.
func (u *Unit) Run(ctx context.Context) Result {
	start := time.Now()
	result := Result{Input: u.Input, Output: u.Output, Status: StatusInvalid}
	inName, outName := filepath.Base(u.Input), filepath.Base(u.Output)

	u.logger.Infof("Generating %s -> %s", inName, outName)

	h, cached := u.header(ctx)
	result.Header = h
	result.Cached = cached

	if !h.IsValid() {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d Errors when parsing %s:\n", len(h.Diagnostics), inName)
		for _, d := range h.Diagnostics {
			fmt.Fprintf(&sb, "\t%s\n", d.PrettyPrint())
		}
		u.logger.Error(sb.String())
		return u.fail(result, start, errors.Wrapf(ErrInvalidHeader, "%s: %d errors", u.Input, h.ErrorCount()))
	}

	var buf bytes.Buffer
	n, err := codegen.Generate(&buf, h, u.codegen)
	if err != nil {
		return u.fail(result, start, errors.Wrapf(err, "generating %s", u.Output))
	}

	if err := os.MkdirAll(filepath.Dir(u.Output), 0o755); err != nil {
		u.logger.Errorf("Generation failed, could not create directory for %s: %v", u.Output, err)
		return u.fail(result, start, errors.Mark(errors.Wrapf(err, "creating directory for %s", u.Output), ErrWriteFailed))
	}
	if err := os.WriteFile(u.Output, buf.Bytes(), 0o644); err != nil {
		u.logger.Errorf("Generation failed, could not open file for write (%s): %v", u.Output, err)
		return u.fail(result, start, errors.Mark(errors.Wrapf(err, "writing %s", u.Output), ErrWriteFailed))
	}

	result.Status = StatusCompleted
	result.Classes = n
	result.Bytes = buf.Len()
	result.Duration = time.Since(start)
	u.logger.Infof("Generated %s in %s", outName, result.Duration.Round(time.Millisecond))
	u.logger.Debugw("Generated", "output", u.Output, "classes", n,
		"size", humanize.Bytes(uint64(buf.Len())), "cached", cached)
	return result
}

func (u *Unit) fail(result Result, start time.Time, err error) Result {
	result.Status = StatusError
	result.Err = err
	result.Duration = time.Since(start)
	return result
}

// header loads the parsed header from the cache or parses it.
func (u *Unit) header(ctx context.Context) (*model.Header, bool) {
	if u.cache != nil {
		h, ok, err := u.cache.Load(u.Input, u.flags)
		if err != nil {
			u.logger.Warnw("Cache lookup failed", "header", u.Input, "error", err)
		}
		if ok {
			u.logger.Debugw("Cache hit", "header", u.Input)
			return h, true
		}
	}

	h := extract.Header(ctx, u.parser, u.Input, u.flags)
	if u.cache != nil && h.IsValid() {
		if err := u.cache.Save(h, u.flags); err != nil {
			u.logger.Warnw("Cache store failed", "header", u.Input, "error", err)
		}
	}
	return h, false
}
