// Package build runs incremental, parallel generation over a header tree.
package build

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/phobologic/reflgen/internal/ast"
	"github.com/phobologic/reflgen/internal/cache"
	"github.com/phobologic/reflgen/internal/codegen"
	"github.com/phobologic/reflgen/internal/discover"
	"github.com/phobologic/reflgen/internal/pool"
)

// DefaultSuffix replaces a header's extension to name its generated file.
const DefaultSuffix = ".generated.cpp"

// DefaultExtensions are the header extensions scanned when none are configured.
var DefaultExtensions = []string{".hpp"}

var (
	// ErrInvalidHeader marks units whose header had error diagnostics.
	ErrInvalidHeader = errors.New("header has errors")
	// ErrWriteFailed marks units whose output could not be written.
	ErrWriteFailed = errors.New("writing generated file failed")
)

// Config describes one generation run.
type Config struct {
	InputDir   string
	OutputDir  string
	Extensions []string
	Suffix     string
	// Flags are forwarded to the parser (-I, -D, -U).
	Flags   []string
	Workers int
	Codegen codegen.Options
	// NoIgnore scans hidden, gitignored and dependency directories too.
	NoIgnore bool
}

func (c Config) withDefaults() Config {
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	if c.Suffix == "" {
		c.Suffix = DefaultSuffix
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
	return c
}

// DefaultWorkers leaves two cores for the rest of the build, keeping at
// least one worker.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		return 1
	}
	return n
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache makes units reuse parsed headers from store.
func WithCache(store *cache.Store) Option {
	return func(o *Orchestrator) {
		o.cache = store
	}
}

// Orchestrator scans, filters and dispatches generation units.
type Orchestrator struct {
	cfg    Config
	parser ast.Parser
	logger *zap.SugaredLogger
	cache  *cache.Store
}

// New returns an orchestrator for cfg.
func New(cfg Config, parser ast.Parser, logger *zap.SugaredLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg.withDefaults(),
		parser: parser,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Plan is the outcome of scanning and filtering.
type Plan struct {
	Scanned int
	Units   []*Unit
}

// Plan scans the input tree and returns a unit for every stale header.
func (o *Orchestrator) Plan(ctx context.Context) (*Plan, error) {
	exclude := []string{o.cfg.OutputDir}
	if o.cache != nil {
		exclude = append(exclude, o.cache.Dir())
	}
	entries, err := discover.Headers(o.cfg.InputDir, o.cfg.Extensions, discover.Options{
		Exclude:  exclude,
		NoIgnore: o.cfg.NoIgnore,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", o.cfg.InputDir)
	}

	plan := &Plan{Scanned: len(entries)}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "planning")
		}
		out := OutputPath(o.cfg.OutputDir, e.Path, o.cfg.Suffix)
		stale, err := IsStale(e.Abs, out)
		if err != nil {
			o.logger.Warnf("Skipping %s: %v", e.Path, err)
			continue
		}
		if !stale {
			o.logger.Debugw("Up to date", "header", e.Path)
			continue
		}
		plan.Units = append(plan.Units, o.unit(e.Abs, out))
	}
	return plan, nil
}

func (o *Orchestrator) unit(input, output string) *Unit {
	return &Unit{
		Input:   input,
		Output:  output,
		flags:   o.cfg.Flags,
		parser:  o.parser,
		logger:  o.logger,
		cache:   o.cache,
		codegen: o.cfg.Codegen,
	}
}

// Run generates every stale header and waits for all units to finish.
// Per-header failures are reported in the Report, not as an error.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	plan, err := o.Plan(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Scanned: plan.Scanned, Stale: len(plan.Units)}
	switch {
	case plan.Scanned == 0:
		o.logger.Info("No input headers found")
		return report, nil
	case len(plan.Units) == 0:
		o.logger.Info("No input headers need update")
		return report, nil
	}

	tracker := NewTracker()
	workers := pool.New(context.WithoutCancel(ctx), o.cfg.Workers, o.logger)

	var submitErr error
	for _, u := range plan.Units {
		if !tracker.Add(u) {
			o.logger.Warnf("Skipping %s: %s is already generated by another header", u.Input, u.Output)
			report.SkippedOutputs = append(report.SkippedOutputs, u.Input)
			continue
		}
		if submitErr == nil {
			submitErr = workers.Submit(ctx, func(ctx context.Context) {
				result := Result{Input: u.Input, Output: u.Output, Status: StatusError}
				defer func() { tracker.Done(result) }()
				result = u.Run(ctx)
			})
		}
		if submitErr != nil {
			tracker.Done(Result{Input: u.Input, Output: u.Output, Status: StatusError, Err: submitErr})
		}
	}

	report.add(tracker.Wait())
	if err := workers.Close(); err != nil {
		return report, errors.Wrap(err, "stopping workers")
	}
	report.Duration = time.Since(start)
	if submitErr != nil {
		return report, errors.Wrap(submitErr, "dispatching units")
	}
	return report, nil
}

// IsStale reports whether output must be regenerated from input. A missing
// output counts as infinitely old.
func IsStale(input, output string) (bool, error) {
	in, err := os.Stat(input)
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", input)
	}
	out, err := os.Stat(output)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", output)
	}
	return in.ModTime().After(out.ModTime()), nil
}

// OutputPath mirrors rel under outDir, replacing its extension with suffix.
func OutputPath(outDir, rel, suffix string) string {
	return filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+suffix)
}
