package main

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/phobologic/reflgen/internal/build"
	"github.com/phobologic/reflgen/internal/cache"
	"github.com/phobologic/reflgen/internal/codegen"
	"github.com/phobologic/reflgen/internal/parse"
	"github.com/phobologic/reflgen/internal/watch"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate registration source for every changed header",
		Long: `Generate scans the input directory for headers, parses every header whose
generated file is missing or older than the header, and writes registration
source for each class deriving from the root marker. Headers with errors are
reported and skipped; they never fail the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.generate(cmd)
		},
	}

	fs := cmd.Flags()
	fs.String("input", ".", "directory scanned for headers")
	fs.String("output", "generated", "directory receiving generated files")
	addCompileFlags(fs)
	fs.Int("workers", 0, "parallel units (default: CPUs minus two, at least one)")
	fs.String("root-marker", codegen.DefaultRootMarker, "root class every registered class derives from")
	fs.String("runtime-include", codegen.DefaultRuntimeInclude, "header declaring the reflection runtime")
	fs.StringSlice("extensions", build.DefaultExtensions, "header extensions to scan")
	fs.String("suffix", build.DefaultSuffix, "replaces the header extension in generated file names")
	fs.String("cache-dir", "", "reuse parsed headers from this directory")
	fs.Bool("no-ignore", false, "also scan hidden, gitignored and dependency directories")
	fs.Bool("watch", false, "keep running and regenerate when headers change")
	fs.Duration("debounce", watch.DefaultDebounce, "quiet period before regenerating in watch mode")
	return cmd
}

func (a *app) buildConfig(cmd *cobra.Command) (build.Config, error) {
	input, err := filepath.Abs(a.v.GetString("input"))
	if err != nil {
		return build.Config{}, errors.Wrap(err, "resolving input")
	}
	output, err := filepath.Abs(a.v.GetString("output"))
	if err != nil {
		return build.Config{}, errors.Wrap(err, "resolving output")
	}
	return build.Config{
		InputDir:   input,
		OutputDir:  output,
		Extensions: a.v.GetStringSlice("extensions"),
		Suffix:     a.v.GetString("suffix"),
		Flags:      compileFlags(a.stringList(cmd.Flags(), "include"), a.stringList(cmd.Flags(), "define")),
		Workers:    a.v.GetInt("workers"),
		Codegen: codegen.Options{
			RootMarker:     a.v.GetString("root-marker"),
			RuntimeInclude: a.v.GetString("runtime-include"),
		},
		NoIgnore: a.v.GetBool("no-ignore"),
	}, nil
}

func (a *app) generate(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := a.buildConfig(cmd)
	if err != nil {
		return err
	}

	var opts []build.Option
	exclude := []string{cfg.OutputDir}
	if dir := a.v.GetString("cache-dir"); dir != "" {
		store, err := cache.Open(dir)
		if err != nil {
			return err
		}
		opts = append(opts, build.WithCache(store))
		exclude = append(exclude, dir)
	}

	orch := build.New(cfg, parse.New(), a.logger, opts...)
	a.logger.Debugw("Starting generation", "input", cfg.InputDir, "output", cfg.OutputDir,
		"workers", orch.Config().Workers, "flags", cfg.Flags)
	if err := a.runOnce(ctx, orch); err != nil {
		return err
	}
	if !a.v.GetBool("watch") {
		return nil
	}

	return watch.Run(ctx, watch.Options{
		Root:       cfg.InputDir,
		Extensions: orch.Config().Extensions,
		Exclude:    exclude,
		NoIgnore:   cfg.NoIgnore,
		Debounce:   a.v.GetDuration("debounce"),
		Logger:     a.logger,
	}, func(changed []string) {
		a.logger.Infof("%d headers changed", len(changed))
		if err := a.runOnce(ctx, orch); err != nil {
			a.logger.Errorw("Generation failed", "error", err)
		}
	})
}

func (a *app) runOnce(ctx context.Context, orch *build.Orchestrator) error {
	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	if report.Stale > 0 {
		a.logger.Info(report.Summary())
	}
	return nil
}
