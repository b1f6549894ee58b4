package main

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/reflgen/internal/build"
	"github.com/phobologic/reflgen/internal/codegen"
)

const configHeader = "# reflgen configuration. Flags and REFLGEN_* environment variables override these values.\n"

// fileConfig mirrors the generate flags as stored in .reflgen.yaml.
type fileConfig struct {
	Input          string   `yaml:"input"`
	Output         string   `yaml:"output"`
	Include        []string `yaml:"include"`
	Define         []string `yaml:"define"`
	Extensions     []string `yaml:"extensions"`
	Suffix         string   `yaml:"suffix"`
	RootMarker     string   `yaml:"root-marker"`
	RuntimeInclude string   `yaml:"runtime-include"`
	Workers        int      `yaml:"workers"`
	CacheDir       string   `yaml:"cache-dir"`
	NoIgnore       bool     `yaml:"no-ignore"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Input:          ".",
		Output:         "generated",
		Include:        []string{},
		Define:         []string{},
		Extensions:     build.DefaultExtensions,
		Suffix:         build.DefaultSuffix,
		RootMarker:     codegen.DefaultRootMarker,
		RuntimeInclude: codegen.DefaultRuntimeInclude,
		CacheDir:       ".reflgen-cache",
	}
}

func newInitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [flags] [path]",
		Short: "Write a default " + configName + ".yaml",
		Long: `Init writes a configuration file holding the default generate settings.
path defaults to ./` + configName + `.yaml. An existing file is left alone unless
--force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.writeConfig(cmd, args)
		},
	}
	cmd.Flags().Bool("dry-run", false, "print the configuration instead of writing it")
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func (a *app) writeConfig(cmd *cobra.Command, args []string) error {
	data, err := renderConfig(defaultFileConfig())
	if err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		_, err := a.stdout.Write(data)
		return err
	}

	path := configName + ".yaml"
	if len(args) > 0 {
		path = args[0]
	}
	if force, _ := cmd.Flags().GetBool("force"); !force {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	a.logger.Infof("Wrote %s", path)
	return nil
}

func renderConfig(cfg fileConfig) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, errors.Wrap(err, "encoding config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encoding config")
	}
	return buf.Bytes(), nil
}
