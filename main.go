// reflgen compiles C++ headers into reflection registration source.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/phobologic/reflgen/internal/logging"
)

var version = "dev"

const (
	configName = ".reflgen"
	envPrefix  = "REFLGEN"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// app carries per-invocation state shared by the subcommands.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	logger *zap.SugaredLogger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "reflgen",
		Short:         "Generate reflection registration source from C++ headers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("reflgen {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./"+configName+".yaml)")
	pf.Bool("log-json", false, "log as JSON")
	pf.CountP("verbose", "v", "increase log verbosity")

	root.AddCommand(
		newGenerateCmd(a),
		newDumpCmd(a),
		newInitCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup binds the command's flags, reads the config file and environment,
// and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "binding flags")
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading config %s", path)
		}
	} else {
		a.v.SetConfigName(configName)
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		if err := a.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return errors.Wrap(err, "reading config")
			}
		}
	}

	a.logger = logging.New(a.stderr, a.v.GetBool("log-json"), a.v.GetInt("verbose"))
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debugw("Loaded config", "file", used)
	}
	return nil
}

// stringList returns a repeatable flag's values, falling back to the config
// file or environment when the flag was not given. Values are never split on
// commas.
func (a *app) stringList(flags *pflag.FlagSet, key string) []string {
	if flags.Changed(key) {
		values, _ := flags.GetStringArray(key)
		return values
	}
	return a.v.GetStringSlice(key)
}

// compileFlags renders include directories and definitions as parser flags.
func compileFlags(includes, defines []string) []string {
	out := make([]string, 0, len(includes)+len(defines))
	for _, dir := range includes {
		out = append(out, "-I"+dir)
	}
	for _, def := range defines {
		out = append(out, "-D"+def)
	}
	return out
}

// addCompileFlags registers -I and -D on fs.
func addCompileFlags(fs *pflag.FlagSet) {
	fs.StringArrayP("include", "I", nil, "add an include search directory (repeatable)")
	fs.StringArrayP("define", "D", nil, "define a preprocessor macro NAME[=VALUE] (repeatable)")
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the reflgen version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(a.stdout, "reflgen %s\n", version)
			return err
		},
	}
}
