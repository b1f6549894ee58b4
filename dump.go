package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/phobologic/reflgen/internal/cache"
	"github.com/phobologic/reflgen/internal/codec"
	"github.com/phobologic/reflgen/internal/codegen"
	"github.com/phobologic/reflgen/internal/extract"
	"github.com/phobologic/reflgen/internal/model"
	"github.com/phobologic/reflgen/internal/parse"
	"github.com/phobologic/reflgen/internal/toon"
)

func newDumpCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [flags] <header>",
		Short: "Print what reflgen extracts from one header",
		Long: `Dump parses a header and prints its classes, methods, enums, inheritance
edges, registrations and diagnostics in TOON. With --binary the parsed header
is also written in its binary encoding. With --from a binary encoding or cache
blob is decoded instead of parsing a header.`,
		Args: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			if from != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dump(cmd, args)
		},
	}

	fs := cmd.Flags()
	addCompileFlags(fs)
	fs.String("from", "", "decode this binary encoding or cache blob instead of parsing")
	fs.String("binary", "", "also write the binary encoding to this file")
	fs.String("root-marker", codegen.DefaultRootMarker, "root class every registered class derives from")
	return cmd
}

func (a *app) dump(cmd *cobra.Command, args []string) error {
	var h *model.Header
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		decoded, err := decodeFile(from)
		if err != nil {
			return err
		}
		h = decoded
	} else {
		flags := compileFlags(a.stringList(cmd.Flags(), "include"), a.stringList(cmd.Flags(), "define"))
		h = extract.Header(cmd.Context(), parse.New(), args[0], flags)
		if !h.IsValid() {
			a.logger.Warnf("%d errors when parsing %s", h.ErrorCount(), args[0])
		}
	}

	if out, _ := cmd.Flags().GetString("binary"); out != "" {
		data, err := codec.Marshal(h)
		if err != nil {
			return errors.Wrap(err, "encoding header")
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", out)
		}
		a.logger.Debugw("Wrote binary encoding", "file", out, "bytes", len(data))
	}

	regs := codegen.Registrations(h, codegen.Options{RootMarker: a.v.GetString("root-marker")})
	if regs == nil {
		regs = []codegen.Registration{}
	}
	_, err := fmt.Fprintln(a.stdout, toon.Encode(h, regs))
	return err
}

// decodeFile reads a cache blob or a bare binary encoding.
func decodeFile(path string) (*model.Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	h, err := cache.Decode(data)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, cache.ErrNotBlob) {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	h = &model.Header{}
	if err := codec.Unmarshal(data, h); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return h, nil
}
