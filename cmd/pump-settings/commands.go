package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/pump-controller/internal/config"
	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/settings"
)

type rootFlags struct {
	db string
}

type showFlags struct {
	jsonOut bool
	yamlOut bool
}

// NewRootCommand creates the pump-settings command tree.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "pump-settings",
		Short:         "Read and change stored pulse/pause settings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.db, "db", config.DefaultDBPath, "Settings database")

	root.AddCommand(
		newGetCommand(flags),
		newSetCommand(flags),
		newShowCommand(flags),
	)
	return root
}

func newGetCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "get <pulse|pause>",
		Short:     "Show one setting",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{settings.KeyPulse, settings.KeyPause},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !settings.ValidKey(key) {
				return unknownKey(key)
			}
			return withStore(flags.db, func(s settings.Store) error {
				v, ok, err := settings.Lookup(s, key)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New().WithMessage(errors.ErrNotFound, key+" not found")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, formatSeconds(v))
				return nil
			})
		},
	}
}

func newSetCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <pulse|pause> <seconds>",
		Short: "Change one setting",
		Long: `Change one setting. The running controller reads stored values at
startup; use the control page to change durations of a running controller.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !settings.ValidKey(key) {
				return unknownKey(key)
			}
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return errors.New().WithMessage(errors.ErrInvalidDuration, fmt.Sprintf("%s: %q is not a number", key, args[1]))
			}
			return withStore(flags.db, func(s settings.Store) error {
				if err := settings.SaveChecked(s, key, v); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s set to %s s\n", key, formatSeconds(v))
				return nil
			})
		},
	}
}

func newShowCommand(flags *rootFlags) *cobra.Command {
	sf := &showFlags{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(flags.db, func(s settings.Store) error {
				all, err := s.All()
				if err != nil {
					return err
				}
				return writeSettings(cmd.OutOrStdout(), all, sf)
			})
		},
	}
	cmd.Flags().BoolVar(&sf.jsonOut, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&sf.yamlOut, "yaml", false, "Output in YAML format")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
	return cmd
}

func writeSettings(w io.Writer, all []settings.Setting, sf *showFlags) error {
	if all == nil {
		all = []settings.Setting{}
	}

	switch {
	case sf.jsonOut:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case sf.yamlOut:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(all); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(all) == 0 {
		fmt.Fprintln(w, "No settings stored.")
		return nil
	}
	for _, s := range all {
		fmt.Fprintf(w, "%s: %s\n", s.Key, formatSeconds(s.Value))
	}
	return nil
}

func withStore(path string, fn func(settings.Store) error) error {
	s, err := settings.OpenSQLite(path)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

func unknownKey(key string) error {
	return errors.New().WithMessage(errors.ErrInvalidArgument,
		fmt.Sprintf("unknown setting %q (want %s or %s)", key, settings.KeyPulse, settings.KeyPause))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
