package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/LeadPipe/internal/crm"
	"github.com/BTreeMap/LeadPipe/internal/flowgraph"
	"github.com/BTreeMap/LeadPipe/internal/providercfg"
)

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply seed fixtures (pipelines, custom fields, agents) to the store",
		Long: "Apply seed fixtures to the store. Fixtures carry fixed ids, so running\n" +
			"seed again updates them in place. Without --file the embedded defaults are used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if file != "" {
				cfg.Automation.SeedFile = file
			}
			seed, err := loadSeed(cfg)
			if err != nil {
				return err
			}
			a, err := openState(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// No engine: seeding defines automation but never fires it.
			res, err := crm.New(a.store, nil).ApplySeed(cmd.Context(), seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d pipelines, %d custom fields, %d agents\n",
				res.Pipelines, res.CustomFields, res.Agents)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed file (overrides $LEADPIPE_SEED_FILE)")
	return cmd
}

func newGraphCommand(opts *rootOptions) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the agent flow graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := openState(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			agents, err := a.store.Agents().List(cmd.Context())
			if err != nil {
				return err
			}
			g := flowgraph.Build(agents)

			var data []byte
			if format == "json" {
				data, err = json.MarshalIndent(graphJSON{
					Nodes:       g.Nodes(),
					Edges:       g.Edges(),
					EntryPoints: g.EntryPoints(),
					Warnings:    g.Warnings(),
				}, "", "  ")
			} else {
				var f flowgraph.Format
				if f, err = flowgraph.ParseFormat(format); err != nil {
					return err
				}
				data, err = flowgraph.Render(cmd.Context(), g, f)
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, data)
		},
	}
	cmd.Flags().StringVar(&format, "format", "dot", "output format: dot, svg or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

type graphJSON struct {
	Nodes       []flowgraph.Node    `json:"nodes"`
	Edges       []flowgraph.Edge    `json:"edges"`
	EntryPoints []string            `json:"entryPoints"`
	Warnings    []flowgraph.Warning `json:"warnings"`
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newProviderCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Inspect or change the stored messaging provider",
		Long: "Inspect or change the stored messaging provider. The service must be\n" +
			"stopped; a running service is reconfigured through PUT /provider-config.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored provider with secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProviders(opts, func(p *providercfg.BadgerStore) error {
					cfg, err := p.Load(cmd.Context())
					if err != nil {
						return err
					}
					if cfg == nil {
						fmt.Fprintln(cmd.OutOrStdout(), "no provider configured")
						return nil
					}
					enc := yaml.NewEncoder(cmd.OutOrStdout())
					defer enc.Close()
					return enc.Encode(cfg.Redacted())
				})
			},
		},
		&cobra.Command{
			Use:   "set FILE",
			Short: "Store the provider described by a YAML file (\"-\" reads stdin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := readProviderFile(cmd.InOrStdin(), args[0])
				if err != nil {
					return err
				}
				return withProviders(opts, func(p *providercfg.BadgerStore) error {
					if err := p.Save(cmd.Context(), cfg); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "provider %s saved\n", cfg.Provider)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored provider; messages fall back to the simulated transport",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProviders(opts, func(p *providercfg.BadgerStore) error {
					if err := p.Clear(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "provider cleared")
					return nil
				})
			},
		},
	)
	return cmd
}

// withProviders runs fn with the provider store of the locked state directory.
func withProviders(opts *rootOptions, fn func(*providercfg.BadgerStore) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	// Only the lock is needed; the entity store stays closed.
	cfg.Storage.DatabaseURL = "memory"
	a, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()
	if err := a.openProviders(); err != nil {
		return err
	}
	return fn(a.providers)
}

func readProviderFile(stdin io.Reader, path string) (providercfg.Config, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return providercfg.Config{}, fmt.Errorf("failed to read provider file: %w", err)
	}
	var cfg providercfg.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return providercfg.Config{}, fmt.Errorf("failed to parse provider file: %w", err)
	}
	if cfg.Version == 0 {
		cfg.Version = providercfg.CurrentVersion
	}
	if err := cfg.Validate(); err != nil {
		return providercfg.Config{}, err
	}
	return cfg, nil
}
