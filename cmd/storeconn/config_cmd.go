package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/storeconn"
	"pkt.systems/storeconn/store"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage storeconn configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.storeconn/" + storeconn.DefaultConfigFileName
	if path, err := storeconn.DefaultConfigPath(); err == nil {
		defaultOutput = path
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default storeconn configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				path, err := storeconn.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = path
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

type paramsDefaults struct {
	BlockSize      string `yaml:"block-size"`
	ReadCacheSize  int    `yaml:"read-cache-size"`
	WriteCacheSize int    `yaml:"write-cache-size"`
	FileMode       string `yaml:"file-mode"`
}

type configDefaults struct {
	LogLevel           string         `yaml:"log-level"`
	DisableProcessLock bool           `yaml:"disable-process-lock"`
	ChannelCacheSize   int            `yaml:"channel-cache-size"`
	DefaultParams      paramsDefaults `yaml:"default-params"`
}

func defaultConfigYAML() ([]byte, error) {
	p := store.DefaultParams()
	defaults := configDefaults{
		LogLevel:         "info",
		ChannelCacheSize: storeconn.DefaultChannelCacheSize,
		DefaultParams: paramsDefaults{
			BlockSize:      humanize.IBytes(uint64(p.BlockSize)),
			ReadCacheSize:  p.ReadCacheSize,
			WriteCacheSize: p.WriteCacheSize,
			FileMode:       p.FileMode,
		},
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return data, nil
}
