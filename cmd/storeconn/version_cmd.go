package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/storeconn/internal/version"
)

func newVersionCommand() *cobra.Command {
	var short, full bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the storeconn version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if short && full {
				return fmt.Errorf("--short and --full are mutually exclusive")
			}
			info := version.Read()
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(out, info.Version)
				return err
			case full:
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(info); err != nil {
					return err
				}
				return enc.Close()
			}
			_, err := fmt.Fprintln(out, info.Module+" "+info.Version)
			return err
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version")
	cmd.Flags().BoolVar(&full, "full", false, "print module, VCS stamps and toolchain as YAML")
	return cmd
}
