package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/bookload/internal/config"
)

func newPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "List built-in profiles, or print one as a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				cfg, err := config.Preset(args[0])
				if err != nil {
					return err
				}
				cfg.Preset = ""
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("failed to encode preset: %w", err)
				}
				return enc.Close()
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDURATION\tMAX VUS\tDESCRIPTION")
			for _, name := range config.PresetNames() {
				cfg, err := config.Preset(name)
				if err != nil {
					return err
				}
				profile, err := cfg.Profile()
				if err != nil {
					return fmt.Errorf("preset %s: %w", name, err)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, profile.TotalDuration(), profile.MaxTarget(), cfg.Description)
			}
			return tw.Flush()
		},
	}
	return cmd
}
