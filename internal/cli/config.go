package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/cadence/internal/config"
)

var (
	configOutput  string
	configChanged  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show every configuration key with its default and effective value, after
the config file, CADENCE_* environment variables and flags are applied.

Use --changed to list only keys that differ from their default.`,
	RunE: runConfigShow,
}

func init() {
	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "text", "output format (text, json, yaml)")
	configShowCmd.Flags().BoolVar(&configChanged, "changed", false, "only show keys that differ from the default")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	sections := config.Describe(cfg)
	if configChanged {
		sections = changedOnly(sections)
	}

	out := cmd.OutOrStdout()
	if configOutput != "text" {
		return writeDocument(out, configOutput, sections)
	}

	if path, err := config.ConfigFilePath(cfgFile); err == nil {
		fmt.Fprintf(out, "# %s\n", path)
	} else {
		fmt.Fprintln(out, "# no config file, defaults and environment only")
	}

	for _, section := range sections {
		fmt.Fprintf(out, "\n[%s] %s\n", section.Key, section.Description)
		for _, f := range section.Fields {
			marker := " "
			if fmt.Sprint(f.Current) != fmt.Sprint(f.Default) {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-20s = %-24v (default %v)\n", marker, f.Key, f.Current, f.Default)
		}
	}
	return nil
}

func changedOnly(sections []config.SectionMeta) []config.SectionMeta {
	var out []config.SectionMeta
	for _, section := range sections {
		var fields []config.FieldMeta
		for _, f := range section.Fields {
			if fmt.Sprint(f.Current) != fmt.Sprint(f.Default) {
				fields = append(fields, f)
			}
		}
		if len(fields) > 0 {
			section.Fields = fields
			out = append(out, section)
		}
	}
	return out
}
