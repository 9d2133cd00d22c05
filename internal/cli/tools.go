package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var toolsNamesOnly bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered analysis tools",
	Long: `List the analysis tools the dispatcher exposes.
By default the full catalog is printed with parameters, types and defaults;
with --names only the bare tool names are listed.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsNamesOnly, "names", false, "print bare tool names only")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	if toolsNamesOnly {
		for _, name := range registry.ListTools() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), registry.RenderCatalog())
	return nil
}
