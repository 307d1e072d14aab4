package modulectl

import (
	"github.com/spf13/cobra"

	"complyhub/internal/modules/models"
)

func newListCmd(a *app) *cobra.Command {
	var (
		output       string
		onlyEnabled  bool
		onlyDisabled bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List modules with their state",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutput(output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			var filter models.Filter
			switch {
			case onlyEnabled:
				filter = models.OnlyEnabled()
			case onlyDisabled:
				filter = models.OnlyDisabled()
			}
			views := rt.Registry.ListModules(filter)
			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			renderModules(cmd.OutOrStdout(), views)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table|json)")
	cmd.Flags().BoolVar(&onlyEnabled, "enabled", false, "Only list enabled modules")
	cmd.Flags().BoolVar(&onlyDisabled, "disabled", false, "Only list disabled modules")
	cmd.MarkFlagsMutuallyExclusive("enabled", "disabled")
	return cmd
}
