package modulectl

import (
	"fmt"

	"github.com/spf13/cobra"

	"complyhub/internal/modules/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate or export module catalogs",
	}
	cmd.AddCommand(newCatalogValidateCmd(a), newCatalogExportCmd(a))
	return cmd
}

func newCatalogValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a catalog file for unknown references, cycles and invalid descriptors",
		Long: `Validate the catalog at the given path, or the one configured by
MODULES_CATALOG_FILE, or the built-in catalog when neither is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Modules.CatalogFile
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			source := path
			if source == "" {
				source = "built-in catalog"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d modules\n", source, cat.Len())
			return nil
		},
	}
}

func newCatalogExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the active catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(a.cfg.Modules.CatalogFile)
			if err != nil {
				return err
			}
			return catalog.EncodeYAML(cmd.OutOrStdout(), cat)
		},
	}
}
