package modulectl

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"complyhub/internal/modules/models"
	"complyhub/pkg/requestcontext"
)

type transitionFunc func(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error)

func newEnableCmd(a *app) *cobra.Command {
	return newTransitionCmd(a, "enable", "Enable a module whose required dependencies are enabled",
		func(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error) {
			return a.rt.Service.Enable(ctx, t, actor)
		})
}

func newDisableCmd(a *app) *cobra.Command {
	return newTransitionCmd(a, "disable", "Disable a module no enabled module requires",
		func(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error) {
			return a.rt.Service.Disable(ctx, t, actor)
		})
}

func newTransitionCmd(a *app, use, short string, apply transitionFunc) *cobra.Command {
	var (
		actor  string
		output string
	)
	cmd := &cobra.Command{
		Use:   use + " <module>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(actor) == "" {
				return errActorRequired
			}
			if err := a.requireDatabase(); err != nil {
				return err
			}
			return validateOutput(output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.runtime(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			ctx := requestcontext.WithActor(cmd.Context(), actor)
			res, err := apply(ctx, models.ParseModuleType(args[0]), actor)
			if err != nil {
				return err
			}
			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderTransition(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "Identity recorded on the change")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table|json)")
	return cmd
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Seed missing module rows and persist dependency corrections",
		Long: `reconcile runs the startup pass of the server: every catalog module without
a stored row gets its default state, and stored states that break the
dependency rules are corrected and audited as the reconcile actor.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.requireDatabase()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := rt.Service.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "module state reconciled: %d of %d modules enabled\n",
				len(rt.Registry.EnabledModules()), rt.Catalog.Len())
			return nil
		},
	}
}
