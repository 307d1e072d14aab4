package modulectl

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"complyhub/internal/modules/models"
)

func newDependentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dependents <module>",
		Short: "Show the modules that directly require a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			t := models.ParseModuleType(args[0])
			dependents, err := rt.Service.GetDependents(t)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(dependents) == 0 {
				fmt.Fprintf(out, "No module requires %s\n", t)
				return nil
			}
			tw := newTable(out)
			tw.AppendHeader(header("DEPENDENT", "NAME", "STATE"))
			for _, d := range dependents {
				tw.AppendRow(table.Row{string(d.Type), d.DisplayName, enabledCell(d.Enabled)})
			}
			tw.Render()
			return nil
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <module>",
		Short: "List the modules to enable, in order, before a module can be enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			t := models.ParseModuleType(args[0])
			steps, err := rt.Service.Plan(t)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(steps) == 0 {
				fmt.Fprintf(out, "%s\n", text.FgGreen.Sprintf("Nothing to do: every module %s requires is enabled", t))
				return nil
			}
			tw := newTable(out)
			tw.AppendHeader(header("STEP", "MODULE", "NAME"))
			for i, step := range steps {
				tw.AppendRow(table.Row{i + 1, string(step.Type), step.DisplayName})
			}
			tw.AppendFooter(table.Row{"", "then", string(t)})
			tw.Render()
			return nil
		},
	}
}
