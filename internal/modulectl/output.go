package modulectl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"complyhub/internal/modules/models"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use table or json)", format)
	}
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = text.FgHiCyan.Sprint(c)
	}
	return row
}

func enabledCell(enabled bool) string {
	if enabled {
		return text.FgGreen.Sprint("enabled")
	}
	return text.FgRed.Sprint("disabled")
}

func joinTypes(types []models.ModuleType) string {
	if len(types) == 0 {
		return "-"
	}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func renderModules(out io.Writer, views []models.ModuleView) {
	if len(views) == 0 {
		fmt.Fprintln(out, text.FgYellow.Sprint("No modules match"))
		return
	}
	t := newTable(out)
	t.AppendHeader(header("TYPE", "NAME", "STATE", "PINNED", "REQUIRES", "LAST CHANGED BY"))
	for _, v := range views {
		pinned := ""
		if v.Pinned() {
			pinned = "yes"
		}
		t.AppendRow(table.Row{
			string(v.Type),
			v.DisplayName,
			enabledCell(v.Enabled),
			pinned,
			joinTypes(v.RequiredDependencies),
			v.LastChangedBy,
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d modules", len(views))})
	t.Render()
}

func renderTransition(out io.Writer, res models.TransitionResult) {
	if !res.Changed {
		fmt.Fprintf(out, "%s is already %s\n", res.Module, stateWord(res.Enabled))
		return
	}
	fmt.Fprintf(out, "%s %s by %s at %s\n",
		res.Module, stateWord(res.Enabled), res.ChangedBy, res.ChangedAt.Format(time.RFC3339))
}

func stateWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
