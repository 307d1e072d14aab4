// Package modulectl implements the modulectl command line tool. It drives the
// same engine the server runs, against the database named by DATABASE_URL.
package modulectl

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"complyhub/internal/modules"
	"complyhub/internal/modules/models"
	"complyhub/internal/platform/config"
	"complyhub/internal/platform/logger"
)

// Exit codes for modulectl.
const (
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (bad arguments, backend failure).
	ExitCodeError = 1
	// ExitCodeRejected indicates the engine refused a transition.
	ExitCodeRejected = 2
	// ExitCodeInvalidCatalog indicates the catalog failed validation.
	ExitCodeInvalidCatalog = 3
)

// app carries what every subcommand shares. rt is opened lazily so catalog
// commands never touch a database. The runtime loads state with Reload and
// never seeds or reconciles; only the reconcile command writes corrections.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	rt     *modules.Runtime
	owned  bool
}

func (a *app) runtime(ctx context.Context) (*modules.Runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}
	rt, err := modules.Build(ctx, a.cfg, a.logger, prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	if err := rt.Service.Reload(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	a.rt = rt
	a.owned = true
	return rt, nil
}

// requireDatabase refuses state changes that would only reach the in-memory
// store of this short-lived process.
func (a *app) requireDatabase() error {
	if !a.cfg.Database.Enabled() {
		return errDatabaseRequired
	}
	return nil
}

func (a *app) close() {
	if a.owned && a.rt != nil {
		if err := a.rt.Close(); err != nil {
			a.logger.Warn("closing module runtime", "error", err)
		}
		a.rt = nil
	}
}

// NewRootCmd builds the command tree. A non-nil rt is used instead of one
// built from cfg.
func NewRootCmd(cfg config.Config, rt *modules.Runtime) *cobra.Command {
	a := &app{
		cfg:    cfg,
		logger: logger.NewWithWriter(os.Stderr, cfg.Log.Level, "text"),
		rt:     rt,
	}

	root := &cobra.Command{
		Use:   "modulectl",
		Short: "Inspect and change which platform modules are enabled",
		Long: `modulectl lists the platform modules, explains their dependencies and
enables or disables them. Changes go through the same validation and audit
trail as the admin API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newListCmd(a),
		newEnableCmd(a),
		newDisableCmd(a),
		newReconcileCmd(a),
		newDependentsCmd(a),
		newPlanCmd(a),
		newCatalogCmd(a),
	)
	return root
}

// Execute runs modulectl with configuration from the environment and exits
// with a code describing the failure.
func Execute() {
	cfg := config.FromEnv()
	root := NewRootCmd(cfg, nil)
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	kind := models.KindOf(err)
	switch {
	case kind == "":
		return ExitCodeError
	case kind.Fatal():
		return ExitCodeInvalidCatalog
	case kind == models.KindPersistence:
		return ExitCodeError
	default:
		return ExitCodeRejected
	}
}

var (
	errActorRequired    = errors.New("--actor is required (defaults to $USER)")
	errDatabaseRequired = errors.New("DATABASE_URL is required to change module state")
)

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return ""
}
