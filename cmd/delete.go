package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/smazurov/devbooster/internal/config"
	"github.com/smazurov/devbooster/internal/history"
	"github.com/smazurov/devbooster/internal/logging"
	"github.com/smazurov/devbooster/internal/orchestrator"
	"github.com/smazurov/devbooster/internal/registry"
)

// CreateDeleteCmd creates the delete command.
func CreateDeleteCmd() *cobra.Command {
	var yes, force bool

	cmd := &cobra.Command{
		Use:   "delete [instance]",
		Short: "Delete an instance folder",
		Long: `Removes an instance folder, including its database files. ` +
			`An instance with an open session in the history is refused; ` +
			`--force marks such sessions abandoned first.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.Options) {
			logger := logging.GetLogger("registry")
			reg := registry.New(afero.NewOsFs(), opts.ResolvedInstancesRoot(), logger)

			var store *history.Store
			if s, err := history.Open(opts.ResolvedHistoryPath()); err != nil {
				logger.Warn("Session history unavailable, running instances cannot be detected", "error", err)
			} else {
				store = s
				defer func() { _ = store.Close() }()
			}

			req := deleteRequest{name: args[0], confirmed: yes, force: force}
			if err := deleteInstance(cmd.Context(), cmd.OutOrStdout(), reg, store, req, logger); err != nil {
				logger.Error("Failed to delete instance", "instance", req.name, "error", err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	cmd.Flags().BoolVar(&force, "force", false, "Close open sessions left behind by a crashed run before deleting")
	return cmd
}

type deleteRequest struct {
	name      string
	confirmed bool
	force     bool
}

// deleteInstance removes an instance through the orchestrator so the running
// checks apply. store may be nil.
func deleteInstance(ctx context.Context, w io.Writer, reg *registry.FS, store *history.Store, req deleteRequest, logger *slog.Logger) error {
	inst, err := reg.Lookup(req.name)
	if errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("instance %s not found in %s", req.name, reg.Root())
	}
	if err != nil {
		return err
	}

	if !req.confirmed {
		fmt.Fprintf(w, "Would delete %s; rerun with --yes to confirm\n", inst.RootPath)
		return nil
	}

	opts := orchestrator.Options{Registry: reg, Logger: logger}
	if store != nil {
		opts.History = store
		if req.force {
			n, err := store.Abandon(ctx, req.name, time.Now())
			if err != nil {
				return err
			}
			if n > 0 {
				fmt.Fprintf(w, "Closed %d open session(s) of %s\n", n, req.name)
			}
		}
	}

	if err := orchestrator.New(opts).DeleteInstance(ctx, req.name); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted %s\n", inst.RootPath)
	return nil
}
