package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/smazurov/devbooster/internal/config"
	"github.com/smazurov/devbooster/internal/logging"
	"github.com/smazurov/devbooster/internal/registry"
)

// CreateListCmd creates the list command.
func CreateListCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List instances",
		Long: `Lists the instance folders under the instances root with their database size. ` +
			`Legacy folders without a RockWeb subfolder are converted on the way.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			logger := logging.GetLogger("registry")
			reg := registry.New(afero.NewOsFs(), opts.ResolvedInstancesRoot(), logger)
			out := cmd.OutOrStdout()

			instances, err := reg.Instances(cmd.Context())
			if err != nil {
				logger.Error("Failed to list instances", "root", reg.Root(), "error", err)
				os.Exit(1)
			}
			if !watch {
				renderInstances(out, instances, time.Now())
				return
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := watchInstances(ctx, out, reg, logger); err != nil {
				logger.Error("Failed to watch instances", "root", reg.Root(), "error", err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and print the list again when instances change")
	return cmd
}

// watchInstances prints the instance table now and after every change to the
// instances root until ctx is done.
func watchInstances(ctx context.Context, out io.Writer, reg *registry.FS, logger *slog.Logger) error {
	watcher := config.NewWatcher(reg.Root(), func(string) ([]registry.Instance, error) {
		return reg.Instances(ctx)
	}, logger,
		config.WithDebounce[[]registry.Instance](500*time.Millisecond),
		config.WithInitialLoad[[]registry.Instance](),
		// instance/RockWeb/App_Data, so database files count as changes.
		config.WithDepth[[]registry.Instance](3),
	)
	watcher.OnReload(func(instances []registry.Instance) {
		fmt.Fprintf(out, "\n%s\n", time.Now().Format(time.TimeOnly))
		renderInstances(out, instances, time.Now())
	})

	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	<-ctx.Done()
	logger.Debug("Stopped watching instances")
	return nil
}

func renderInstances(w io.Writer, instances []registry.Instance, now time.Time) {
	if len(instances) == 0 {
		fmt.Fprintln(w, "No instances")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Database", "Size", "Modified"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, inst := range instances {
		database, size, modified := "missing", "-", "-"
		if inst.HasDatabase {
			database = inst.DatabaseName
			size = humanize.Bytes(uint64(inst.DatabaseSize))
			modified = humanize.RelTime(inst.ModTime, now, "ago", "from now")
		}
		table.Append([]string{inst.Name, database, size, modified})
	}
	table.Render()
}
