package cmd

import (
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/smazurov/devbooster/internal/config"
	"github.com/smazurov/devbooster/internal/connconfig"
	"github.com/smazurov/devbooster/internal/logging"
	"github.com/smazurov/devbooster/internal/registry"
)

// CreateRenderConfigCmd creates the render-config command.
func CreateRenderConfigCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "render-config [database]",
		Short: "Print the connection string config for a database",
		Long: `Prints the web.ConnectionStrings.config document pointing RockContext at the ` +
			`LocalDB engine. With --write, the database argument names an instance and the ` +
			`file is written into its web root.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.Options) {
			text := connconfig.Render(opts.EngineName, args[0])
			if !write {
				fmt.Fprint(cmd.OutOrStdout(), text)
				return
			}

			logger := logging.GetLogger("registry")
			fs := afero.NewOsFs()
			inst, err := registry.New(fs, opts.ResolvedInstancesRoot(), logger).Lookup(args[0])
			if err != nil {
				logger.Error("Instance not found", "instance", args[0], "error", err)
				os.Exit(1)
			}

			path := connconfig.Path(inst.WebRoot)
			if err := connconfig.Write(fs, path, text); err != nil {
				logger.Error("Failed to write config", "path", path, "error", err)
				os.Exit(1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		}),
	}

	cmd.Flags().BoolVar(&write, "write", false, "Write the config into the instance's web root")
	return cmd
}
