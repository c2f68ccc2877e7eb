package main

import (
	"log/slog"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/devbooster/cmd"
	"github.com/smazurov/devbooster/internal/config"
	"github.com/smazurov/devbooster/internal/logging"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.LoggingConfig())

		// Components are built in OnStart so subcommands stay cheap.
		app := newApplication(opts, logging.GetLogger("main"))

		hooks.OnStart(app.Run)
		hooks.OnStop(app.Shutdown)
	})

	root := cli.Root()
	root.Use = "devbooster"
	root.Short = "Run local Rock RMS instances under IIS Express and LocalDB"
	root.Long = `Runs one Rock RMS instance at a time: attaches its database to a LocalDB ` +
		`engine, starts IIS Express on the instance's web root and stays in the foreground ` +
		`until Ctrl-C or until the web server exits.`

	root.AddCommand(
		cmd.CreateListCmd(),
		cmd.CreateHistoryCmd(),
		cmd.CreateDeleteCmd(),
		cmd.CreateRenderConfigCmd(),
		cmd.CreateVersionCmd(),
	)

	cli.Run()
}
