// Package command assembles the lactd CLI: the urfave/cli v1 App and
// its subcommands.
package command

import (
	"github.com/urfave/cli"

	"github.com/openlact/lactd/internal/version"
)

const usage = `
# start the daemon in the foreground
sudo lactd run

# print the effective on-disk configuration
lactd print-config
`

func App() *cli.App {
	app := cli.NewApp()

	app.Name = "lactd"
	app.Version = version.Version
	app.Usage = usage
	app.Description = "privileged daemon for GPU power, clock, fan, and performance control"

	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "start the daemon",
			UsageText: "sudo lactd run [options]",
			Action:    runCommand,
			Flags:     runFlags,
		},
		{
			Name:   "print-config",
			Usage:  "load the on-disk config (migrating it if needed) and print it as YAML",
			Action: printConfigCommand,
		},
		{
			Name:   "version",
			Usage:  "print the daemon version",
			Action: versionCommand,
		},
	}

	return app
}
