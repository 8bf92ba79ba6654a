// Package cmd provides CLI commands for the growler binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for stats and inspect.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats, inspect only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can reject it explicitly
// instead of failing with "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// ConfigFlag points at a growler.yaml file.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to growler.yaml",
	EnvVars: []string{"GROWLER_CONFIG"},
}

// ConnectionFlags select the Gerrit server and how to reach it. They
// override the gerrit section of the config file.
func ConnectionFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Gerrit SSH host (default: " + DefaultHost + ")",
			EnvVars: []string{"GROWLER_HOST"},
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "Gerrit SSH port (default: 29418)",
		},
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "Gerrit account username (default: current user)",
			EnvVars: []string{"GROWLER_USERNAME"},
		},
		&cli.StringFlag{
			Name:  "key-file",
			Usage: "SSH private key",
		},
		&cli.StringFlag{
			Name:  "known-hosts",
			Usage: "SSH known_hosts file",
		},
		&cli.BoolFlag{
			Name:  "insecure-ignore-host-key",
			Usage: "Accept any server host key",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "SSH transport: ssh (built in) or exec (system ssh binary)",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
}
