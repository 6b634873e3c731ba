// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles sign-in, sign-out and session inspection.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with username and password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username", Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Sources: cli.EnvVars("IMGX_PASSWORD")},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "register",
				Usage: "Create an account and sign in",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username", Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Sources: cli.EnvVars("IMGX_PASSWORD")},
					&cli.StringFlag{Name: "email", Usage: "Email address"},
					&cli.StringFlag{Name: "name", Usage: "Display name"},
				},
				Action: r.AuthRegister,
			},
			{
				Name:  "oauth",
				Usage: "Sign in through the identity provider in a browser",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "return-url", Usage: "Local path to return to after sign-in", Value: "/"},
					&cli.BoolFlag{Name: "google", Usage: "Use the Google connection"},
					&cli.BoolFlag{Name: "no-browser", Usage: "Print the URL instead of opening a browser"},
					&cli.DurationFlag{Name: "timeout", Usage: "How long to wait for the redirect", Value: 2 * time.Minute},
				},
				Action: r.AuthOAuth,
			},
			{
				Name:  "callback",
				Usage: "Complete sign-in from a pasted redirect URL",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "google", Usage: "The redirect came from the Google connection"},
				},
				Action: r.AuthCallback,
			},
			{
				Name:  "status",
				Usage: "Show the stored session",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Re-fetch the profile and membership",
				Action: r.AuthRefresh,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and clear local state",
				Action: r.AuthLogout,
			},
		},
	}
}

// batchFlags are shared by every image operation.
func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Concurrent uploads (default from config)"},
		&cli.FloatFlag{Name: "rate", Usage: "Uploads per second (default from config)"},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Download processed images into this directory"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: text, json, csv, markdown", Value: "text"},
		&cli.StringFlag{Name: "manifest", Usage: "Write a manifest of the results to this path"},
		&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Show progress and results in a TUI"},
	}
}

func withBatchFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, batchFlags()...)
}

// imageCommand handles image operations. Each accepts files and directories.
func imageCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "image",
		Aliases: []string{"img"},
		Usage:   "Convert, compress, crop or resize images",
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert images to another format",
				ArgsUsage: "<files or directories...>",
				Flags: withBatchFlags(
					&cli.StringFlag{Name: "to", Usage: "Target format: jpeg, png, webp, avif, gif, bmp, tiff", Required: true},
					&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Usage: "Output quality 1-100"},
					&cli.IntFlag{Name: "width", Usage: "Output width"},
					&cli.IntFlag{Name: "height", Usage: "Output height"},
				),
				Action: r.ImageConvert,
			},
			{
				Name:      "compress",
				Usage:     "Compress images",
				ArgsUsage: "<files or directories...>",
				Flags: withBatchFlags(
					&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Usage: "Output quality 1-100"},
					&cli.IntFlag{Name: "max-width", Usage: "Downscale wider images"},
					&cli.IntFlag{Name: "max-height", Usage: "Downscale taller images"},
				),
				Action: r.ImageCompress,
			},
			{
				Name:      "crop",
				Usage:     "Crop images to a rectangle",
				ArgsUsage: "<files or directories...>",
				Flags: withBatchFlags(
					&cli.IntFlag{Name: "x", Usage: "Left edge"},
					&cli.IntFlag{Name: "y", Usage: "Top edge"},
					&cli.IntFlag{Name: "width", Usage: "Crop width", Required: true},
					&cli.IntFlag{Name: "height", Usage: "Crop height", Required: true},
				),
				Action: r.ImageCrop,
			},
			{
				Name:      "resize",
				Usage:     "Resize images",
				ArgsUsage: "<files or directories...>",
				Flags: withBatchFlags(
					&cli.IntFlag{Name: "width", Usage: "Target width"},
					&cli.IntFlag{Name: "height", Usage: "Target height"},
					&cli.BoolFlag{Name: "keep-aspect", Usage: "Maintain aspect ratio", Value: true},
				),
				Action: r.ImageResize,
			},
		},
	}
}

func historyFilters(flags ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "op", Usage: "Only this operation"},
		&cli.BoolFlag{Name: "failed", Usage: "Only failures"},
		&cli.BoolFlag{Name: "all", Usage: "Include entries from every account"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum entries", Value: 20},
	}, flags...)
}

// historyCommand inspects locally recorded results.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Processed image history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent results",
				Flags: historyFilters(
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: text, json, csv, markdown", Value: "text"},
				),
				Action: r.HistoryList,
			},
			{
				Name:  "export",
				Usage: "Write history to a file",
				Flags: historyFilters(
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: json, csv, markdown, text", Value: "csv"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path", Required: true},
				),
				Action: r.HistoryExport,
			},
			{
				Name:  "delete",
				Usage: "Remove an entry",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.HistoryDelete,
			},
		},
	}
}

// healthCommand checks the backend.
func healthCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check backend health and serving region",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Health,
	}
}

// statsCommand reports account usage.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Account usage statistics",
		Commands: []*cli.Command{
			{
				Name:   "usage",
				Usage:  "Images and bytes processed",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.StatsUsage,
			},
			{
				Name:   "quota",
				Usage:  "Plan limits and consumption",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.StatsQuota,
			},
		},
	}
}

// apiCommand handles direct API calls through the resilient client
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API calls to the backend",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON body to send", Required: true},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing history.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse processing history interactively",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Include entries from every account"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum entries", Value: 200},
		},
		Action: r.TUI,
	}
}
