package main

import (
	"fmt"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/cloudzz-dev/rosterchat/internal/client/api"
	"github.com/cloudzz-dev/rosterchat/internal/client/auth"
	"github.com/cloudzz-dev/rosterchat/internal/client/debug"
	"github.com/cloudzz-dev/rosterchat/internal/client/session"
	"github.com/cloudzz-dev/rosterchat/internal/client/ui"
	"github.com/cloudzz-dev/rosterchat/internal/config"
)

func main() {
	config.LoadDotEnv()
	if err := newApp(config.LoadClient()).Run(os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(cfg config.Client) *cli.App {
	profile := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "session profile to use",
			Value:   cfg.Profile,
		}
	}

	return &cli.App{
		Name:  "rosterchat",
		Usage: "manage students and chat with other users",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "base URL of the REST API",
				Value:   cfg.ServerURL,
			},
			profile(),
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "write a debug log",
				Value: cfg.Debug,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "how often the chat screen polls for new messages",
				Value: cfg.PollInterval,
			},
		},
		Action: func(c *cli.Context) error {
			cfg.ServerURL = c.String("server")
			cfg.Profile = c.String("profile")
			cfg.Debug = c.Bool("debug")
			cfg.PollInterval = c.Duration("poll-interval")
			return run(cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "logout",
				Usage: "forget the stored session of a profile",
				Flags: []cli.Flag{profile()},
				Action: func(c *cli.Context) error {
					name := profileName(c)
					if err := session.Clear(name); err != nil {
						return fmt.Errorf("clear session: %w", err)
					}
					fmt.Fprintf(c.App.Writer, "Logged out of profile %s.\n", name)
					return nil
				},
			},
		},
	}
}

// profileName reads --profile from the innermost command that set it,
// so it may be given before or after the subcommand.
func profileName(c *cli.Context) string {
	for _, ctx := range c.Lineage() {
		if ctx.IsSet("profile") {
			return ctx.String("profile")
		}
	}
	return c.String("profile")
}

func run(cfg config.Client) error {
	debug.Enabled = cfg.Debug
	debug.Path = cfg.DebugLogPath
	debug.Log("starting: server=%s profile=%s", cfg.ServerURL, cfg.Profile)

	store, err := session.Open(cfg.Profile)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	container := auth.New(store)
	client := api.New(cfg.ServerURL, container,
		api.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		api.WithUnauthorizedHandler(container.HandleUnauthorized),
	)

	model := ui.New(ui.Config{
		Auth:           container,
		API:            client,
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
