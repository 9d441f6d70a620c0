package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"aida/common/version"
	"aida/internal/app"
	"aida/internal/config"
	"aida/internal/observability"
)

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	return &cli.App{
		Name:    "aida",
		Usage:   "Natural-language assistant: say what you want, aida resolves and runs the capability",
		Version: version.Info(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the JSON configuration file",
				Value:   defaultConfigPath(),
			},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error"},
			&cli.StringFlag{Name: "log-format", Usage: "Log format: text|json"},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Read utterances from stdin in a loop",
			},
		},
		Commands: []*cli.Command{
			capabilitiesCmd(),
		},
		Action: runAction,
	}
}

// runAction handles both the one-shot form (aida what's the weather in
// Paris) and the interactive loop (aida -i).
func runAction(c *cli.Context) error {
	a, ctx, stop, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()
	defer a.Close()

	if c.Bool("interactive") {
		return interactiveLoop(ctx, a)
	}

	utterance := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if utterance == "" {
		return cli.ShowAppHelp(c)
	}

	out, err := a.HandleUtterance(ctx, utterance)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// capabilitiesCmd lists the capability catalog.
func capabilitiesCmd() *cli.Command {
	return &cli.Command{
		Name:  "capabilities",
		Usage: "List the registered capabilities",
		Action: func(c *cli.Context) error {
			a, _, stop, err := setup(c)
			if err != nil {
				return err
			}
			defer stop()
			defer a.Close()

			for _, d := range a.Registry().All() {
				fmt.Printf("%-12s %s\n", d.Name, d.Description)
				for _, s := range d.Slots {
					req := "optional"
					if s.Required {
						req = "required"
					}
					fmt.Printf("    --%s (%s, %s)\n", s.Name, s.Type, req)
				}
			}
			return nil
		},
	}
}

// setup loads configuration, configures logging, and constructs the App. The
// returned context is cancelled on SIGINT/SIGTERM.
func setup(c *cli.Context) (*app.App, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}
	observability.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a, err := app.New(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return a, ctx, stop, nil
}

// interactiveLoop reads utterances line by line until EOF or interrupt.
func interactiveLoop(ctx context.Context, a *app.App) error {
	fmt.Println("aida interactive mode. Type your request, or press Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out, err := a.HandleUtterance(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(out)
	}
}

// defaultConfigPath resolves ~/.aida/config.json, falling back to a relative
// path when the home directory is unknown.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".aida", "config.json")
}
