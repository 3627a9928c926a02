// Package main provides the RIA Hunter CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Turnstyle/ria-hunter-sub007/internal/app"
	"github.com/Turnstyle/ria-hunter-sub007/internal/config"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
)

const (
	cliName = "ria-hunter-cli"
	version = "0.1.0"
)

// appFactory assembles the service. Tests replace it to inject a store.
type appFactory func(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*app.App, error)

func defaultAppFactory(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{Logger: logger, ServiceName: cliName})
}

type cli struct {
	stdout io.Writer
	stderr io.Writer

	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
	newApp appFactory
	isatty bool
}

func newCLI(stdout, stderr io.Writer, factory appFactory) *cli {
	return &cli{stdout: stdout, stderr: stderr, newApp: factory}
}

// rootCmd builds the command tree.
func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   cliName,
		Short: "Natural-language search over registered investment advisers",
		Long: `RIA Hunter CLI runs the query pipeline from the terminal.

Use this tool to:
- Search advisers with a natural-language query
- Ask for a written answer, optionally streamed
- Inspect how a query is planned and routed
- Run a file of queries in parallel

All commands support --json for automation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.cfg, err = config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logFormat := "console"
			if c.outputJSON {
				logFormat = "json"
			}
			level := c.cfg.Observability.LogLevel
			if !c.verbose {
				level = "warn"
			}
			c.logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      logFormat,
				ServiceName: cliName,
				Environment: c.cfg.Environment,
				Output:      c.stderr,
			})
			c.ui = NewUI(c.stdout, c.stderr, c.outputJSON, c.noColor, c.isatty)
			return nil
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(c.newSearchCmd())
	root.AddCommand(c.newAskCmd())
	root.AddCommand(c.newNormalizeCmd())
	root.AddCommand(c.newPlanCmd())
	root.AddCommand(c.newBatchCmd())
	root.AddCommand(c.newVersionCmd())
	return root
}

// openApp assembles the service for commands that need the store.
func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	a, err := c.newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize service: %w", err)
	}
	return a, nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	c := newCLI(os.Stdout, os.Stderr, defaultAppFactory)
	c.isatty = IsTerminal()
	if err := c.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
