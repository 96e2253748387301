package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/lpkunpack/internal/config"
	"github.com/hpungsan/lpkunpack/internal/errors"
	"github.com/hpungsan/lpkunpack/internal/logging"
	"github.com/hpungsan/lpkunpack/internal/lpk"
	"github.com/hpungsan/lpkunpack/internal/ops"
	"github.com/hpungsan/lpkunpack/internal/web"
)

// stdout is where command results are written. Tests replace it.
var stdout io.Writer = os.Stdout

// newCLIApp creates the CLI application with all commands. db is nil
// when the run ledger is disabled.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	// -v is the verbosity flag of every command.
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Aliases: []string{"V"}, Usage: "print the version"}

	app := &cli.App{
		Name:    "lpkunpack",
		Usage:   "Live2D .lpk archive unpacker",
		Version: Version,
		Commands: []*cli.Command{
			extractCmd(db, cfg),
			inspectCmd(),
			historyCmd(db),
			purgeCmd(db),
			serveCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// formatFlag selects the result encoding.
func formatFlag() cli.Flag {
	return &cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "Output format: json|yaml"}
}

// extractCmd creates the extract command.
func extractCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	var verbosity int
	return &cli.Command{
		Name:      "extract",
		Usage:     "Decrypt and unpack a .lpk archive, or every .lpk under a directory",
		ArgsUsage: "<target>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output root directory (default: working directory)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Workshop config.json secret document"},
			&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Usage: "Archives extracted in parallel (prompts need 1)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Count: &verbosity, Usage: "Increase log verbosity (-v info, -vv debug)"},
			&cli.BoolFlag{Name: "strict", Usage: "Reject unrecognized archive types"},
			&cli.StringFlag{Name: "report", Usage: "Per-archive report: md|html|none"},
			&cli.BoolFlag{Name: "no-ledger", Usage: "Do not record this run in the ledger"},
			&cli.BoolFlag{Name: "no-prompt", Usage: "Never ask for a workshop file id"},
			formatFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("extract takes exactly one target"))
			}

			logger, err := commandLogger(cfg, verbosity)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			input := ops.ExtractInput{
				Target:         c.Args().First(),
				OutputDir:      c.String("out"),
				SecretsFile:    c.String("config"),
				Jobs:           c.Int("jobs"),
				StrictVariants: c.Bool("strict"),
				ReportFormat:   c.String("report"),
				Logger:         logger,
			}
			if !c.Bool("no-prompt") {
				input.Prompter = lpk.NewStdinPrompter()
			}

			ledger := db
			if c.Bool("no-ledger") {
				ledger = nil
			}

			output, err := ops.Extract(c.Context, ledger, cfg, input)
			if err != nil {
				return outputError(err)
			}
			if err := outputResult(c, output); err != nil {
				return err
			}
			if output.Failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d archives failed", output.Failed, len(output.Archives)), 1)
			}
			return nil
		},
	}
}

// inspectCmd creates the inspect command.
func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show manifest metadata without extracting",
		ArgsUsage: "<target>",
		Flags:     []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("inspect takes exactly one target"))
			}

			output, err := ops.Inspect(c.Context, ops.InspectInput{Target: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputResult(c, output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List recorded runs, or show one run with its translations",
		ArgsUsage: "[run-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: ok|partial|failed"},
			&cli.StringFlag{Name: "archive", Aliases: []string{"a"}, Usage: "Filter by archive path substring"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum number of runs"},
			&cli.IntFlag{Name: "offset", Usage: "Number of runs to skip"},
			formatFlag(),
		},
		Action: func(c *cli.Context) error {
			if db == nil {
				return outputError(errors.NewInvalidRequest("run ledger is disabled"))
			}

			if c.NArg() > 0 {
				output, err := ops.ShowRun(db, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputResult(c, output)
			}

			output, err := ops.History(db, ops.HistoryInput{
				Status:  c.String("status"),
				Archive: c.String("archive"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputResult(c, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete recorded runs (extracted files are kept)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge runs finished more than N days ago (e.g., 7d)"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Only purge runs with this status"},
			formatFlag(),
		},
		Action: func(c *cli.Context) error {
			if db == nil {
				return outputError(errors.NewInvalidRequest("run ledger is disabled"))
			}

			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}
			if status := c.String("status"); status != "" {
				input.Status = &status
			}

			output, err := ops.Purge(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputResult(c, output)
		},
	}
}

// serveCmd creates the serve command, a local browser over the run ledger.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	var verbosity int
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse the run ledger in a web browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to listen on"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8765, Usage: "Port to listen on"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Count: &verbosity, Usage: "Increase log verbosity (-v info, -vv debug)"},
		},
		Action: func(c *cli.Context) error {
			if db == nil {
				return outputError(errors.NewInvalidRequest("run ledger is disabled"))
			}
			port := c.Int("port")
			if port < 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port %d", port)))
			}
			logger, err := commandLogger(cfg, max(verbosity, 1))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			srv, err := web.NewServer(db, logger, Version, c.String("bind"), port)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(c.Context, srv, logger); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// commandLogger builds the stderr logger for a command from the
// configured level and the -v count.
func commandLogger(cfg *config.Config, verbosity int) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, logging.LevelFromVerbosity(verbosity, level)), nil
}

// outputResult writes v to stdout in the format chosen by --format.
func outputResult(c *cli.Context, v any) error {
	switch format := c.String("format"); format {
	case "", "json":
		return outputJSON(v)
	case "yaml":
		return outputYAML(v)
	default:
		return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want json or yaml)", format)))
	}
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML writes result to stdout as YAML. It goes through JSON so the
// json tags name the keys and their order is kept.
func outputYAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = stdout.Write(buf.Bytes())
	return err
}

// blockStyle drops the flow and quoting styles JSON input leaves on n.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}

// outputError formats error for CLI.
func outputError(err error) error {
	var uErr *errors.UnpackError
	if stderrors.As(err, &uErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", uErr.Code, uErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
