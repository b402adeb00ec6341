// Package cli implements the operator commands of the slotbook binary.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/odyssey-erp/slotbook/internal/app"
	"github.com/odyssey-erp/slotbook/internal/matrix"
	"github.com/odyssey-erp/slotbook/internal/matrix/client"
)

const usage = `usage: slotbook <command> [flags]

commands:
  serve                                       run the HTTP server (default)
  show   [-json] <matrix>                     print a matrix
  export [-o file] <matrix>                   download the XLSX export
  set    [-options bins|skus] <matrix> r:c=v  edit and save cells
  jobs   stats                                queue stats and failing cell retries
  jobs   trigger <task>                       enqueue a task (resources:warmup)
`

// Env builds the collaborators for a command. Tests replace it.
type Env struct {
	Matrix func(cfg *app.ClientConfig, logger *slog.Logger) (MatrixAPI, error)
	Jobs   func(cfg *app.ClientConfig) (*JobsCLI, error)
}

// DefaultEnv talks to the configured API and Redis.
var DefaultEnv = Env{
	Matrix: func(cfg *app.ClientConfig, logger *slog.Logger) (MatrixAPI, error) {
		return client.New(client.Config{BaseURL: cfg.APIURL, Timeout: cfg.Timeout, Retries: cfg.Retries, Logger: logger}), nil
	},
	Jobs: func(cfg *app.ClientConfig) (*JobsCLI, error) {
		return NewJobsCLI(cfg.RedisAddr)
	},
}

// Run executes args (without the program name) and returns the exit code.
func Run(ctx context.Context, env Env, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadClientConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := app.NewLoggerTo(stderr, cfg.LogFormat)

	switch args[0] {
	case "show", "export", "set":
		api, err := env.Matrix(cfg, logger)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
			return 1
		}
		mc, err := NewMatrixCLI(api)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
			return 1
		}
		return runMatrix(ctx, mc, args, stdout, stderr)
	case "jobs":
		if len(args) < 2 {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		jc, err := env.Jobs(cfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
			return 1
		}
		defer func() { _ = jc.Close() }()
		switch args[1] {
		case "stats":
			return jc.StatsCommand(ctx, stdout, stderr)
		case "trigger":
			if len(args) < 3 {
				_, _ = fmt.Fprintln(stderr, "jobs trigger: task name required")
				return 2
			}
			info, err := jc.Trigger(ctx, args[2])
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
				return 1
			}
			_, _ = fmt.Fprintf(stdout, "enqueued %s (%s)\n", info.Type, info.ID)
			return 0
		}
	}
	_, _ = fmt.Fprint(stderr, usage)
	return 2
}

func runMatrix(ctx context.Context, mc *MatrixCLI, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "print JSON")
	output := fs.String("o", "", "output file, - for stdout")
	optionSet := fs.String("options", "", "restrict set values to bins or skus")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		_, _ = fmt.Fprintf(stderr, "%s: matrix id required\n", args[0])
		return 2
	}
	switch args[0] {
	case "show":
		return mc.ShowCommand(ctx, ShowOptions{MatrixID: rest[0], JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
	case "export":
		return mc.ExportCommand(ctx, ExportOptions{MatrixID: rest[0], Output: *output, Stdout: stdout, Stderr: stderr})
	default:
		values := make([]CellAssignment, 0, len(rest)-1)
		for _, raw := range rest[1:] {
			v, err := ParseAssignment(raw)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "set: %v\n", err)
				return 2
			}
			values = append(values, v)
		}
		return mc.SetCommand(ctx, SetOptions{
			MatrixID: rest[0],
			Values:   values,
			Options:  matrix.OptionSet(*optionSet),
			Stdout:   stdout,
			Stderr:   stderr,
		})
	}
}
