// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/goschtalt/goschtalt"
	"go.uber.org/dig"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	applicationName = "matrix-keypad"
	defaultConfig   = "/etc/matrix-keypad/matrix-keypad.yml"
)

// Set at build time.
var version = "undefined"

var errUsage = errors.New("usage error")

type CLI struct {
	Show    bool             `optional:"" short:"s" help:"Show the merged configuration and exit."`
	Version kong.VersionFlag `short:"v" help:"Print the version and exit."`
	Files   []string         `arg:"" optional:"" name:"file" help:"Configuration files, merged in file name order."`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, hardware))
}

// run returns the exit code.  hw provides the keypad lines and the sink.
func run(args []string, stdout, stderr io.Writer, hw fx.Option) int {
	cli, code, err := parseCLI(args, stdout, stderr)
	if err != nil || code >= 0 {
		if err != nil {
			fmt.Fprintln(stderr, err)
		}
		return code
	}

	g, err := loadConfig(cli.Files)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}

	if cli.Show {
		b, err := g.Marshal(goschtalt.FormatAs("yaml"))
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitCode(err)
		}
		_, _ = stdout.Write(b)
		return exitOK
	}

	cfg, err := decodeConfig(g)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}

	logger, err := cfg.Logging.Build()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	defer func() { _ = logger.Sync() }()

	err = serve(cfg, logger, hw)
	if err != nil {
		logger.Error("keypad failed", zap.Error(err), zap.Int("exit", exitCode(err)))
	}

	return exitCode(err)
}

// parseCLI returns a code of -1 when the program should continue.
func parseCLI(args []string, stdout, stderr io.Writer) (*CLI, int, error) {
	var cli CLI

	code := -1
	parser, err := kong.New(&cli,
		kong.Name(applicationName),
		kong.Description("Debounces and scans a matrix keypad and reports key presses through uinput."),
		kong.Vars{"version": version},
		kong.Writers(stdout, stderr),
		kong.Exit(func(c int) {
			code = c
		}),
	)
	if err != nil {
		return nil, exitGeneric, err
	}

	_, err = parser.Parse(args)
	if code >= 0 {
		return nil, code, nil
	}
	if err != nil {
		return nil, exitUsage, fmt.Errorf("%w: %w", errUsage, err)
	}

	if len(cli.Files) == 0 {
		cli.Files = []string{defaultConfig}
	}

	return &cli, -1, nil
}

// startError keeps the message fx builds around a constructor failure but
// unwraps to the error the constructor returned.
type startError struct {
	err error
}

func (e startError) Error() string { return e.err.Error() }
func (e startError) Unwrap() error { return dig.RootCause(e.err) }

// serve runs the keypad until it fails or the process is signaled.
func serve(cfg Config, logger *zap.Logger, hw fx.Option) error {
	var loop *runner

	app := fx.New(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		hw,
		fx.Provide(
			provideMetrics,
			provideEngine,
			newRunner,
		),
		fx.Invoke(invokeMetricsServer),
		fx.Populate(&loop),
	)

	if err := app.Err(); err != nil {
		return startError{err: err}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()

	if err := app.Start(startCtx); err != nil {
		if loop != nil && loop.Err() != nil {
			return loop.Err()
		}
		return startError{err: err}
	}

	sig := <-app.Done()
	logger.Info("stopping", zap.Stringer("signal", sig))

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()

	stopErr := app.Stop(stopCtx)

	if err := loop.Err(); err != nil {
		return err
	}
	return stopErr
}
