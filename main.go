/*
Demo application that renders the testbed scene with the
backend picked on the command line
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/testbed"
)

// splitConfigFlag removes "--config path" (or "--config=path") from args.
func splitConfigFlag(args []string) (string, []string, error) {
	var path string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--config needs a path")
			}
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return path, rest, nil
}

func run(ctx context.Context, args []string) error {
	configPath, rest, err := splitConfigFlag(args)
	if err != nil {
		return err
	}
	config, err := engine.ResolveApplicationConfig(configPath)
	if err != nil {
		return err
	}
	backend, unknown, err := renderer.BackendFromArgs(rest, config.BackendType())
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		core.LogWarn("ignoring unknown arguments: %s", strings.Join(unknown, " "))
	}

	tb := testbed.NewTestGame(config)
	e, err := engine.New(tb.Game, backend)
	if err != nil {
		return err
	}

	runErr := e.Initialize(ctx)
	if runErr == nil {
		runErr = e.Run(ctx)
	}
	// the run context may already be cancelled by a signal
	if err := e.Shutdown(context.Background()); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()

	if err != nil {
		core.LogError("Shutting down, reason: %s", err)
		os.Exit(1)
	}
	core.LogInfo("Shutting down, no issues")
}
