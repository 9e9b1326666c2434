package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/taskmesh/internal/app"
	"github.com/vk/taskmesh/internal/cli"
	"github.com/vk/taskmesh/modules/delay"
	"github.com/vk/taskmesh/modules/httpcheck"
	"github.com/vk/taskmesh/modules/print"
	"github.com/vk/taskmesh/modules/socketio"
)

// main is the entrypoint for the taskmesh application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	meshApp := app.NewApp(outW,
		&print.Module{},
		&delay.Module{},
		&httpcheck.Module{},
		&socketio.Module{},
	)
	return meshApp.Run(context.Background(), appConfig)
}
