package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/gasoline/internal/cli"
)

// main is the entrypoint for the gasoline CLI.
func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
