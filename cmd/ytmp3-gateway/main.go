package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "ytmp3-gateway",
		Usage:   "ytmp3.mobi conversion API, lyrics lookup and audio streaming",
		Version: version,
		Flags:   globalFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			serveCommand(),
			convertCommand(),
			lyricsCommand(),
			audioCommand(),
			initConfigCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		slog.Error("Command failed", "err", err)
		os.Exit(1)
	}
}
