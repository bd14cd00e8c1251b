package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/rover-groundlink/cmd/groundctl/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	var configPath, levelOverride string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&levelOverride, "log", "", "Log level override [debug, info, warn, error]")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), app.Usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	level := config.Settings.LogLevel
	if levelOverride != "" {
		level = levelOverride
	}
	if err = logLevel.UnmarshalText([]byte(level)); err != nil {
		logger.Error("invalid log level", slog.String("level", level))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger, os.Stdout, flag.Args()); err != nil {
		if errors.Is(err, app.ErrUsage) {
			flag.Usage()
		}
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
