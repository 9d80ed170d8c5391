package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/antigravity-dev/sprintreport/internal/config"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Generate a sprint report.\n\nUsage: %s [flags] <team_project>\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func stdoutIsTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "path to config file")
	flag.StringVar(&opts.jql, "jql", "", "JQL selecting the team's issues (default project=<team_project>)")
	flag.StringVar(&opts.sprintStart, "sprint-start", "", "the start of the sprint, as a JQL date or relative offset (default from config, -2w)")
	flag.StringVar(&opts.outputFile, "output-file", "", "location to write output (default from config, output.md)")
	flag.StringVar(&opts.format, "format", "", "output format: markdown, html, json or yaml")
	flag.StringVar(&opts.templatePath, "template", "", "custom template file for markdown or html output")
	flag.StringVar(&opts.title, "title", "", "report title (default the project name)")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flag.BoolVar(&opts.dev, "dev", false, "use text log format (default is JSON)")
	flag.BoolVar(&opts.diff, "diff", false, "print the changes since the previous archived report")
	flag.BoolVar(&opts.noArchive, "no-archive", false, "do not record this report in the archive")
	flag.Usage = usage
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	opts.project = strings.TrimSpace(flag.Arg(0))
	opts.colour = stdoutIsTerminal()

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.Error("failed to load config", "config", opts.configPath, "error", err)
		os.Exit(1)
	}

	logger = configureLogger(cfg.General.LogLevel, opts.dev)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout, logger); err != nil {
		logger.Error("sprint report failed", "project", opts.project, "error", err)
		stop()
		os.Exit(1)
	}
}
