package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"chemviz/internal/app"
	"chemviz/internal/tui"
	"chemviz/internal/utils"
)

func (e Env) runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	fs.SetOutput(e.Stderr)
	c := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	cfg, err := e.loadConfig(ctx, c)
	if err != nil {
		e.errorf("%v", err)
		return 1
	}
	// The terminal belongs to the program, so logs go to a file.
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		e.errorf("create data dir: %v", err)
		return 1
	}
	logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		e.errorf("open log file: %v", err)
		return 1
	}
	defer logFile.Close()
	logger := utils.NewLogger(cfg.Logging.Level, false, logFile)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		e.errorf("%v", err)
		return 1
	}
	defer a.Close()
	logger.Infof("starting tui against %s", cfg.API.BaseURL)
	if err := tui.Run(a); err != nil {
		fmt.Fprintln(e.Stderr, err.Error())
		return 1
	}
	return 0
}
