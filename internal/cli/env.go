package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"chemviz/internal/app"
	"chemviz/internal/config"
	"chemviz/internal/utils"
)

// Env is the process surroundings a command runs in.
type Env struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Lookuper envconfig.Lookuper
}

func osEnv() Env {
	return Env{Stdout: os.Stdout, Stderr: os.Stderr, Lookuper: envconfig.OsLookuper()}
}

func (e Env) lookup(name string) string {
	if e.Lookuper == nil {
		return ""
	}
	v, _ := e.Lookuper.Lookup(name)
	return v
}

// common holds the flags every subcommand accepts.
type common struct {
	configPath *string
	apiURL     *string
	dataDir    *string
	session    *string
	metrics    *string
	verbose    *bool
	format     *string
}

func addCommon(fs *flag.FlagSet) *common {
	return &common{
		configPath: fs.String("config", "", "config file (yaml); default $CHEMVIZ_CONFIG"),
		apiURL:     fs.String("api-url", "", "backend API base URL"),
		dataDir:    fs.String("data-dir", "", "directory for session, settings and logs"),
		session:    fs.String("session", "", "session backend: file|memory|redis"),
		metrics:    fs.String("metrics-file", "", "write prometheus metrics here on exit"),
		verbose:    fs.Bool("verbose", false, "debug logging"),
		format:     fs.String("format", "pretty", "output format: json|pretty"),
	}
}

func (c *common) json() bool {
	return *c.format == "json"
}

// loadConfig resolves defaults, file, environment and then flags.
func (e Env) loadConfig(ctx context.Context, c *common) (config.Config, error) {
	path := *c.configPath
	if path == "" {
		path = e.lookup("CHEMVIZ_CONFIG")
	}
	cfg, err := config.LoadWith(ctx, path, e.Lookuper)
	if err != nil {
		return config.Config{}, err
	}
	if *c.apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(*c.apiURL, "/")
	}
	if *c.dataDir != "" {
		cfg.DataDir = *c.dataDir
	}
	if *c.session != "" {
		cfg.Session.Backend = *c.session
	}
	if *c.metrics != "" {
		cfg.Metrics.File = *c.metrics
	}
	if *c.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openApp builds the client for a one-shot command, logging to stderr.
func (e Env) openApp(ctx context.Context, c *common) (*app.App, error) {
	cfg, err := e.loadConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Pretty, e.Stderr)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.LoadSettings(); err != nil {
		logger.Warnf("failed to load settings: %v", err)
	}
	return a, nil
}

func (e Env) errorf(format string, args ...any) {
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}
