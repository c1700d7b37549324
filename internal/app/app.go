// Package app wires the client together: one session store, one transport,
// the auth controller and the flows built on them.
package app

import (
	"context"
	"fmt"
	"os"

	"chemviz/internal/api"
	"chemviz/internal/auth"
	"chemviz/internal/config"
	"chemviz/internal/flows"
	"chemviz/internal/metrics"
	"chemviz/internal/router"
	"chemviz/internal/session"
	"chemviz/internal/staging"
	"chemviz/internal/transport"
	"chemviz/internal/utils"
)

type App struct {
	Config   config.Config
	Logger   *utils.Logger
	Metrics  *metrics.Metrics
	Sessions session.Store
	Staging  *staging.Store
	Client   *transport.Client
	API      *api.API
	Auth     *auth.Controller
	Nav      *router.Navigator

	Upload    *flows.Upload
	History   *flows.History
	Dashboard *flows.Dashboard
	Report    *flows.Report

	settings Settings
}

// New opens the configured session store and builds the client on it.
func New(ctx context.Context, cfg config.Config, logger *utils.Logger) (*App, error) {
	sessions, err := session.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return NewWithStore(cfg, sessions, logger)
}

// NewWithStore builds the client on an existing session store.
func NewWithStore(cfg config.Config, sessions session.Store, logger *utils.Logger) (*App, error) {
	if logger == nil {
		logger = utils.NopLogger()
	}
	m := metrics.New()
	client, err := transport.New(sessions, transport.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	endpoints := api.New(client, logger)
	st := staging.NewStore()
	ctrl := auth.New(sessions, endpoints, m, logger)
	nav := router.NewNavigator(router.Guard{Session: ctrl, Staging: st}, router.Landing)

	// Sign-out drops the staged dataset and returns to the login view.
	// Both run before the failing request returns to its caller.
	ctrl.OnSignedOut(func(auth.SignOutReason) {
		st.Clear()
		nav.Redirect(router.Login)
	})

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Sessions:  sessions,
		Staging:   st,
		Client:    client,
		API:       endpoints,
		Auth:      ctrl,
		Nav:       nav,
		Upload:    flows.NewUpload(endpoints, st, nav, m, logger, cfg.Upload.MaxBytes),
		History:   flows.NewHistory(endpoints, st, nav, logger),
		Dashboard: flows.NewDashboard(st),
		Report:    flows.NewReport(endpoints, logger),
	}
	return a, nil
}

// Guard is the navigator's route guard.
func (a *App) Guard() router.Guard {
	return a.Nav.Guard()
}

// Close releases the session store when it holds a connection and dumps
// metrics when a metrics file is configured.
func (a *App) Close() error {
	if a.Config.Metrics.File != "" {
		if err := a.Metrics.WriteFile(a.Config.Metrics.File); err != nil {
			a.Logger.Warnf("write metrics to %s: %v", a.Config.Metrics.File, err)
		}
	}
	if c, ok := a.Sessions.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// EnsureDataDir creates the data directory with owner-only access.
func (a *App) EnsureDataDir() error {
	if a.Config.DataDir == "" {
		return nil
	}
	return os.MkdirAll(a.Config.DataDir, 0o700)
}
