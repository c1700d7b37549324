package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chemviz/internal/apitest"
	"chemviz/internal/config"
	"chemviz/internal/router"
	"chemviz/internal/session"
	"chemviz/internal/types"
)

func newTestApp(t *testing.T) (*App, *apitest.Server) {
	t.Helper()
	srv := apitest.New(t)
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = srv.URL
	cfg.DataDir = t.TempDir()
	cfg.Session.Backend = config.BackendMemory
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, srv
}

func TestLoginScenarioLeavesEntryView(t *testing.T) {
	a, srv := newTestApp(t)
	srv.AddUser("testuser", "testpass123")
	srv.UseToken("testuser", "test-token")

	if a.Nav.Current() != router.Login {
		t.Fatalf("anonymous start should be on login, got %s", a.Nav.Current())
	}
	if _, err := a.Auth.Login(context.Background(), "testuser", "testpass123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	a.Nav.Navigate(router.Login)

	cred, ok := a.Sessions.Get()
	if !ok || cred.Token != "test-token" || cred.Username != "testuser" || cred.UserID != 1 {
		t.Fatalf("unexpected stored credential %+v", cred)
	}
	if a.Nav.Current() == router.Login {
		t.Fatalf("expected to leave the entry view")
	}
}

func TestLogoutClearsStagingAndRedirects(t *testing.T) {
	a, srv := newTestApp(t)
	srv.AddUser("alice", "pw")
	if _, err := a.Auth.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	a.Staging.Put(types.StagedDataset{Filename: "x.csv"})
	a.Nav.Navigate(router.Dashboard)

	if err := a.Auth.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if a.Staging.Has() {
		t.Fatalf("staging should be cleared on logout")
	}
	if a.Nav.Current() != router.Login {
		t.Fatalf("expected login view, got %s", a.Nav.Current())
	}
	if a.Guard().Resolve(router.Dashboard) != router.Login {
		t.Fatalf("dashboard must be unreachable after logout")
	}
}

func TestSessionSurvivesRestartWithFileStore(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("alice", "pw")
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = srv.URL
	cfg.DataDir = t.TempDir()

	first, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := first.Auth.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !second.Auth.IsAuthenticated() || second.Auth.Username() != "alice" {
		t.Fatalf("expected session restored from %s", cfg.SessionPath())
	}
	if second.Nav.Current() != router.Landing {
		t.Fatalf("restored session should start on the landing view, got %s", second.Nav.Current())
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.LoadSettings(); err != nil {
		t.Fatalf("load missing settings: %v", err)
	}
	want := Settings{LastFile: "/tmp/e.csv", ReportDir: "/tmp/out"}
	if err := a.SaveSettings(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(a.Config.DataDir, "settings.json")); err != nil {
		t.Fatalf("settings file missing: %v", err)
	}
	b, _ := newTestApp(t)
	b.Config.DataDir = a.Config.DataDir
	if err := b.LoadSettings(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.Settings() != want {
		t.Fatalf("expected %+v, got %+v", want, b.Settings())
	}
}

func TestCloseWritesMetricsFile(t *testing.T) {
	a, _ := newTestApp(t)
	a.Config.Metrics.File = filepath.Join(t.TempDir(), "chemviz.prom")
	a.Sessions = session.NewMemoryStore()
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(a.Config.Metrics.File)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected metrics output")
	}
}
