package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/sethvargo/go-envconfig"

	"chemviz/internal/apitest"
	"chemviz/internal/charts"
	"chemviz/internal/flows"
	"chemviz/internal/types"
)

type harness struct {
	t       *testing.T
	srv     *apitest.Server
	dataDir string
	vars    map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("alice", "pw")
	dir := t.TempDir()
	return &harness{
		t:       t,
		srv:     srv,
		dataDir: dir,
		vars: map[string]string{
			"CHEMVIZ_API_URL":         srv.URL,
			"CHEMVIZ_DATA_DIR":        dir,
			"CHEMVIZ_SESSION_BACKEND": "file",
			"CHEMVIZ_LOG_LEVEL":       "error",
		},
	}
}

func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	env := Env{Stdout: &stdout, Stderr: &stderr, Lookuper: envconfig.MapLookuper(h.vars)}
	code := Main(args, env)
	return code, stdout.String(), stderr.String()
}

func (h *harness) login() {
	h.t.Helper()
	if code, _, stderr := h.run("login", "-u", "alice", "-p", "pw"); code != 0 {
		h.t.Fatalf("login exit %d: %s", code, stderr)
	}
}

func TestProtectedCommandsRequireLogin(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{
		{"whoami"},
		{"history"},
		{"upload", "x.csv"},
		{"open", "1"},
		{"summary", "1"},
		{"report", "1"},
		{"chart", "1"},
	} {
		code, _, stderr := h.run(args...)
		if code != 1 {
			t.Fatalf("%v: expected exit 1, got %d", args, code)
		}
		if !strings.Contains(stderr, notLoggedInMessage) {
			t.Fatalf("%v: expected login hint, got %q", args, stderr)
		}
	}
	if n := len(h.srv.Requests()); n != 0 {
		t.Fatalf("expected no backend traffic while anonymous, got %d requests", n)
	}
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	h := newHarness(t)
	code, stdout, stderr := h.run("login", "-u", "alice", "-p", "pw")
	if code != 0 {
		t.Fatalf("login exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Logged in as alice") {
		t.Fatalf("unexpected login output %q", stdout)
	}

	code, stdout, _ = h.run("whoami")
	if code != 0 || !strings.Contains(stdout, "alice") {
		t.Fatalf("whoami exit %d output %q", code, stdout)
	}
	if _, err := os.Stat(filepath.Join(h.dataDir, "session.json")); err != nil {
		t.Fatalf("expected session file: %v", err)
	}
}

func TestLoginReadsPasswordFromEnvironment(t *testing.T) {
	h := newHarness(t)
	h.vars["CHEMVIZ_PASSWORD"] = "pw"
	if code, _, stderr := h.run("login", "-u", "alice"); code != 0 {
		t.Fatalf("login exit %d: %s", code, stderr)
	}
}

func TestLoginFailureShowsBackendMessage(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("login", "-u", "alice", "-p", "wrong")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "Invalid credentials") {
		t.Fatalf("expected backend message, got %q", stderr)
	}
	if code, _, _ := h.run("whoami"); code != 1 {
		t.Fatalf("failed login must not create a session")
	}
}

func TestLoginWithoutUsernameMakesNoRequest(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("login", "-p", "pw")
	if code != 1 || !strings.Contains(stderr, "Please enter both username and password") {
		t.Fatalf("exit %d stderr %q", code, stderr)
	}
	if n := h.srv.RequestCount("/auth/login/"); n != 0 {
		t.Fatalf("expected no login request, got %d", n)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login()
	if code, stdout, _ := h.run("logout"); code != 0 || !strings.Contains(stdout, "Logged out") {
		t.Fatalf("logout exit %d output %q", code, stdout)
	}
	if code, _, stderr := h.run("history"); code != 1 || !strings.Contains(stderr, notLoggedInMessage) {
		t.Fatalf("expected history to require login after logout, exit %d stderr %q", code, stderr)
	}
	// Logging out twice is fine.
	if code, _, _ := h.run("logout"); code != 0 {
		t.Fatalf("second logout exit %d", code)
	}
}

func TestUploadPrintsDashboardWithRows(t *testing.T) {
	h := newHarness(t)
	h.login()
	path := apitest.WriteFile(t, "equipment.csv", apitest.SampleCSV)

	code, stdout, stderr := h.run("upload", path)
	if code != 0 {
		t.Fatalf("upload exit %d: %s", code, stderr)
	}
	for _, want := range []string{"equipment.csv", "Total Equipment", "Pump-1", "HX-1"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
	if n := h.srv.RequestCount("/upload/"); n != 1 {
		t.Fatalf("expected one upload request, got %d", n)
	}
}

func TestUploadRejectsNonCSVLocally(t *testing.T) {
	h := newHarness(t)
	h.login()
	path := apitest.WriteFile(t, "data.txt", apitest.SampleCSV)

	code, _, stderr := h.run("upload", path)
	if code != 1 || !strings.Contains(stderr, "Please select a CSV file") {
		t.Fatalf("exit %d stderr %q", code, stderr)
	}
	if n := h.srv.RequestCount("/upload/"); n != 0 {
		t.Fatalf("expected no upload request, got %d", n)
	}
}

func TestUploadWithChartsWritesImages(t *testing.T) {
	h := newHarness(t)
	h.login()
	path := apitest.WriteFile(t, "equipment.csv", apitest.SampleCSV)
	out := t.TempDir()

	if code, _, stderr := h.run("upload", "--chart", "-o", out, path); code != 0 {
		t.Fatalf("upload exit %d: %s", code, stderr)
	}
	for _, name := range []string{charts.DistributionFile, charts.AveragesFile} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
}

func TestHistoryJSON(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.srv.AddDataset("alice", apitest.Dataset{Filename: "a.csv", Summary: apitest.SampleSummary()})
	h.srv.AddDataset("alice", apitest.Dataset{Filename: "b.csv", Summary: apitest.SampleSummary()})

	code, stdout, stderr := h.run("history", "--format", "json")
	if code != 0 {
		t.Fatalf("history exit %d: %s", code, stderr)
	}
	var records []types.HistoryRecord
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if len(records) != 2 || records[0].Filename != "b.csv" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestOpenFromHistoryHasNoRows(t *testing.T) {
	h := newHarness(t)
	h.login()
	d := h.srv.AddDataset("alice", apitest.Dataset{Filename: "plant.csv", Summary: apitest.SampleSummary()})

	code, stdout, stderr := h.run("open", strconv.Itoa(d.ID))
	if code != 0 {
		t.Fatalf("open exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "plant.csv") || !strings.Contains(stdout, flows.NoRowsMessage) {
		t.Fatalf("unexpected output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "110.25") {
		t.Fatalf("expected formatted average in output:\n%s", stdout)
	}
}

func TestOpenMissingDataset(t *testing.T) {
	h := newHarness(t)
	h.login()
	code, _, stderr := h.run("open", "999")
	if code != 1 || !strings.Contains(stderr, "Dataset not found") {
		t.Fatalf("exit %d stderr %q", code, stderr)
	}
}

func TestOpenRejectsBadID(t *testing.T) {
	h := newHarness(t)
	h.login()
	if code, _, stderr := h.run("open", "abc"); code != 1 || !strings.Contains(stderr, "invalid dataset id") {
		t.Fatalf("exit %d stderr %q", code, stderr)
	}
}

func TestReportSavesPDF(t *testing.T) {
	h := newHarness(t)
	h.login()
	d := h.srv.AddDataset("alice", apitest.Dataset{Filename: "plant.csv", Summary: apitest.SampleSummary()})
	out := t.TempDir()

	code, stdout, stderr := h.run("report", "-o", out, strconv.Itoa(d.ID))
	if code != 0 {
		t.Fatalf("report exit %d: %s", code, stderr)
	}
	want := filepath.Join(out, "report_plant.csv.pdf")
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("report is not a pdf: %q", data[:min(len(data), 16)])
	}
	if !strings.Contains(stdout, want) {
		t.Fatalf("expected saved path in output %q", stdout)
	}
}

func TestChartWritesImages(t *testing.T) {
	h := newHarness(t)
	h.login()
	d := h.srv.AddDataset("alice", apitest.Dataset{Filename: "plant.csv", Summary: apitest.SampleSummary()})
	out := t.TempDir()

	if code, _, stderr := h.run("chart", "-o", out, strconv.Itoa(d.ID)); code != 0 {
		t.Fatalf("chart exit %d: %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(out, charts.DistributionFile)); err != nil {
		t.Fatalf("expected distribution chart: %v", err)
	}
}

func TestRevokedTokenEndsSession(t *testing.T) {
	h := newHarness(t)
	h.srv.UseToken("alice", "cli-token")
	h.login()
	h.srv.Revoke("cli-token")

	code, _, stderr := h.run("history")
	if code != 1 || !strings.Contains(stderr, sessionExpiredMessage) {
		t.Fatalf("exit %d stderr %q", code, stderr)
	}
	code, _, stderr = h.run("whoami")
	if code != 1 || !strings.Contains(stderr, notLoggedInMessage) {
		t.Fatalf("expected session to be gone, exit %d stderr %q", code, stderr)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	if code, _, stderr := h.run("frobnicate"); code != 1 || !strings.Contains(stderr, "Commands:") {
		t.Fatalf("exit %d stderr %q", code, stderr)
	}
}

func TestMetricsFileWrittenOnExit(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(t.TempDir(), "chemviz.prom")
	if code, _, stderr := h.run("login", "--metrics-file", out, "-u", "alice", "-p", "pw"); code != 0 {
		t.Fatalf("login exit %d: %s", code, stderr)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "chemviz_requests_total") {
		t.Fatalf("expected request counter in metrics file:\n%s", data)
	}
}
