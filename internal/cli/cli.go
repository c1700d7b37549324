package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"chemviz/internal/app"
	"chemviz/internal/charts"
	"chemviz/internal/flows"
	"chemviz/internal/router"
	"chemviz/internal/transport"
	"chemviz/internal/types"
)

const (
	notLoggedInMessage    = "not logged in: run `chemviz login`"
	sessionExpiredMessage = "session expired: run `chemviz login`"
)

func Run() int {
	return Main(os.Args[1:], osEnv())
}

// Main dispatches args (without the program name) and returns the exit code.
func Main(args []string, env Env) int {
	if len(args) == 0 {
		return env.runTUI(nil)
	}

	cmd := args[0]
	if strings.HasPrefix(cmd, "-") {
		return env.runTUI(args)
	}
	rest := args[1:]
	switch cmd {
	case "tui":
		return env.runTUI(rest)
	case "login":
		return env.runLogin(rest)
	case "logout":
		return env.runLogout(rest)
	case "whoami":
		return env.runWhoami(rest)
	case "upload":
		return env.runUpload(rest)
	case "history":
		return env.runHistory(rest)
	case "open":
		return env.runOpen(rest)
	case "summary":
		return env.runSummary(rest)
	case "report":
		return env.runReport(rest)
	case "chart":
		return env.runChart(rest)
	case "help", "-h", "--help":
		env.usage()
		return 0
	default:
		env.usage()
		return 1
	}
}

func (e Env) usage() {
	fmt.Fprintln(e.Stderr, "chemviz <command> [options]")
	fmt.Fprintln(e.Stderr, "Commands: tui, login, logout, whoami, upload, history, open, summary, report, chart")
}

// command is the state shared by one invocation: parsed flags, the wired
// client and a cancellable context.
type command struct {
	env    Env
	flags  *flag.FlagSet
	common *common
	app    *app.App
	ctx    context.Context
	cancel context.CancelFunc
}

func (e Env) newCommand(name string) *command {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.Stderr)
	return &command{env: e, flags: fs, common: addCommon(fs)}
}

// open parses args and builds the client. The caller must call close.
func (c *command) open(args []string) bool {
	if err := c.flags.Parse(args); err != nil {
		return false
	}
	c.ctx, c.cancel = contextWithSignals()
	a, err := c.env.openApp(c.ctx, c.common)
	if err != nil {
		c.env.errorf("%v", err)
		c.cancel()
		return false
	}
	c.app = a
	return true
}

func (c *command) close() {
	if c.app != nil {
		if err := c.app.Close(); err != nil {
			c.app.Logger.Warnf("close: %v", err)
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// requireLogin applies the route guard to a protected view.
func (c *command) requireLogin(v router.View) bool {
	if c.app.Guard().Resolve(v) == router.Login {
		c.env.errorf(notLoggedInMessage)
		return false
	}
	return true
}

// fail reports err and returns the exit code for it.
func (c *command) fail(err error, fallback string) int {
	if transport.IsUnauthorized(err) {
		c.env.errorf(sessionExpiredMessage)
		return 1
	}
	c.env.errorf("%s", transport.UserMessage(err, fallback))
	c.app.Logger.Debugf("%v", err)
	return 1
}

func (c *command) datasetID() (int, bool) {
	if c.flags.NArg() < 1 {
		c.env.errorf("usage: chemviz %s <id>", c.flags.Name())
		return 0, false
	}
	id, err := strconv.Atoi(c.flags.Arg(0))
	if err != nil || id <= 0 {
		c.env.errorf("invalid dataset id %q", c.flags.Arg(0))
		return 0, false
	}
	return id, true
}

func (e Env) runLogin(args []string) int {
	c := e.newCommand("login")
	username := c.flags.String("u", "", "username")
	password := c.flags.String("p", "", "password (default $CHEMVIZ_PASSWORD)")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	pw := *password
	if pw == "" {
		pw = e.lookup("CHEMVIZ_PASSWORD")
	}
	cred, err := c.app.Auth.Login(c.ctx, *username, pw)
	if err != nil {
		e.errorf("%s", transport.UserMessage(err, err.Error()))
		return 1
	}
	if c.common.json() {
		e.printJSON(map[string]any{"username": cred.Username, "user_id": cred.UserID})
		return 0
	}
	fmt.Fprintf(e.Stdout, "Logged in as %s\n", cred.Username)
	return 0
}

func (e Env) runLogout(args []string) int {
	c := e.newCommand("logout")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if err := c.app.Auth.Logout(); err != nil {
		e.errorf("logout: %v", err)
		return 1
	}
	if !c.common.json() {
		fmt.Fprintln(e.Stdout, "Logged out")
	}
	return 0
}

func (e Env) runWhoami(args []string) int {
	c := e.newCommand("whoami")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if !c.requireLogin(router.Landing) {
		return 1
	}
	cred, _ := c.app.Auth.Credential()
	if c.common.json() {
		e.printJSON(map[string]any{"username": cred.Username, "user_id": cred.UserID, "api": c.app.Config.API.BaseURL})
		return 0
	}
	fmt.Fprintf(e.Stdout, "%s @ %s\n", cred.Username, c.app.Config.API.BaseURL)
	return 0
}

func (e Env) runUpload(args []string) int {
	c := e.newCommand("upload")
	withCharts := c.flags.Bool("chart", false, "also render charts")
	outDir := c.flags.String("o", ".", "chart output directory")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if !c.requireLogin(router.Upload) {
		return 1
	}
	if c.flags.NArg() < 1 {
		e.errorf("usage: chemviz upload <file.csv>")
		return 1
	}
	f, err := flows.SelectFile(c.flags.Arg(0))
	if err != nil {
		e.errorf("%s", transport.UserMessage(err, err.Error()))
		return 1
	}
	if err := c.app.Upload.Validate(f); err != nil {
		e.errorf("%s", transport.UserMessage(err, err.Error()))
		return 1
	}
	ds, err := c.app.Upload.Run(c.ctx, f)
	if err != nil {
		return c.fail(err, flows.UploadFailedMessage)
	}
	s := c.app.Settings()
	s.LastFile = f.Path
	if err := c.app.SaveSettings(s); err != nil {
		c.app.Logger.Warnf("save settings: %v", err)
	}
	return c.showDataset(ds, *withCharts, *outDir)
}

func (e Env) runHistory(args []string) int {
	c := e.newCommand("history")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if !c.requireLogin(router.History) {
		return 1
	}
	records, err := c.app.History.Fetch(c.ctx)
	if err != nil {
		return c.fail(err, flows.HistoryFailedMessage)
	}
	if c.common.json() {
		e.printJSON(records)
		return 0
	}
	e.printHistory(records)
	return 0
}

func (e Env) runOpen(args []string) int {
	c := e.newCommand("open")
	withCharts := c.flags.Bool("chart", false, "also render charts")
	outDir := c.flags.String("o", ".", "chart output directory")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if !c.requireLogin(router.History) {
		return 1
	}
	id, ok := c.datasetID()
	if !ok {
		return 1
	}
	ds, err := c.app.History.Open(c.ctx, id)
	if err != nil {
		return c.fail(err, flows.SummaryFailedMessage)
	}
	return c.showDataset(ds, *withCharts, *outDir)
}

func (e Env) runSummary(args []string) int {
	c := e.newCommand("summary")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if !c.requireLogin(router.History) {
		return 1
	}
	id, ok := c.datasetID()
	if !ok {
		return 1
	}
	resp, err := c.app.API.Summary(c.ctx, id)
	if err != nil {
		return c.fail(err, flows.SummaryFailedMessage)
	}
	if c.common.json() {
		e.printJSON(resp)
		return 0
	}
	fmt.Fprintf(e.Stdout, "%s (#%d, %s)\n", resp.Filename, resp.ID, resp.Timestamp.Display())
	e.printCards(*resp.Summary)
	e.printDistribution(*resp.Summary)
	return 0
}

func (e Env) runReport(args []string) int {
	c := e.newCommand("report")
	outDir := c.flags.String("o", "", "output directory (default: last used, else .)")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if !c.requireLogin(router.Dashboard) {
		return 1
	}
	id, ok := c.datasetID()
	if !ok {
		return 1
	}
	// The report is named after the dataset, so resolve its filename first.
	resp, err := c.app.API.Summary(c.ctx, id)
	if err != nil {
		return c.fail(err, flows.SummaryFailedMessage)
	}
	dir := *outDir
	if dir == "" {
		dir = c.app.Settings().ReportDir
	}
	path, err := c.app.Report.Download(c.ctx, id, resp.Filename, dir)
	if err != nil {
		return c.fail(err, flows.ReportFailedMessage)
	}
	if *outDir != "" {
		s := c.app.Settings()
		s.ReportDir = *outDir
		if err := c.app.SaveSettings(s); err != nil {
			c.app.Logger.Warnf("save settings: %v", err)
		}
	}
	if c.common.json() {
		e.printJSON(map[string]any{"dataset_id": id, "path": path})
		return 0
	}
	fmt.Fprintf(e.Stdout, "Saved %s\n", path)
	return 0
}

func (e Env) runChart(args []string) int {
	c := e.newCommand("chart")
	outDir := c.flags.String("o", ".", "output directory")
	if !c.open(args) {
		return 1
	}
	defer c.close()

	if !c.requireLogin(router.History) {
		return 1
	}
	id, ok := c.datasetID()
	if !ok {
		return 1
	}
	if _, err := c.app.History.Open(c.ctx, id); err != nil {
		return c.fail(err, flows.SummaryFailedMessage)
	}
	ds, err := c.app.Dashboard.Load()
	if err != nil {
		e.errorf("%v", err)
		return 1
	}
	return c.writeCharts(ds, *outDir)
}

// showDataset renders the dashboard for the staged dataset ds.
func (c *command) showDataset(ds types.StagedDataset, withCharts bool, outDir string) int {
	if c.app.Nav.Current() != router.Dashboard {
		c.env.errorf("dashboard unavailable")
		return 1
	}
	if c.common.json() {
		c.env.printJSON(ds)
	} else {
		c.env.printDataset(ds)
	}
	if withCharts {
		return c.writeCharts(ds, outDir)
	}
	return 0
}

func (c *command) writeCharts(ds types.StagedDataset, dir string) int {
	paths, err := charts.Render(ds.Summary, dir)
	if err != nil {
		c.env.errorf("render charts: %v", err)
		return 1
	}
	if c.common.json() {
		c.env.printJSON(map[string]any{"dataset_id": ds.DatasetID, "charts": paths})
		return 0
	}
	for _, p := range paths {
		fmt.Fprintf(c.env.Stdout, "Saved %s\n", p)
	}
	return 0
}

func contextWithSignals() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
