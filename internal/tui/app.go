// Package tui is the interactive client. Every frame is drawn for the view
// the route guard allows at that moment, never for a stale one.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"chemviz/internal/app"
	"chemviz/internal/charts"
	"chemviz/internal/flows"
	"chemviz/internal/router"
	"chemviz/internal/session"
	"chemviz/internal/staging"
	"chemviz/internal/transport"
	"chemviz/internal/types"
)

const sessionEndedMessage = "Your session has ended. Please log in again."

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cardValue    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
	focusedField = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

const (
	fieldUsername = iota
	fieldPassword
	fieldCount
)

type model struct {
	app    *app.App
	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int
	view   router.View

	keys     keyMap
	help     help.Model
	showHelp bool
	spinner  spinner.Model
	busy     bool
	errMsg   string
	notice   string

	usernameInput textinput.Model
	passwordInput textinput.Model
	loginFocus    int

	pathInput textinput.Model

	historyList list.Model
	records     []types.HistoryRecord
	detail      viewport.Model

	dataset types.StagedDataset
	table   table.Model

	showLogs    bool
	logs        []logEntry
	logViewport viewport.Model
}

type loginResultMsg struct{ cred session.Credential }

type uploadResultMsg struct {
	dataset types.StagedDataset
	path    string
}

type historyMsg struct{ records []types.HistoryRecord }

type reportMsg struct{ path string }

type chartsMsg struct{ paths []string }

type errMsg struct {
	err    error
	source string
}

// Run starts the program and blocks until the user quits.
func Run(a *app.App) error {
	if err := a.LoadSettings(); err != nil {
		a.Logger.Warnf("failed to load settings: %v", err)
	}
	m := newModel(a)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.cancel()
	return err
}

func newModel(a *app.App) model {
	ctx, cancel := context.WithCancel(context.Background())

	usernameInput := textinput.New()
	usernameInput.Placeholder = "username"
	usernameInput.Prompt = "Username: "
	usernameInput.Width = 32
	usernameInput.Focus()

	passwordInput := textinput.New()
	passwordInput.Placeholder = "password"
	passwordInput.Prompt = "Password: "
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.EchoCharacter = '•'
	passwordInput.Width = 32

	pathInput := textinput.New()
	pathInput.Placeholder = "path/to/equipment.csv"
	pathInput.Prompt = "CSV file: "
	pathInput.Width = 60
	pathInput.SetValue(a.Settings().LastFile)

	spin := spinner.New()
	spin.Spinner = spinner.Line
	spin.Style = dimStyle

	m := model{
		app:           a,
		ctx:           ctx,
		cancel:        cancel,
		view:          -1,
		keys:          defaultKeyMap,
		help:          help.New(),
		spinner:       spin,
		usernameInput: usernameInput,
		passwordInput: passwordInput,
		pathInput:     pathInput,
		historyList:   newListModel(),
		detail:        viewport.New(0, 0),
		table:         newTable(),
		logs:          []logEntry{},
		logViewport:   viewport.New(0, 6),
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return syncMsg{} })
}

// syncMsg asks Update to reconcile the model with the navigator.
type syncMsg struct{}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case syncMsg:
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case loginResultMsg:
		m.busy = false
		m.errMsg = ""
		m.notice = ""
		m.passwordInput.SetValue("")
		m.addLog("info", "signed in as "+msg.cred.Username)
		m.app.Nav.Navigate(router.Landing)
	case uploadResultMsg:
		m.busy = false
		m.errMsg = ""
		m.notice = fmt.Sprintf("Uploaded %s", msg.dataset.Filename)
		m.addLog("info", fmt.Sprintf("uploaded %s (%d rows)", msg.dataset.Filename, len(msg.dataset.Rows)))
		settings := m.app.Settings()
		settings.LastFile = msg.path
		if err := m.app.SaveSettings(settings); err != nil {
			m.addLog("warn", "save settings: "+err.Error())
		}
	case historyMsg:
		m.busy = false
		m.errMsg = ""
		m.records = msg.records
		m.historyList.SetItems(buildHistoryItems(m.records))
		m.updateHistoryDetail()
	case reportMsg:
		m.busy = false
		m.errMsg = ""
		m.notice = "Saved " + msg.path
		m.addLog("info", "saved report "+msg.path)
	case chartsMsg:
		m.busy = false
		m.errMsg = ""
		m.notice = "Saved " + strings.Join(msg.paths, ", ")
		m.addLog("info", "saved charts")
	case errMsg:
		m.busy = false
		m.handleError(msg)
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			cmds = append(cmds, cmd)
		} else {
			cmds = append(cmds, m.updateActiveInput(msg))
		}
	}
	cmds = append(cmds, m.syncView())
	return m, tea.Batch(cmds...)
}

func (m *model) handleError(msg errMsg) {
	m.notice = ""
	if transport.IsUnauthorized(msg.err) && msg.source != "login" {
		// The controller has already signed out and redirected.
		m.errMsg = ""
		m.notice = sessionEndedMessage
		m.addLog("warn", msg.source+": "+msg.err.Error())
		return
	}
	m.errMsg = userMessage(msg.err, msg.source)
	m.addLog("error", msg.source+": "+msg.err.Error())
}

func userMessage(err error, source string) string {
	fallback := err.Error()
	switch source {
	case "upload":
		fallback = flows.UploadFailedMessage
	case "history":
		fallback = flows.HistoryFailedMessage
	case "report":
		fallback = flows.ReportFailedMessage
	case "charts":
		fallback = "Failed to save charts."
	}
	return transport.UserMessage(err, fallback)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return tea.Quit, true
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return nil, true
	case key.Matches(msg, m.keys.Logs):
		m.showLogs = !m.showLogs
		return nil, true
	case key.Matches(msg, m.keys.Dismiss):
		m.errMsg = ""
		m.notice = ""
		m.showHelp = false
		return nil, true
	}
	if m.busy {
		return nil, true
	}

	current := m.currentView()
	if current != router.Login {
		switch {
		case key.Matches(msg, m.keys.Upload):
			m.app.Nav.Navigate(router.Upload)
			return nil, true
		case key.Matches(msg, m.keys.History):
			m.app.Nav.Navigate(router.History)
			return nil, true
		case key.Matches(msg, m.keys.Dashboard):
			if m.app.Nav.Navigate(router.Dashboard) != router.Dashboard {
				m.errMsg = "Upload a file or pick one from history first."
			}
			return nil, true
		case key.Matches(msg, m.keys.Logout):
			if err := m.app.Auth.Logout(); err != nil {
				m.errMsg = err.Error()
				return nil, true
			}
			m.errMsg = ""
			m.notice = "Logged out."
			m.addLog("info", "logged out")
			return nil, true
		}
	}

	switch current {
	case router.Login:
		return m.handleLoginKey(msg)
	case router.Upload:
		if key.Matches(msg, m.keys.Submit) {
			return m.startUpload(), true
		}
	case router.History:
		switch {
		case key.Matches(msg, m.keys.Refresh):
			return m.startHistory(), true
		case key.Matches(msg, m.keys.Submit):
			item, ok := m.historyList.SelectedItem().(historyItem)
			if !ok {
				return nil, true
			}
			m.app.History.Select(item.data)
			m.errMsg = ""
			m.notice = ""
			return nil, true
		}
	case router.Dashboard:
		switch {
		case key.Matches(msg, m.keys.Report):
			return m.startReport(), true
		case key.Matches(msg, m.keys.Charts):
			return m.startCharts(), true
		}
	}
	return nil, false
}

func (m *model) handleLoginKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.NextField):
		m.setLoginFocus((m.loginFocus + 1) % fieldCount)
		return nil, true
	case key.Matches(msg, m.keys.PrevField):
		m.setLoginFocus((m.loginFocus + fieldCount - 1) % fieldCount)
		return nil, true
	case key.Matches(msg, m.keys.Submit):
		if m.loginFocus == fieldUsername && m.passwordInput.Value() == "" {
			m.setLoginFocus(fieldPassword)
			return nil, true
		}
		return m.startLogin(), true
	}
	return nil, false
}

func (m *model) setLoginFocus(field int) {
	m.loginFocus = field
	if field == fieldUsername {
		m.usernameInput.Focus()
		m.passwordInput.Blur()
		return
	}
	m.usernameInput.Blur()
	m.passwordInput.Focus()
}

func (m *model) updateActiveInput(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	switch m.currentView() {
	case router.Login:
		if m.loginFocus == fieldUsername {
			m.usernameInput, cmd = m.usernameInput.Update(msg)
		} else {
			m.passwordInput, cmd = m.passwordInput.Update(msg)
		}
	case router.Upload:
		m.pathInput, cmd = m.pathInput.Update(msg)
	case router.History:
		m.historyList, cmd = m.historyList.Update(msg)
		m.updateHistoryDetail()
	case router.Dashboard:
		if m.dataset.HasRowDetail() {
			m.table, cmd = m.table.Update(msg)
		}
	}
	return cmd
}

func (m *model) startLogin() tea.Cmd {
	m.errMsg = ""
	m.busy = true
	return loginCmd(m.ctx, m.app, m.usernameInput.Value(), m.passwordInput.Value())
}

func (m *model) startUpload() tea.Cmd {
	m.errMsg = ""
	m.notice = ""
	path := strings.TrimSpace(m.pathInput.Value())
	f, err := flows.SelectFile(path)
	if err != nil {
		m.errMsg = "Could not read the selected file."
		m.addLog("error", err.Error())
		return nil
	}
	// Local checks run here so a bad file never reaches a command.
	if err := m.app.Upload.Validate(f); err != nil {
		m.errMsg = transport.UserMessage(err, err.Error())
		return nil
	}
	m.busy = true
	return uploadCmd(m.ctx, m.app, f)
}

func (m *model) startHistory() tea.Cmd {
	m.busy = true
	return fetchHistoryCmd(m.ctx, m.app)
}

func (m *model) startReport() tea.Cmd {
	m.busy = true
	dir := m.app.Settings().ReportDir
	return reportCmd(m.ctx, m.app, m.dataset.DatasetID, m.dataset.Filename, dir)
}

func (m *model) startCharts() tea.Cmd {
	m.busy = true
	dir := m.app.Settings().ReportDir
	return chartsCmd(m.dataset.Summary, dir)
}

// currentView is the view the guard allows right now.
func (m model) currentView() router.View {
	return m.app.Guard().Resolve(m.app.Nav.Current())
}

// syncView enters the navigator's view if it changed since the last
// update, loading whatever that view needs.
func (m *model) syncView() tea.Cmd {
	v := m.currentView()
	if v != m.app.Nav.Current() {
		m.app.Nav.Redirect(v)
	}
	if v == m.view {
		return nil
	}
	m.view = v
	m.showHelp = false
	switch v {
	case router.Login:
		m.busy = false
		m.records = nil
		m.historyList.SetItems(nil)
		m.dataset = types.StagedDataset{}
		m.passwordInput.SetValue("")
		m.setLoginFocus(fieldUsername)
	case router.Upload:
		m.pathInput.Focus()
	case router.History:
		m.pathInput.Blur()
		m.records = nil
		m.historyList.SetItems(nil)
		m.detail.SetContent("")
		return m.startHistory()
	case router.Dashboard:
		m.pathInput.Blur()
		d, err := m.app.Dashboard.Load()
		if errors.Is(err, staging.ErrEmpty) {
			m.app.Nav.Redirect(router.Upload)
			return m.syncView()
		}
		m.dataset = d
		m.table.SetRows(tableRows(d))
		m.table.GotoTop()
		m.resize()
	}
	return nil
}

func (m *model) updateHistoryDetail() {
	item, ok := m.historyList.SelectedItem().(historyItem)
	if !ok {
		m.detail.SetContent(dimStyle.Render("No datasets yet."))
		return
	}
	m.detail.SetContent(renderHistoryDetail(item.data))
}

func (m model) View() string {
	// Resolve again here: a session that ended since the last update must
	// not get one more frame of protected content.
	v := m.currentView()
	header := headerStyle.Render("Chemical Equipment Parameter Visualizer")
	statusBar := m.renderStatusBar(v)
	lines := []string{header, statusBar, ""}
	if m.errMsg != "" {
		lines = append(lines, errStyle.Render(m.errMsg))
	}
	if m.notice != "" {
		lines = append(lines, noticeStyle.Render(m.notice))
	}

	body := ""
	switch v {
	case router.Login:
		body = m.viewLogin()
	case router.Upload:
		body = m.viewUpload()
	case router.History:
		body = m.viewHistory()
	case router.Dashboard:
		if m.view != router.Dashboard {
			body = dimStyle.Render("Loading...")
		} else {
			body = m.viewDashboard()
		}
	}
	if m.showHelp {
		body = strings.Join([]string{body, "", m.help.FullHelpView(m.keys.FullHelp())}, "\n")
	}
	if m.showLogs {
		body = strings.Join([]string{body, "", m.renderLogPanel(m.logViewport.Height)}, "\n")
	}
	footer := footerStyle.Render(m.help.ShortHelpView(m.shortHelp(v)))
	lines = append(lines, "", body, "", footer)
	return renderCentered(strings.Join(lines, "\n"), m.width, m.height)
}

func (m model) shortHelp(v router.View) []key.Binding {
	switch v {
	case router.Login:
		return []key.Binding{m.keys.NextField, m.keys.Submit, m.keys.Help, m.keys.Quit}
	case router.Upload:
		return []key.Binding{m.keys.Submit, m.keys.History, m.keys.Dashboard, m.keys.Logout, m.keys.Quit}
	case router.History:
		return []key.Binding{m.keys.Submit, m.keys.Refresh, m.keys.Upload, m.keys.Logout, m.keys.Quit}
	default:
		return []key.Binding{m.keys.Report, m.keys.Charts, m.keys.Upload, m.keys.History, m.keys.Logout, m.keys.Quit}
	}
}

func (m model) renderStatusBar(v router.View) string {
	parts := []string{}
	if m.busy {
		parts = append(parts, m.spinner.View())
	}
	parts = append(parts, "View: "+viewName(v))
	if user := m.app.Auth.Username(); user != "" {
		parts = append(parts, "user "+user)
	}
	parts = append(parts, m.app.Client.BaseURL())
	line := strings.Join(parts, "  ")
	width, _ := contentSize(m.width, m.height)
	if width > 0 {
		return dimStyle.Width(width).Render(ansi.Truncate(line, width, "…"))
	}
	return dimStyle.Render(line)
}

func viewName(v router.View) string {
	switch v {
	case router.Login:
		return "Login"
	case router.Upload:
		return "Upload"
	case router.History:
		return "History"
	case router.Dashboard:
		return "Dashboard"
	default:
		return "Unknown"
	}
}

type logEntry struct {
	Time    time.Time
	Level   string
	Message string
}

func (m *model) addLog(level, message string) {
	entry := logEntry{Time: time.Now().UTC(), Level: level, Message: message}
	m.logs = append(m.logs, entry)
	if len(m.logs) > 200 {
		m.logs = m.logs[len(m.logs)-200:]
	}
	lines := make([]string, 0, len(m.logs))
	for _, e := range m.logs {
		lines = append(lines, fmt.Sprintf("%s %-5s  %s", e.Time.Format("15:04:05"), strings.ToUpper(e.Level), e.Message))
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	m.logViewport.GotoBottom()
}

func (m model) renderLogPanel(maxLines int) string {
	if len(m.logs) == 0 {
		return logStyle.Render("No logs yet.")
	}
	if maxLines <= 0 {
		maxLines = 6
	}
	width, _ := contentSize(m.width, m.height)
	if width < 30 {
		width = 30
	}
	m.logViewport.Height = maxLines
	m.logViewport.Width = width
	header := dimStyle.Render("Logs")
	return logStyle.Render(strings.Join([]string{header, m.logViewport.View()}, "\n"))
}

func (m *model) resize() {
	width, height := m.bodySize()
	if width <= 0 {
		return
	}
	listWidth := width * 2 / 5
	m.historyList.SetSize(listWidth, height)
	m.detail.Width = width - listWidth - 2
	m.detail.Height = height
	m.table.SetWidth(width)
	tableHeight := height - 12
	if tableHeight < 3 {
		tableHeight = 3
	}
	m.table.SetHeight(tableHeight)
}

func contentSize(width, height int) (int, int) {
	panelWidth, panelHeight := panelSize(width, height)
	// border (2) and horizontal padding (4)
	return panelWidth - 6, panelHeight - 4
}

func (m model) bodySize() (int, int) {
	width, height := contentSize(m.width, m.height)
	// header, status bar, spacing, footer
	return width, height - 8
}

func panelSize(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return width - 2, height - 2
}

func renderCentered(content string, width, height int) string {
	if width <= 0 || height <= 0 {
		return content
	}
	panelWidth, panelHeight := panelSize(width, height)
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 2).
		Width(panelWidth).
		Height(panelHeight).
		Render(content)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, panel)
}

func newListModel() list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return l
}

func newTable() table.Model {
	cols := make([]table.Column, 0, len(flows.TableColumns))
	for i, title := range flows.TableColumns {
		w := 12
		if i == 0 {
			w = 20
		}
		cols = append(cols, table.Column{Title: title, Width: w})
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(8))
	return t
}

func tableRows(d types.StagedDataset) []table.Row {
	src := flows.TableRows(d)
	rows := make([]table.Row, 0, len(src))
	for _, r := range src {
		rows = append(rows, table.Row(r))
	}
	return rows
}

func loginCmd(ctx context.Context, a *app.App, username, password string) tea.Cmd {
	return func() tea.Msg {
		cred, err := a.Auth.Login(ctx, username, password)
		if err != nil {
			return errMsg{err: err, source: "login"}
		}
		return loginResultMsg{cred: cred}
	}
}

func uploadCmd(ctx context.Context, a *app.App, f flows.SelectedFile) tea.Cmd {
	return func() tea.Msg {
		d, err := a.Upload.Run(ctx, f)
		if err != nil {
			return errMsg{err: err, source: "upload"}
		}
		return uploadResultMsg{dataset: d, path: f.Path}
	}
}

func fetchHistoryCmd(ctx context.Context, a *app.App) tea.Cmd {
	return func() tea.Msg {
		records, err := a.History.Fetch(ctx)
		if err != nil {
			return errMsg{err: err, source: "history"}
		}
		return historyMsg{records: records}
	}
}

func reportCmd(ctx context.Context, a *app.App, id int, filename, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := a.Report.Download(ctx, id, filename, dir)
		if err != nil {
			return errMsg{err: err, source: "report"}
		}
		return reportMsg{path: path}
	}
}

func chartsCmd(s types.Summary, dir string) tea.Cmd {
	if dir == "" {
		dir = "."
	}
	return func() tea.Msg {
		paths, err := charts.Render(s, dir)
		if err != nil {
			return errMsg{err: err, source: "charts"}
		}
		return chartsMsg{paths: paths}
	}
}
