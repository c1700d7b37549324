package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chemviz/internal/flows"
	"chemviz/internal/types"
)

func (m model) viewLogin() string {
	username := m.usernameInput.View()
	password := m.passwordInput.View()
	if m.loginFocus == fieldUsername {
		username = focusedField.Render("> ") + username
		password = "  " + password
	} else {
		username = "  " + username
		password = focusedField.Render("> ") + password
	}
	lines := []string{
		headerStyle.Render("Login"),
		"",
		username,
		password,
		"",
		dimStyle.Render("Press enter to sign in."),
	}
	return strings.Join(lines, "\n")
}

func (m model) viewUpload() string {
	maxMB := m.app.Config.Upload.MaxBytes / (1024 * 1024)
	lines := []string{
		headerStyle.Render("Upload CSV"),
		"",
		m.pathInput.View(),
		"",
		dimStyle.Render(fmt.Sprintf("Columns: %s", strings.Join(flows.TableColumns, ", "))),
		dimStyle.Render(fmt.Sprintf("CSV files up to %dMB. Press enter to upload.", maxMB)),
	}
	return strings.Join(lines, "\n")
}

func (m model) viewHistory() string {
	if m.busy && len(m.records) == 0 {
		return dimStyle.Render("Loading history...")
	}
	if len(m.records) == 0 {
		return strings.Join([]string{
			headerStyle.Render("History"),
			"",
			dimStyle.Render("No datasets yet."),
		}, "\n")
	}
	width, _ := m.bodySize()
	title := headerStyle.Render(fmt.Sprintf("History (last %d uploads)", types.MaxHistory))
	if width < 80 {
		return strings.Join([]string{title, "", m.historyList.View(), "", m.detail.View()}, "\n")
	}
	return strings.Join([]string{
		title,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, m.historyList.View(), "  ", m.detail.View()),
	}, "\n")
}

func (m model) viewDashboard() string {
	d := m.dataset
	width, _ := m.bodySize()
	info := []string{
		headerStyle.Render(d.Filename),
		dimStyle.Render("Uploaded " + d.Timestamp.Display()),
		"",
		renderCards(d.Summary),
		"",
		headerStyle.Render("Equipment Type Distribution"),
		renderDistribution(d.Summary, width),
		"",
		headerStyle.Render("Equipment Data"),
	}
	if d.HasRowDetail() {
		info = append(info, m.table.View())
	} else {
		info = append(info, dimStyle.Render(flows.NoRowsMessage))
	}
	return strings.Join(info, "\n")
}

func renderCards(s types.Summary) string {
	cards := flows.Cards(s)
	rendered := make([]string, 0, len(cards))
	for _, c := range cards {
		rendered = append(rendered, cardStyle.Render(labelStyle.Render(c.Label)+"\n"+cardValue.Render(c.Value)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}
