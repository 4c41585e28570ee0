package main

import (
	"fmt"
	"time"

	"github.com/andrewlester/truetime/internal/ui"
	"github.com/andrewlester/truetime/pkg/truetime"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshPeriod = 2 * time.Second

type watchModel struct {
	client *truetime.Client
	table  table.Model

	status    truetime.Status
	lastError error
}

type updateMsg struct{}
type tickMsg time.Time
type fetchResultMsg struct{ err error }

func waitForUpdateCommand(client *truetime.Client) tea.Cmd {
	return func() tea.Msg {
		<-client.Updates()
		return updateMsg{}
	}
}

func tickCommand(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchCommand(client *truetime.Client) tea.Cmd {
	return func() tea.Msg {
		result := make(chan error, 1)
		client.FetchIfNeeded(nil, func(ref *truetime.ReferenceTime, err error) { result <- err })
		return fetchResultMsg{err: <-result}
	}
}

func newWatchModel(client *truetime.Client) watchModel {
	return watchModel{client: client, table: setupTable()}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdateCommand(m.client), tickCommand(refreshPeriod), fetchCommand(m.client))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case updateMsg:
		m.refresh()
		return m, waitForUpdateCommand(m.client)
	case tickMsg:
		m.refresh()
		return m, tickCommand(refreshPeriod)
	case fetchResultMsg:
		m.lastError = msg.err
		m.refresh()
		return m, nil
	default:
		return m, nil
	}
}

func (m *watchModel) refresh() {
	m.status = m.client.Status()

	ref := m.client.ReferenceTime()
	rows := []table.Row{}
	if ref != nil {
		now := ref.Now()
		rows = append(rows, table.Row{
			ref.Host,
			now.Time().Format(time.RFC3339Nano),
			fmt.Sprintf("%d", ref.SampleSize),
		})
	}
	m.table.SetRows(rows)
}

// GetError lets the caller recover the last fetch error after the
// terminal UI exits, the way sugar.RunProgramWithErrors expects.
func (m watchModel) GetError() error {
	return m.lastError
}

func (m watchModel) View() (s string) {
	s += ui.TitleStyle("truetime-watch") + "  " + ui.StatusStyle.Render(m.status.String()) + "\n\n"
	s += ui.TableBorderStyle.Render(m.table.View()) + "\n\n"
	if m.lastError != nil {
		s += ui.ErrorStyle.Render(m.lastError.Error()) + "\n"
	}
	s += ui.HelpStyle("q: quit\n")
	return
}

func setupTable() table.Model {
	columns := []table.Column{
		{Title: "Reference Host", Width: 24},
		{Title: "True Time", Width: 32},
		{Title: "Sample Size", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(3),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(s)

	return t
}
