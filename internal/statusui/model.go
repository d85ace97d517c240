// Package statusui is an optional interactive server status view, built
// the way the teacher's presentation/bubble_tea package wraps a small
// piece of running state in a bubbletea.Model, here driven by
// ClientTable.Snapshot() instead of a CLI prompt.
package statusui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"blackwire/internal/clienttable"
)

const pollInterval = time.Second

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Background(lipgloss.Color("62"))

// Row is one rendered line of the client table.
type Row struct {
	MAC     string
	Addr    string
	LiveFor time.Duration
}

// Source supplies the live data the view renders; ServerSession.LastSeen
// and ClientTable.Snapshot already provide everything it needs.
type Source interface {
	Rows() []Row
}

type tickMsg time.Time

// Model is the bubbletea.Model for the server status view, delegating the
// table rendering to bubbles/table rather than hand-rolled columns.
type Model struct {
	source Source
	table  table.Model
}

// New creates a Model polling source once per second.
func New(source Source) Model {
	columns := []table.Column{
		{Title: "MAC", Width: 18},
		{Title: "ADDRESS", Width: 22},
		{Title: "IDLE FOR", Width: 14},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)
	return Model{source: source, table: t}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.table.SetRows(rowsToTableRows(m.source.Rows()))
		return m, tick()
	}
	return m, nil
}

func rowsToTableRows(rows []Row) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{r.MAC, r.Addr, r.LiveFor.Round(time.Second).String()})
	}
	return out
}

func (m Model) View() string {
	return titleStyle.Render("blackwire server") + "\n\n" + m.table.View() + "\npress q to quit\n"
}

// TableSource adapts a *clienttable.Table plus a MAC->lastSeen lookup into
// a Source, without statusui depending on the session package directly.
type TableSource struct {
	Table    *clienttable.Table
	LastSeen func(info clienttable.ClientInfo) time.Time
}

func (s TableSource) Rows() []Row {
	snap := s.Table.Snapshot()
	rows := make([]Row, 0, len(snap))
	for _, info := range snap {
		var liveFor time.Duration
		if s.LastSeen != nil {
			if seen := s.LastSeen(*info); !seen.IsZero() {
				liveFor = time.Since(seen)
			}
		}
		rows = append(rows, Row{
			MAC:     info.MAC.String(),
			Addr:    info.Addr.String(),
			LiveFor: liveFor,
		})
	}
	return rows
}
