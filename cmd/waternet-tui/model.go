package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
)

type view int

const (
	zonesView view = iota
	alertsView
	viewCount
)

var tabNames = []string{"Zones", "Alerts"}

type tickMsg time.Time

type snapshotMsg struct {
	zones  []engine.ZoneSummary
	alerts []alerts.Alert
	at     time.Time
	err    error
}

type ackMsg struct {
	alert alerts.Alert
	err   error
}

type model struct {
	client   *client
	actor    string
	interval time.Duration

	currentView view
	zoneTable   table.Model
	alertTable  table.Model
	help        help.Model
	keys        keyMap
	width       int
	height      int

	zones      []engine.ZoneSummary
	alerts     []alerts.Alert
	lastSync   time.Time
	message    string
	messageErr bool
}

func newTable(columns []table.Column, focused bool) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(focused),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#0077B6")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func initialModel(c *client, actor string, interval time.Duration) model {
	zoneCols := []table.Column{
		{Title: "Zone", Width: 14},
		{Title: "Nodes", Width: 6},
		{Title: "Conns", Width: 7},
		{Title: "Target %", Width: 9},
		{Title: "NRW %", Width: 8},
		{Title: "7d %", Width: 8},
		{Title: "Loss m³", Width: 10},
		{Title: "Alerts", Width: 7},
		{Title: "Cases", Width: 6},
	}
	alertCols := []table.Column{
		{Title: "Severity", Width: 9},
		{Title: "Type", Width: 14},
		{Title: "Sensor", Width: 12},
		{Title: "Value", Width: 8},
		{Title: "Limit", Width: 8},
		{Title: "State", Width: 15},
		{Title: "Raised", Width: 9},
		{Title: "Seen", Width: 5},
	}

	return model{
		client:      c,
		actor:       actor,
		interval:    interval,
		currentView: zonesView,
		zoneTable:   newTable(zoneCols, true),
		alertTable:  newTable(alertCols, false),
		help:        help.New(),
		keys:        keys,
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetch() tea.Cmd {
	c := m.client
	timeout := m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		zones, err := c.zones(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		list, err := c.alerts(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{zones: zones, alerts: list, at: time.Now()}
	}
}

func (m model) acknowledge(id string) tea.Cmd {
	c, actor, timeout := m.client, m.actor, m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a, err := c.ack(ctx, id, actor)
		return ackMsg{alert: a, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case snapshotMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("Refresh failed: %v", msg.err)
			m.messageErr = true
			return m, nil
		}
		m.setZones(msg.zones)
		m.setAlerts(msg.alerts)
		m.lastSync = msg.at
		if m.messageErr {
			m.message = ""
			m.messageErr = false
		}
		return m, nil

	case ackMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("Acknowledge failed: %v", msg.err)
			m.messageErr = true
			return m, nil
		}
		m.message = fmt.Sprintf("Acknowledged %s alert on %s", msg.alert.Type, msg.alert.SensorID)
		m.messageErr = false
		return m, m.fetch()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.switchView((m.currentView + 1) % viewCount)
			return m, nil

		case key.Matches(msg, m.keys.ShiftTab):
			m.switchView((m.currentView + viewCount - 1) % viewCount)
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch()

		case key.Matches(msg, m.keys.Ack):
			if m.currentView != alertsView {
				return m, nil
			}
			a, ok := m.selectedAlert()
			if !ok {
				return m, nil
			}
			if a.State != alerts.Unacknowledged {
				m.message = "Alert is already " + strings.ToLower(string(a.State))
				m.messageErr = true
				return m, nil
			}
			return m, m.acknowledge(a.ID)
		}
	}

	switch m.currentView {
	case zonesView:
		m.zoneTable, cmd = m.zoneTable.Update(msg)
	case alertsView:
		m.alertTable, cmd = m.alertTable.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) switchView(v view) {
	m.currentView = v
	if v == alertsView {
		m.zoneTable.Blur()
		m.alertTable.Focus()
	} else {
		m.alertTable.Blur()
		m.zoneTable.Focus()
	}
}

func (m *model) selectedAlert() (alerts.Alert, bool) {
	i := m.alertTable.Cursor()
	if i < 0 || i >= len(m.alerts) {
		return alerts.Alert{}, false
	}
	return m.alerts[i], true
}

func (m *model) setZones(zones []engine.ZoneSummary) {
	m.zones = zones
	rows := make([]table.Row, 0, len(zones))
	for _, z := range zones {
		rows = append(rows, table.Row{
			string(z.ID),
			strconv.Itoa(len(z.Nodes)),
			strconv.Itoa(z.Connections),
			fmt.Sprintf("%.1f", z.TargetNRW),
			zonePercent(z.NRW, z.WithinTarget),
			optional(z.RollingNRW7d, "%.1f"),
			optional(z.LossM3, "%.0f"),
			strconv.Itoa(z.ActiveAlerts),
			strconv.Itoa(z.OpenCases),
		})
	}
	m.zoneTable.SetRows(rows)
}

// setAlerts orders alerts most severe first, then newest first
func (m *model) setAlerts(list []alerts.Alert) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Severity != list[j].Severity {
			return list[i].Severity > list[j].Severity
		}
		return list[i].RaisedAt.After(list[j].RaisedAt)
	})
	m.alerts = list
	rows := make([]table.Row, 0, len(list))
	for _, a := range list {
		rows = append(rows, table.Row{
			a.Severity.String(),
			string(a.Type),
			a.SensorID,
			fmt.Sprintf("%.2f", a.Value),
			fmt.Sprintf("%.2f", a.Threshold),
			alertState(a),
			a.RaisedAt.Local().Format("15:04:05"),
			strconv.Itoa(a.Occurrences),
		})
	}
	m.alertTable.SetRows(rows)
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func zonePercent(v *float64, within *bool) string {
	s := optional(v, "%.1f")
	if within != nil && !*within {
		s += " !"
	}
	return s
}

func alertState(a alerts.Alert) string {
	if a.Cleared {
		return string(a.State) + "*"
	}
	return string(a.State)
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("Waternet NRW Dashboard"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case zonesView:
		s.WriteString(m.renderZones())
	case alertsView:
		s.WriteString(m.renderAlerts())
	}

	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	rendered := make([]string, 0, len(tabNames))
	for i, tab := range tabNames {
		if view(i) == m.currentView {
			rendered = append(rendered, activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m model) renderZones() string {
	over, measured := 0, 0
	var loss float64
	for _, z := range m.zones {
		if z.WithinTarget != nil {
			measured++
			if !*z.WithinTarget {
				over++
			}
		}
		if z.LossM3 != nil {
			loss += *z.LossM3
		}
	}

	sync := "never"
	if !m.lastSync.IsZero() {
		sync = m.lastSync.Local().Format("15:04:05")
	}
	summary := fmt.Sprintf("Zones:        %d\nOver target:  %d of %d measured\nLoss:         %.0f m³\nLast sync:    %s",
		len(m.zones), over, measured, loss, sync)

	var s strings.Builder
	s.WriteString(statsBoxStyle.Render(summary))
	s.WriteString("\n\n")
	s.WriteString(headerStyle.Render("District Metered Areas"))
	s.WriteString("\n\n")
	s.WriteString(m.zoneTable.View())
	return contentStyle.Render(s.String())
}

func (m model) renderAlerts() string {
	bySeverity := make(map[alerts.Severity]int)
	for _, a := range m.alerts {
		if a.State == alerts.Unacknowledged {
			bySeverity[a.Severity]++
		}
	}
	summary := fmt.Sprintf("Unacknowledged   Critical %d   High %d   Medium %d   Low %d",
		bySeverity[alerts.SeverityCritical], bySeverity[alerts.SeverityHigh],
		bySeverity[alerts.SeverityMedium], bySeverity[alerts.SeverityLow])

	var s strings.Builder
	s.WriteString(statsBoxStyle.Render(summary))
	s.WriteString("\n\n")
	s.WriteString(headerStyle.Render("Open Alerts"))
	s.WriteString("\n\n")
	if len(m.alerts) == 0 {
		s.WriteString(helpStyle.Render("No open alerts"))
	} else {
		s.WriteString(m.alertTable.View())
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("* condition cleared, awaiting acknowledgement"))
	}
	return contentStyle.Render(s.String())
}
