// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type transferModel struct {
	title         string
	connInfo      string
	session       *bootloader.Session
	bar           progress.Model
	percent       float64
	current       string
	page          int
	pages         int
	stats         bootloader.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	started       time.Time
	width         int
	height        int
	quitting      bool
	done          bool
	report        *bootloader.Report
	err           error
}

// Messages
type tickMsg time.Time
type engineEventMsg struct {
	event bootloader.Event
}
type planDoneMsg struct {
	report *bootloader.Report
	err    error
}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}

	seconds := int(d.Seconds())
	minutes := seconds / 60
	seconds %= 60

	parts := []string{}
	if minutes > 0 {
		if minutes == 1 {
			parts = append(parts, "1 minute")
		} else {
			parts = append(parts, fmt.Sprintf("%d minutes", minutes))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}
	return strings.Join(parts, " and ")
}

func initialTransferModel(session *bootloader.Session, title string) transferModel {
	return transferModel{
		title:         title,
		connInfo:      session.ConnInfo(),
		session:       session,
		bar:           progress.New(progress.WithDefaultGradient()),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		started:       time.Now(),
		width:         80,
		height:        24,
	}
}

func (m transferModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// Closing the transport aborts the command in flight
			m.quitting = true
			m.session.Close()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 80 {
			m.bar.Width = 80
		}

	case tickMsg:
		m.stats = m.session.Statistics()
		m.stats.CalculateRates()
		return m, tickCmd()

	case engineEventMsg:
		switch ev := msg.event.(type) {
		case bootloader.Progress:
			m.current = ev.Command.Name
			m.percent = ev.Percentage()
			m.page = ev.Page + 1
			m.pages = ev.Pages
		case bootloader.Completion:
			if ev.OK() {
				m.addLogEntry(fmt.Sprintf("%s ok (%s)", ev.Command.Name, formatElapsed(ev.Elapsed)), false)
			} else {
				m.addLogEntry(fmt.Sprintf("%s: %v", ev.Command.Name, ev.Err), true)
			}
		}

	case planDoneMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		m.stats = m.session.Statistics()
		if msg.err == nil && m.pages > 0 {
			m.percent = 1
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *transferModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m transferModel) View() string {
	if m.quitting {
		return "Aborting...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("STBOOT - " + strings.ToUpper(m.title)))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to abort", m.connInfo)))
	s.WriteString("\n\n")

	// Transfer
	if m.pages > 0 {
		s.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render(m.current),
			headerStyle.Render(fmt.Sprintf("page %d/%d", m.page, m.pages)),
		))
	}
	s.WriteString(m.bar.ViewAs(m.percent))
	s.WriteString("\n\n")

	// Statistics
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Commands:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Commands)),
		statsLabelStyle.Render("Ok:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Succeeded)),
		statsLabelStyle.Render("Failed:"), func() string {
			if m.stats.Failed > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", m.stats.Failed))
			}
			return statsValueStyle.Render("0")
		}(),
	))
	if m.stats.Nacks > 0 || m.stats.Timeouts > 0 || m.stats.UnexpectedBytes > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("NACK:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Nacks)),
			statsLabelStyle.Render("Timeout:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Timeouts)),
			statsLabelStyle.Render("Unexpected:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.UnexpectedBytes)),
		))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Read:"), statsValueStyle.Render(fmt.Sprintf("%d B", m.stats.BytesRead)),
		statsLabelStyle.Render("Written:"), statsValueStyle.Render(fmt.Sprintf("%d B", m.stats.BytesWritten)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.0f B/s", m.stats.ByteRate)),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render(fmt.Sprintf("Events (%s):", formatElapsed(time.Since(m.started)))))
	s.WriteString("\n")

	logHeight := m.height - 14
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					infoStyle.Render("✓ "+entry.message),
				))
			}
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")

	return s.String()
}

// runTUI executes plan under the transfer TUI
func runTUI(session *bootloader.Session, plan bootloader.Plan, title string) (*bootloader.Report, error) {
	p := tea.NewProgram(initialTransferModel(session, title))

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			select {
			case <-stop:
				return
			case ev := <-session.Events():
				p.Send(engineEventMsg{event: ev})
			}
		}
	}()

	go func() {
		r := <-session.Submit(plan)
		p.Send(planDoneMsg{report: r.Report, err: r.Err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	m := final.(transferModel)
	if !m.done {
		return nil, fmt.Errorf("%s aborted", title)
	}
	return m.report, m.err
}

// transferTitle names a plan for display
func transferTitle(plan bootloader.Plan) string {
	names := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		if c := s.Command(); c.Opcode != stm32boot.Init {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, " ")
}
