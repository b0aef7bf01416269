package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/journal"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

// watchLogLines is how many log lines the live view keeps.
const watchLogLines = 8

// watchSource is what the live view reads from and acts on.
type watchSource interface {
	Info(ctx context.Context) (vpn.SessionInfo, error)
	Pause(ctx context.Context, reason string) error
	Resume(ctx context.Context) error
}

// watchKeyMap defines the key bindings of the live view.
type watchKeyMap struct {
	Pause  key.Binding
	Resume key.Binding
	Quit   key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Resume, k.Quit}
}

func defaultWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause"),
		),
		Resume: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resume"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

type infoMsg struct{ info vpn.SessionInfo }

type refreshMsg struct{}

type statusMsg struct{ status proxy.Status }

type logMsg struct{ event proxy.LogEvent }

type attentionMsg struct{ req proxy.AttentionRequired }

type actionMsg struct {
	text string
	err  error
}

// errMsg reports a failure. feed names the signal feed that failed, or
// is empty for a refresh.
type errMsg struct {
	err  error
	feed string
}

// watchModel is the bubbletea model of the live session view.
type watchModel struct {
	ctx      context.Context
	source   watchSource
	interval time.Duration
	// nextStatus, nextLog and nextAttention block for the next signal.
	// Nil disables the feed.
	nextStatus    func(context.Context) (proxy.Status, error)
	nextLog       func(context.Context) (proxy.LogEvent, error)
	nextAttention func(context.Context) (proxy.AttentionRequired, error)

	keys    watchKeyMap
	spinner spinner.Model

	info     vpn.SessionInfo
	loaded   bool
	logs     []string
	notice   string
	err      error
	quitting bool
}

func newWatchModel(ctx context.Context, source watchSource, interval time.Duration) watchModel {
	return watchModel{
		ctx:      ctx,
		source:   source,
		interval: interval,
		keys:     defaultWatchKeyMap(),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("12"))),
		),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh, m.waitStatus(), m.waitLog(), m.waitAttention())
}

func (m watchModel) refresh() tea.Msg {
	info, err := m.source.Info(m.ctx)
	if err != nil {
		return errMsg{err: err}
	}
	return infoMsg{info}
}

func (m watchModel) waitStatus() tea.Cmd {
	if m.nextStatus == nil {
		return nil
	}
	return func() tea.Msg {
		st, err := m.nextStatus(m.ctx)
		if err != nil {
			return errMsg{err: err, feed: "status"}
		}
		return statusMsg{st}
	}
}

func (m watchModel) waitLog() tea.Cmd {
	if m.nextLog == nil {
		return nil
	}
	return func() tea.Msg {
		ev, err := m.nextLog(m.ctx)
		if err != nil {
			return errMsg{err: err, feed: "log"}
		}
		return logMsg{ev}
	}
}

func (m watchModel) waitAttention() tea.Cmd {
	if m.nextAttention == nil {
		return nil
	}
	return func() tea.Msg {
		req, err := m.nextAttention(m.ctx)
		if err != nil {
			return errMsg{err: err, feed: "attention"}
		}
		return attentionMsg{req}
	}
}

func (m watchModel) act(text string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{text: text, err: fn(m.ctx)}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			return m, m.act("paused", func(ctx context.Context) error {
				return m.source.Pause(ctx, "paused from watch")
			})
		case key.Matches(msg, m.keys.Resume):
			return m, m.act("resumed", m.source.Resume)
		}
		return m, nil

	case infoMsg:
		m.info = msg.info
		m.loaded = true
		m.err = nil
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg {
			return refreshMsg{}
		})

	case refreshMsg:
		return m, m.refresh

	case statusMsg:
		m.info.Status = msg.status
		return m, m.waitStatus()

	case logMsg:
		m.logs = append(m.logs, msg.event.Message)
		if len(m.logs) > watchLogLines {
			m.logs = m.logs[len(m.logs)-watchLogLines:]
		}
		return m, m.waitLog()

	case attentionMsg:
		m.notice = "Attention: " + formatAttention(msg.req)
		return m, m.waitAttention()

	case actionMsg:
		if msg.err != nil {
			m.notice = "Failed: " + msg.err.Error()
		} else {
			m.notice = "Session " + msg.text
		}
		return m, m.refresh

	case errMsg:
		switch {
		case errors.Is(msg.err, common.ErrDecode):
			// the feed stays usable
			switch msg.feed {
			case "log":
				return m, m.waitLog()
			case "attention":
				return m, m.waitAttention()
			}
			return m, m.waitStatus()
		case errors.Is(msg.err, common.ErrStreamClosed), errors.Is(msg.err, context.Canceled):
			m.quitting = true
			return m, tea.Quit
		}
		m.err = msg.err
		if msg.feed != "" {
			return m, nil
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg {
			return refreshMsg{}
		})

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	watchLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	watchUpStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	watchDownStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	watchHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	if !m.loaded {
		b.WriteString(m.spinner.View() + " Loading session...\n")
		if m.err != nil {
			b.WriteString(watchDownStyle.Render("Error: "+m.err.Error()) + "\n")
		}
		return b.String()
	}

	title := m.info.ConfigName
	if title == "" {
		title = short(m.info.Path)
	}
	b.WriteString(watchTitleStyle.Render(title) + "  " + watchLabelStyle.Render(string(m.info.Path)) + "\n\n")

	status := watchDownStyle.Render(m.info.Status.String())
	if m.info.Connected() {
		status = watchUpStyle.Render(m.info.Status.String())
	} else if !failedStatus(m.info.Status) {
		status = m.spinner.View() + " " + m.info.Status.String()
	}
	b.WriteString(watchLabelStyle.Render("Status:  ") + status + "\n")
	b.WriteString(watchLabelStyle.Render("Device:  ") + orDash(m.info.Device) + "\n")
	if m.info.Connected() && !m.info.Created.IsZero() {
		b.WriteString(watchLabelStyle.Render("Uptime:  ") + formatDuration(time.Since(m.info.Created)) + "\n")
	}

	if len(m.info.Statistics) > 0 {
		b.WriteString("\n")
		names := make([]string, 0, len(m.info.Statistics))
		for k := range m.info.Statistics {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			b.WriteString(fmt.Sprintf("%s %s\n",
				watchLabelStyle.Render(fmt.Sprintf("%-16s", k)), formatStat(k, m.info.Statistics[k])))
		}
	}

	if len(m.logs) > 0 {
		b.WriteString("\n" + watchLabelStyle.Render("Log:") + "\n")
		for _, line := range m.logs {
			b.WriteString("  " + line + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n" + watchDownStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + m.notice + "\n")
	}

	help := make([]string, 0, 3)
	for _, k := range m.keys.ShortHelp() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString("\n" + watchHelpStyle.Render(strings.Join(help, " • ")) + "\n")
	return b.String()
}

// watch runs the live view of sess until the user quits or the session
// goes away. Status changes, log lines and attention requests are
// journaled.
func (a *app) watch(cmd *cobra.Command, sess *vpn.Session, interval time.Duration) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	status, err := sess.StatusChange()
	if err != nil {
		return err
	}
	defer status.Close()
	attention, err := sess.AttentionRequired()
	if err != nil {
		return err
	}
	defer attention.Close()
	logs, err := sess.Log(ctx)
	if err != nil {
		common.LogWarn("Log forwarding unavailable: %v", err)
	} else {
		defer logs.Close()
	}

	m := newWatchModel(ctx, sess, interval)
	m.nextStatus = func(ctx context.Context) (proxy.Status, error) {
		st, err := status.Next(ctx)
		if err == nil {
			a.record(func(j *journal.Journal) error { return j.RecordStatus(ctx, sess.Path(), st) })
		}
		return st, err
	}
	m.nextAttention = func(ctx context.Context) (proxy.AttentionRequired, error) {
		req, err := attention.Next(ctx)
		if err == nil {
			a.record(func(j *journal.Journal) error { return j.RecordAttention(ctx, sess.Path(), req) })
		}
		return req, err
	}
	if logs != nil {
		m.nextLog = func(ctx context.Context) (proxy.LogEvent, error) {
			ev, err := logs.Next(ctx)
			if err == nil {
				a.record(func(j *journal.Journal) error { return j.RecordLog(ctx, ev) })
			}
			return ev, err
		}
	}

	defer keepLogRotated(ctx)()

	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
