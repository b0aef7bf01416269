package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

type fakeWatchSource struct {
	info    vpn.SessionInfo
	infoErr error
	paused  string
	resumed int
}

func (f *fakeWatchSource) Info(context.Context) (vpn.SessionInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeWatchSource) Pause(_ context.Context, reason string) error {
	f.paused = reason
	return nil
}

func (f *fakeWatchSource) Resume(context.Context) error {
	f.resumed++
	return nil
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m watchModel, msg tea.Msg) (watchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(watchModel)
	require.True(t, ok)
	return wm, cmd
}

func connectedInfo() vpn.SessionInfo {
	return vpn.SessionInfo{
		Path:       "/net/openvpn/v3/sessions/a1b2",
		ConfigName: "office",
		Device:     "tun0",
		Created:    time.Now().Add(-time.Minute),
		Status:     proxy.Status{Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnConnected},
		Statistics: proxy.Statistics{"BYTES_IN": 2048, "PACKETS_IN": 12},
	}
}

func TestWatchModel_LoadsAndRenders(t *testing.T) {
	src := &fakeWatchSource{info: connectedInfo()}
	m := newWatchModel(context.Background(), src, time.Second)

	assert.Contains(t, m.View(), "Loading session")

	msg := m.refresh()
	require.IsType(t, infoMsg{}, msg)
	m, cmd := update(t, m, msg)
	assert.NotNil(t, cmd, "schedules the next refresh")

	view := m.View()
	assert.Contains(t, view, "office")
	assert.Contains(t, view, "tun0")
	assert.Contains(t, view, "2.0 KiB")
	assert.Contains(t, view, "Uptime")
	assert.Contains(t, view, "q quit")
}

func TestWatchModel_StatusAndLogs(t *testing.T) {
	m := newWatchModel(context.Background(), &fakeWatchSource{}, time.Second)
	m, _ = update(t, m, infoMsg{connectedInfo()})

	reconnecting := proxy.Status{Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnReconnecting}
	m, _ = update(t, m, statusMsg{reconnecting})
	assert.Equal(t, reconnecting, m.info.Status)

	for i := range watchLogLines + 3 {
		m, _ = update(t, m, logMsg{proxy.LogEvent{Message: fmt.Sprintf("line %d", i)}})
	}
	require.Len(t, m.logs, watchLogLines)
	assert.Equal(t, "line 3", m.logs[0])
	assert.Contains(t, m.View(), fmt.Sprintf("line %d", watchLogLines+2))
}

func TestWatchModel_Keys(t *testing.T) {
	src := &fakeWatchSource{info: connectedInfo()}
	m := newWatchModel(context.Background(), src, time.Second)
	m, _ = update(t, m, infoMsg{src.info})

	m, cmd := update(t, m, keyPress("p"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, actionMsg{text: "paused"}, msg)
	assert.NotEmpty(t, src.paused)

	m, _ = update(t, m, msg)
	assert.Contains(t, m.View(), "Session paused")

	_, cmd = update(t, m, keyPress("r"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, src.resumed)

	m, cmd = update(t, m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}

func TestWatchModel_Errors(t *testing.T) {
	m := newWatchModel(context.Background(), &fakeWatchSource{}, time.Second)
	m.nextLog = func(context.Context) (proxy.LogEvent, error) { return proxy.LogEvent{}, nil }

	m, cmd := update(t, m, errMsg{err: fmt.Errorf("bad: %w", common.ErrDecode), feed: "log"})
	assert.NotNil(t, cmd, "keeps reading the feed")
	assert.NoError(t, m.err)

	m, _ = update(t, m, errMsg{err: errors.New("no reply")})
	assert.Contains(t, m.View(), "no reply")

	m, cmd = update(t, m, errMsg{err: common.ErrStreamClosed, feed: "status"})
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
}

func TestWatchModel_RefreshError(t *testing.T) {
	src := &fakeWatchSource{infoErr: errors.New("unknown object")}
	m := newWatchModel(context.Background(), src, time.Second)
	msg := m.refresh()
	assert.Equal(t, errMsg{err: src.infoErr}, msg)
}

func TestWatchModel_Attention(t *testing.T) {
	req := proxy.AttentionRequired{
		Type:    proxy.AttentionTypeCredentials,
		Group:   proxy.AttentionGroupChallengeDynamic,
		Message: "Enter token",
	}
	m := newWatchModel(context.Background(), &fakeWatchSource{}, time.Second)
	m.nextAttention = func(context.Context) (proxy.AttentionRequired, error) { return req, nil }
	m, _ = update(t, m, infoMsg{connectedInfo()})

	cmd := m.waitAttention()
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, attentionMsg{req}, msg)

	m, cmd = update(t, m, msg)
	assert.NotNil(t, cmd, "keeps reading the feed")
	assert.Contains(t, m.View(), "Attention: User Credentials / Dynamic challenge: Enter token")

	_, cmd = update(t, m, errMsg{err: fmt.Errorf("bad: %w", common.ErrDecode), feed: "attention"})
	assert.NotNil(t, cmd)
}
