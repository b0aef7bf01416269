package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

const (
	sessA = dbus.ObjectPath("/net/openvpn/v3/sessions/aaaa")
	sessB = dbus.ObjectPath("/net/openvpn/v3/sessions/bbbb")
)

// openTestJournal opens a journal whose clock advances one second per
// record, starting at base.
func openTestJournal(t *testing.T, base time.Time) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "sub", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	tick := base
	j.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := openTestJournal(t, base)

	require.NoError(t, j.RecordStatus(ctx, sessA, proxy.Status{
		Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnConnecting,
	}))
	require.NoError(t, j.RecordLog(ctx, proxy.LogEvent{
		Path: sessA, Group: proxy.LogGroupClient, Category: proxy.LogCategoryInfo, Message: "Peer Connection Initiated\n",
	}))
	require.NoError(t, j.RecordAttention(ctx, sessB, proxy.AttentionRequired{
		Type: proxy.AttentionTypeCredentials, Group: proxy.AttentionGroupUserPassword, Message: "Username/password required",
	}))
	require.NoError(t, j.RecordSessionEvent(ctx, proxy.SessionEvent{Path: sessB, Type: proxy.EventCreated, Owner: 1000}))
	require.NoError(t, j.RecordHealth(ctx, sessA, vpn.HealthDegraded, vpn.HealthHealthy))

	all, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, KindHealth, all[0].Kind, "newest first")
	assert.Equal(t, "Degraded -> Healthy", all[0].Message)
	assert.Equal(t, KindStatus, all[4].Kind)
	assert.Equal(t, base.Add(time.Second).UnixNano(), all[4].Time.UnixNano())
	assert.NotEmpty(t, all[4].ID)

	onlyA, err := j.Recent(ctx, Query{Session: sessA})
	require.NoError(t, err)
	require.Len(t, onlyA, 3)
	for _, e := range onlyA {
		assert.Equal(t, sessA, e.Session)
	}

	logs, err := j.Recent(ctx, Query{Kind: KindLog})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Peer Connection Initiated", logs[0].Message)

	limited, err := j.Recent(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	since, err := j.Recent(ctx, Query{Since: base.Add(4 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 2)
}

func TestJournal_Prune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := openTestJournal(t, base)

	for range 4 {
		require.NoError(t, j.RecordStatus(ctx, sessA, proxy.Status{}))
	}

	n, err := j.Prune(ctx, base.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestJournal_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordStatus(ctx, sessA, proxy.Status{Message: "hello"}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Message)
}
