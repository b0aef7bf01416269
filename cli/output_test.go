package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/proxy"
)

func TestRenderTable_PlainOutputIsTSV(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"DEVICE", "SESSION", "CONFIG"}, [][]string{
		{"tun0", "a1b2", "office"},
		{"tun1", "c3d4"},
	})

	out := buf.String()
	assert.Contains(t, out, "tun0\ta1b2\toffice")
	assert.Contains(t, out, "tun1\tc3d4\t")
	assert.NotContains(t, out, "╭", "no borders when not writing to a terminal")
}

func TestRenderTable_NoColumns(t *testing.T) {
	var buf bytes.Buffer
	assert.Empty(t, renderTable(&buf, nil, [][]string{{"x"}}, nil))
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90m", 90 * time.Minute, false},
		{"48h", 48 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{" 1d ", 24 * time.Hour, false},
		{"", 0, true},
		{"xd", 0, true},
		{"-1d", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAge(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatStat(t *testing.T) {
	assert.Equal(t, "2.0 KiB", formatStat("BYTES_IN", 2048))
	assert.Equal(t, "1.0 MiB", formatStat("BYTES_OUT", 1<<20))
	assert.Equal(t, "1,234,567", formatStat("PACKETS_IN", 1234567))
	assert.Equal(t, "-5", formatStat("BYTES_IN", -5))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
	assert.Equal(t, "yes", yesNo(true))
	assert.Equal(t, "no", yesNo(false))
	assert.Equal(t, "-", formatTime(time.Time{}))
	assert.Equal(t, "a1b2", short("/net/openvpn/v3/sessions/a1b2"))
	assert.Equal(t, "1h 2m 3s", formatDuration(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "", formatDetails(nil))
	assert.Equal(t, " addr=10.8.0.2 prefix=24", formatDetails(map[string]string{"prefix": "24", "addr": "10.8.0.2"}))
}

func TestPropertyValue(t *testing.T) {
	v, err := propertyValue("name", "home")
	require.NoError(t, err)
	assert.Equal(t, "home", v)

	v, err = propertyValue("locked_down", "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = propertyValue("dco", "maybe")
	assert.Error(t, err)
	_, err = propertyValue("name", "")
	assert.Error(t, err)
	_, err = propertyValue("owner", "0")
	assert.ErrorContains(t, err, "unknown property")
}

func TestFailedStatus(t *testing.T) {
	assert.True(t, failedStatus(proxy.Status{Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnAuthFailed}))
	assert.True(t, failedStatus(proxy.Status{Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnFailed}))
	assert.False(t, failedStatus(proxy.Status{Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnConnecting}))
	assert.False(t, failedStatus(proxy.Status{Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnConnected}))
}
