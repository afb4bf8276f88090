package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

func TestRenderDetailContentSections(t *testing.T) {
	m := testModel()
	m.width = 100
	applySnap(t, &m, "pi4", fullSnapshot())
	require.Equal(t, "pi4", m.SelectedDevice())

	content := m.renderDetailContent()

	// Identity
	assert.Contains(t, content, "Target:")
	assert.Contains(t, content, "pi@10.0.0.4")
	assert.Contains(t, content, "1d 1h")

	// CPU
	assert.Contains(t, content, "CPU")
	assert.Contains(t, content, "1.42, 0.98, 0.55")
	assert.Contains(t, content, "Cores: 4")
	assert.Contains(t, content, "cpu0")
	assert.Contains(t, content, "55.5°C")

	// Memory including swap
	assert.Contains(t, content, "Memory")
	assert.Contains(t, content, "Used:")
	assert.Contains(t, content, "Swap:")

	// Disk including the extra mount
	assert.Contains(t, content, "Disk")
	assert.Contains(t, content, "/data")
	assert.Contains(t, content, "ext4")

	// Network
	assert.Contains(t, content, "Network")
	assert.Contains(t, content, "120.5 KB/s")

	// Processes
	assert.Contains(t, content, "Processes")
	assert.Contains(t, content, "142 running")
	assert.Contains(t, content, "Top CPU")
	assert.Contains(t, content, "Top memory")
	assert.Contains(t, content, "ffmpeg")
	assert.Contains(t, content, "postgres")

	// A healthy stream has no stream section
	assert.NotContains(t, content, "Stream")
}

func TestRenderDetailContentWaiting(t *testing.T) {
	m := testModel()
	m.width = 100

	content := m.renderDetailContent()

	assert.Contains(t, content, "Target:")
	assert.Contains(t, content, "Waiting for the first snapshot")
}

func TestRenderDetailContentOffline(t *testing.T) {
	m := testModel()
	m.width = 100
	st := m.states["pi4"]
	st.status = StatusOffline
	st.errMsg = "connection refused"
	st.errHint = "Check power and network"

	content := m.renderDetailContent()

	assert.Contains(t, content, "Offline")
	assert.Contains(t, content, "connection refused")
	assert.Contains(t, content, "Check power and network")
}

func TestRenderDetailViewNoDevice(t *testing.T) {
	m := NewModel(Config{})

	assert.Contains(t, m.renderDetailView(), "No device selected")
	assert.Empty(t, m.renderDetailContent())
}

func TestRenderDetailHeader(t *testing.T) {
	m := testModel()
	st := &deviceState{
		device: registry.Device{Name: "alpha"},
		status: StatusOnline,
	}

	header := m.renderDetailHeader(st)

	assert.Contains(t, header, "alpha")
	assert.Contains(t, header, "Online")
	assert.Contains(t, header, GlyphOnline)
}

func TestRenderDetailStreamSection(t *testing.T) {
	m := testModel()
	st := &deviceState{
		dropped: 3,
		errMsg:  "sample failed",
		errHint: "check connectivity",
	}
	snap := &telemetry.MetricsSnapshot{Degraded: []string{"temperature"}}

	section := m.renderDetailStreamSection(st, snap, 60)

	assert.Contains(t, section, "Stream")
	assert.Contains(t, section, "Degraded: temperature")
	assert.Contains(t, section, "3 events")
	assert.Contains(t, section, "sample failed")
	assert.Contains(t, section, "check connectivity")
}

func TestRenderDetailStreamSectionEmptyWhenHealthy(t *testing.T) {
	m := testModel()
	st := &deviceState{}
	snap := &telemetry.MetricsSnapshot{}

	assert.Empty(t, m.renderDetailStreamSection(st, snap, 60))
}

func TestRenderProcessRows(t *testing.T) {
	procs := []telemetry.ProcessStat{
		{PID: 42, Name: "a-very-long-process-name-here", CPUPercent: 95.5, MemPercent: 10.1},
	}

	rows := renderProcessRows(procs, true)
	require.Len(t, rows, 1)

	assert.Contains(t, rows[0], "42")
	assert.Contains(t, rows[0], "a-very-long-proce...")
	assert.Contains(t, rows[0], "95.5%")
}

func TestRenderDetailFooter(t *testing.T) {
	m := testModel()

	footer := m.renderDetailFooter()

	assert.Contains(t, footer, "Esc back")
	assert.Contains(t, footer, "pgup/pgdn scroll")
}

func TestUpdateDetailViewportContentBeforeReady(t *testing.T) {
	m := testModel()
	require.False(t, m.viewportReady)

	// Must not touch the viewport before the first WindowSizeMsg
	m.updateDetailViewportContent()
}
