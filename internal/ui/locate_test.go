package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/pifleet/internal/discover"
)

func TestRenderLocateLineFound(t *testing.T) {
	line := RenderLocateLine(discover.LocateEvent{
		Type:    discover.EventFound,
		Address: "192.168.4.61",
		Source:  discover.SourceSubnet,
		Latency: 300 * time.Millisecond,
	})

	assert.Contains(t, line, SymbolComplete)
	assert.Contains(t, line, "192.168.4.61 (subnet)")
	assert.Contains(t, line, "0.3s")
}

func TestRenderLocateLineCacheHit(t *testing.T) {
	line := RenderLocateLine(discover.LocateEvent{
		Type:    discover.EventCacheHit,
		Address: "10.0.0.4",
		Source:  discover.SourceCached,
		Latency: 50 * time.Millisecond,
	})

	assert.Contains(t, line, SymbolComplete)
	assert.Contains(t, line, "10.0.0.4 (cached)")
	assert.Contains(t, line, "0.05s")
}

func TestRenderLocateLineFailed(t *testing.T) {
	line := RenderLocateLine(discover.LocateEvent{
		Type:    discover.EventFailed,
		Address: "10.0.0.4",
		Source:  discover.SourceCached,
		Message: "timeout",
	})

	assert.Contains(t, line, SymbolPending)
	assert.Contains(t, line, "10.0.0.4 (cached)")
	assert.Contains(t, line, "timeout")
}

func TestRenderLocateLineFailedNoMessage(t *testing.T) {
	line := RenderLocateLine(discover.LocateEvent{
		Type:    discover.EventFailed,
		Address: "10.0.0.4",
		Source:  discover.SourceHint,
	})

	assert.Contains(t, line, "failed")
}

func TestLocateDisplayRecordsTerminalEvents(t *testing.T) {
	var buf bytes.Buffer
	ld := NewLocateDisplay(&buf)

	ld.HandleEvent(discover.LocateEvent{Type: discover.EventTrying, Address: "10.0.0.4", Source: discover.SourceCached})
	ld.HandleEvent(discover.LocateEvent{Type: discover.EventFailed, Address: "10.0.0.4", Source: discover.SourceCached, Message: "timeout"})
	ld.HandleEvent(discover.LocateEvent{Type: discover.EventTrying, Address: "192.168.4.61", Source: discover.SourceSubnet})
	ld.HandleEvent(discover.LocateEvent{Type: discover.EventFound, Address: "192.168.4.61", Source: discover.SourceSubnet, Latency: 200 * time.Millisecond})

	events := ld.Events()
	require.Len(t, events, 2)
	assert.Equal(t, discover.EventFailed, events[0].Type)
	assert.Equal(t, discover.EventFound, events[1].Type)

	assert.True(t, ld.HasMisses())
	assert.Equal(t, "192.168.4.61", ld.FoundAddress())

	out := buf.String()
	assert.Contains(t, out, "10.0.0.4 (cached)")
	assert.Contains(t, out, "192.168.4.61 (subnet)")
}

func TestLocateDisplayTryingProducesNoOutput(t *testing.T) {
	var buf bytes.Buffer
	ld := NewLocateDisplay(&buf)

	ld.HandleEvent(discover.LocateEvent{Type: discover.EventTrying, Address: "10.0.0.4", Source: discover.SourceCached})

	assert.Empty(t, ld.Events())
	assert.Equal(t, "", buf.String())
	assert.False(t, ld.HasMisses())
	assert.Equal(t, "", ld.FoundAddress())
}

func TestLocateDisplayQuiet(t *testing.T) {
	var buf bytes.Buffer
	ld := NewLocateDisplay(&buf)
	ld.SetQuiet(true)

	ld.HandleEvent(discover.LocateEvent{Type: discover.EventFailed, Address: "10.0.0.4", Source: discover.SourceCached, Message: "timeout"})

	// Recorded but not rendered
	assert.Len(t, ld.Events(), 1)
	assert.Equal(t, "", buf.String())
}

func TestLocateDisplaySuccess(t *testing.T) {
	var buf bytes.Buffer
	ld := NewLocateDisplay(&buf)

	ld.Start("den-pi")
	ld.HandleEvent(discover.LocateEvent{Type: discover.EventFound, Address: "192.168.4.61", Source: discover.SourceSubnet, Latency: 200 * time.Millisecond})
	ld.Success("den-pi", "192.168.4.61")

	out := buf.String()
	assert.Contains(t, out, "Locating den-pi")
	assert.Contains(t, out, "Located den-pi at 192.168.4.61")
}

func TestLocateDisplayFail(t *testing.T) {
	var buf bytes.Buffer
	ld := NewLocateDisplay(&buf)

	ld.Start("den-pi")
	ld.HandleEvent(discover.LocateEvent{Type: discover.EventFailed, Address: "10.0.0.4", Source: discover.SourceCached, Message: "timeout"})
	ld.Fail("tried 1 candidate")

	out := buf.String()
	assert.Contains(t, out, "Device not found: tried 1 candidate")
	assert.Equal(t, "", ld.FoundAddress())
}
