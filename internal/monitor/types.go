package monitor

import (
	"time"

	"github.com/rileyhilliard/pifleet/internal/hub"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/registry"
)

// DeviceStatus is what the dashboard currently knows about a device's
// metrics stream.
type DeviceStatus int

const (
	// StatusWaiting means the subscription exists but no snapshot has
	// arrived yet.
	StatusWaiting DeviceStatus = iota
	// StatusOnline means snapshots are flowing.
	StatusOnline
	// StatusDegraded means the stream is up but the last snapshot was
	// incomplete or the stream reported an error.
	StatusDegraded
	// StatusOffline means the stream ended; a resubscribe is pending.
	StatusOffline
)

// String returns a human-readable status label.
func (s DeviceStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusOnline:
		return "online"
	case StatusDegraded:
		return "degraded"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// SortOrder defines how device cards are ordered.
type SortOrder int

const (
	// SortByDefault shows online devices first, config order within each group.
	SortByDefault SortOrder = iota
	SortByName
	SortByCPU
	SortByMemory
	SortByTemp
)

// String returns a human-readable label for the sort order.
func (s SortOrder) String() string {
	switch s {
	case SortByDefault:
		return "status"
	case SortByName:
		return "name"
	case SortByCPU:
		return "CPU"
	case SortByMemory:
		return "memory"
	case SortByTemp:
		return "temp"
	default:
		return "status"
	}
}

// Next cycles to the next sort order.
func (s SortOrder) Next() SortOrder {
	return SortOrder((int(s) + 1) % 5)
}

// ViewMode defines the current display mode of the dashboard.
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
)

// LayoutMode is the responsive layout tier for the current terminal size.
type LayoutMode int

const (
	// LayoutMinimal is for terminals < 80 columns: one line of numbers per card.
	LayoutMinimal LayoutMode = iota
	// LayoutCompact is for terminals 80-120 columns: single-row graphs.
	LayoutCompact
	// LayoutStandard is for terminals 120-160 columns: full cards.
	LayoutStandard
	// LayoutWide is for terminals 160+ columns: full cards, more per row.
	LayoutWide
)

// Width breakpoints for layout modes.
const (
	BreakpointCompact  = 80
	BreakpointStandard = 120
	BreakpointWide     = 160
)

// HeightMinimal is the shortest terminal that still gets a footer.
const HeightMinimal = 24

// DefaultRetryDelay is how long an ended stream waits before resubscribing.
const DefaultRetryDelay = 5 * time.Second

// Config wires the dashboard. Devices and Hub are required.
type Config struct {
	// Devices is the fleet in config order; that order is the default sort.
	Devices []registry.Device

	// Hub provides the metrics subscriptions the dashboard renders.
	Hub *hub.Hub

	// Interval is the snapshot cadence requested from the hub. Zero uses
	// the hub default.
	Interval time.Duration

	// RetryDelay is how long an ended stream waits before resubscribing.
	// Zero uses DefaultRetryDelay.
	RetryDelay time.Duration

	Log logger.Logger
}
