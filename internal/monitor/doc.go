// Package monitor implements a real-time TUI dashboard for fleet device
// metrics.
//
// The dashboard displays CPU, memory, network, temperature, and process
// statistics for every registered device, with color-coded status indicators
// and a responsive layout that adapts to terminal size.
//
// # Architecture
//
// The package uses the Bubble Tea framework, which follows The Elm
// Architecture (Model-Update-View pattern):
//
//   - Model: Holds dashboard state (devices, snapshots, selection, layout)
//   - Update: Processes messages (keystrokes, stream events, timers)
//   - View: Renders the current state to a string for display
//
// # Data Flow
//
// The dashboard never polls devices itself. It subscribes to the metrics hub,
// which owns the SSH sampling cadence and fans snapshots out to every
// consumer:
//
//  1. Init() opens one hub subscription per device
//  2. A pump goroutine per subscription forwards events into a shared channel
//  3. waitForEvent() turns each delivery into a deviceEventMsg
//  4. applyEvent() updates device state and pushes history samples
//  5. View() re-renders the dashboard with new data
//
// When the hub closes a stream the device is marked offline and the dashboard
// resubscribes after a backoff, so unplugged boards reappear on their own.
// Sequence numbers on stream events expose drops: a gap means the terminal
// could not keep up, and the detail view reports how many events were lost.
//
// # Layout Modes
//
// The dashboard adapts to terminal width with four layout modes:
//
//	LayoutMinimal  (<80 cols)  - Metrics only, no graphs
//	LayoutCompact  (80-120)    - Single-row graphs, abbreviated labels
//	LayoutStandard (120-160)   - Full cards, possibly 2 columns
//	LayoutWide     (160+)      - Multi-column layout with extra detail
//
// # History and Sparklines
//
// The History type stores metric values in ring buffers for sparkline
// rendering. Each device tracks CPU, memory, network throughput, and SoC
// temperature. History is cleared when a stream ends so a reconnected device
// does not graph the gap as data. Default history size is 60 samples.
//
// # Keyboard Shortcuts
//
// Navigation and control is handled via keybindings defined in keybindings.go:
//
//	q, Ctrl+C   - Quit
//	s           - Cycle sort order (status/name/CPU/memory/temp)
//	j/k, ↑/↓    - Navigate device list
//	Enter       - Expand device detail view
//	Esc         - Collapse / go back
//	?           - Toggle help overlay
package monitor
