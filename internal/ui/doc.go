// Package ui provides terminal UI components for pifleet's CLI output.
//
// The package includes spinners, tables, sparklines, pickers, and styled
// text output using the Lip Gloss library for consistent terminal styling
// across all commands.
//
// # Components Overview
//
//	Spinner        - Animated status indicator for long-running operations
//	LocateDisplay  - Candidate probe attempts while hunting for a device
//	FleetProgress  - Per-device rows for fan-out command execution
//	Tables         - Scan results and device inventory
//	Sparkline      - Mini line graphs for one-line history
//	DevicePicker   - Interactive device selection
//	SSHPicker      - Import candidates from ~/.ssh/config during init
//
// # Color Scheme
//
// Semantic colors are base ANSI codes for broad terminal compatibility:
//
//	ColorSuccess   (green)  - Successful operations
//	ColorError     (red)    - Failures and errors
//	ColorWarning   (yellow) - Warnings and skipped items
//	ColorInfo      (cyan)   - Informational messages
//	ColorMuted     (gray)   - Secondary text, timing info
//	ColorSecondary (blue)   - In-progress indicators
//
// Accent colors match the monitor dashboard's neon palette so the CLI and
// the full-screen views feel like one tool.
//
// # Spinner Usage
//
// The Spinner type provides an animated indicator for operations:
//
//	s := ui.NewSpinner("Scanning 192.168.1.0/24")
//	s.Start()
//	// ... do work ...
//	s.Success() // or s.Fail() or s.Skip()
//
// The spinner handles terminal output, clearing lines, and timing display.
//
// # Locate Display
//
// LocateDisplay renders address-hunting progress for a device, one line
// per candidate, wired straight into the discover package's event stream:
//
//	ld := ui.NewLocateDisplay(os.Stdout)
//	ld.Start()
//	locator.SetEventHandler(ld.HandleEvent)
//	addr, err := locator.Locate(ctx, spec)
//	ld.Success("pi4", addr) // or ld.Fail(err.Error())
//
// # Fleet Progress
//
// FleetProgress shows one animated row per device while a command fans out
// across the fleet, then ExecSummary recaps the failures.
package ui
