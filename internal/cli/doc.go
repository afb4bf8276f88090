// Package cli implements the pifleet command-line interface.
//
// Commands are organized as follows:
//   - commands.go: command definitions and flag registration
//   - root.go: root command, global flags, and Execute
//   - scan.go, exec.go, attach.go, logs.go, power.go: one-shot fleet operations
//   - monitor.go: live dashboard, serve.go: the API daemon
//   - devices.go, init.go: registry listing and config setup
//   - json.go: machine-readable output for automation
//
// Each command file holds the implementation the cobra definition in
// commands.go delegates to. Global flags (--config, --json, --verbose) are
// defined on the root command in root.go and read through accessors so
// command implementations never touch cobra directly.
package cli
