package cli

import (
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	scanSubnetFlag      string
	scanHintsFlag       string
	scanStrategyFlag    string
	scanTimeoutFlag     string
	scanConcurrencyFlag int
	scanPortFlag        int

	execFlags       CommonFlags
	execTagFlag     string
	execTimeoutFlag string

	attachFlags CommonFlags

	logsFlags    CommonFlags
	logsUnitFlag string
	logsTailFlag int

	monitorDevicesFlag  string
	monitorIntervalFlag string
	monitorInsecureFlag bool

	serveListenFlag string

	rebootYesFlag   bool
	rebootFlags     CommonFlags
	poweroffYesFlag bool
	poweroffFlags   CommonFlags

	initForce          bool
	initNonInteractive bool
	initNameFlag       string
	initAddressFlag    string
	initUserFlag       string
	initPortFlag       int
	initKeyFlag        string
	initTagsFlag       string
)

// scanCmd sweeps the network for boards answering SSH
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find boards on the network",
	Long: `Probe the network for devices answering SSH.

Without flags, the configured discovery hints are tried first and the
configured subnet swept when they come up empty. Results stream in as
probes complete.

Examples:
  pifleet scan
  pifleet scan --subnet 192.168.4.0/24
  pifleet scan --hints pi4.local,pi5.local
  pifleet scan --strategy reachability --probe-timeout 1s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return scanCommand(scanOptions{
			Subnet:      scanSubnetFlag,
			Hints:       scanHintsFlag,
			Strategy:    scanStrategyFlag,
			Timeout:     scanTimeoutFlag,
			Concurrency: scanConcurrencyFlag,
			Port:        scanPortFlag,
		})
	},
}

// devicesCmd lists the registered fleet
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List registered devices",
	Long: `List every device the config file registers.

Examples:
  pifleet devices
  pifleet devices --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return devicesCommand()
	},
}

// execCmd runs a one-shot command on one device or a tagged set
var execCmd = &cobra.Command{
	Use:   "exec [device] <command>",
	Short: "Run a command on a device or a tagged set",
	Long: `Execute a command over SSH and stream its output.

The first argument names a registered device; the rest form the command.
With --tag the command runs on every matching device in parallel and the
first argument is part of the command. Without a device argument an
interactive picker opens.

Examples:
  pifleet exec den-pi uptime
  pifleet exec den-pi -- sudo systemctl restart picam
  pifleet exec --tag camera -- vcgencmd measure_temp
  pifleet exec --tag all --timeout 2m -- sudo apt-get update`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execCommand(args, execTagFlag, execTimeoutFlag, execFlags)
	},
}

// attachCmd opens an interactive shell on a device
var attachCmd = &cobra.Command{
	Use:   "attach [device]",
	Short: "Open an interactive shell on a device",
	Long: `Attach the local terminal to a shell on the device.

The local terminal switches to raw mode and resizes follow your window.
Exit the remote shell (ctrl-d or 'exit') to detach.

Examples:
  pifleet attach den-pi
  pifleet attach`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := ""
		if len(args) > 0 {
			device = args[0]
		}
		return attachCommand(device, attachFlags)
	},
}

// logsCmd tails a systemd unit's journal on a device
var logsCmd = &cobra.Command{
	Use:   "logs [device]",
	Short: "Tail a systemd unit's logs on a device",
	Long: `Follow a unit's journal on the device, like journalctl -f but from here.

Starts with the most recent lines and streams new ones until interrupted.

Examples:
  pifleet logs den-pi --unit picam
  pifleet logs den-pi --unit picam --tail 50
  pifleet logs --unit ssh`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := ""
		if len(args) > 0 {
			device = args[0]
		}
		return logsCommand(device, logsUnitFlag, logsTailFlag, logsFlags)
	},
}

// monitorCmd starts the TUI fleet dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live metrics dashboard for the whole fleet",
	Long: `Start an interactive dashboard showing live metrics for every
registered device: CPU, memory, disk, network, and temperature.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  s           Cycle sort order
  up/k        Select previous device
  down/j      Select next device
  Enter       Expand selected device
  Esc         Collapse / go back
  ?           Show help

Examples:
  pifleet monitor
  pifleet monitor --devices den-pi,attic-pi
  pifleet monitor --interval 5s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitorCommand(monitorDevicesFlag, monitorIntervalFlag, monitorInsecureFlag)
	},
}

// serveCmd runs the HTTP/WebSocket API daemon
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet API daemon",
	Long: `Serve the fleet over HTTP and WebSocket: device inventory, one-shot
exec, metrics snapshots and streams, log tails, and terminal bridges.
Prometheus meters live at /metrics.

Runs until interrupted; sessions and streams are torn down cleanly on
SIGINT/SIGTERM.

Examples:
  pifleet serve
  pifleet serve --listen :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(serveListenFlag)
	},
}

// rebootCmd restarts a device after confirming
var rebootCmd = &cobra.Command{
	Use:   "reboot [device]",
	Short: "Reboot a device",
	Long: `Restart a device over SSH via passwordless sudo.

Asks for confirmation unless --yes is given. The connection dropping as
the board goes down is expected and not reported as a failure.

Examples:
  pifleet reboot den-pi
  pifleet reboot den-pi --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := ""
		if len(args) > 0 {
			device = args[0]
		}
		return powerCommand(device, "reboot", rebootYesFlag, rebootFlags)
	},
}

// poweroffCmd shuts a device down after confirming
var poweroffCmd = &cobra.Command{
	Use:   "poweroff [device]",
	Short: "Power a device off",
	Long: `Shut a device down over SSH via passwordless sudo.

Asks for confirmation unless --yes is given. Powered-off boards need a
physical power cycle to come back; there is no remote wake here.

Examples:
  pifleet poweroff attic-pi
  pifleet poweroff attic-pi --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := ""
		if len(args) > 0 {
			device = args[0]
		}
		return powerCommand(device, "poweroff", poweroffYesFlag, poweroffFlags)
	},
}

// initCmd sets up the config file and registers devices
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file and register devices",
	Long: `Set up pifleet: create the config file and register your boards.

Interactively imports hosts from ~/.ssh/config or takes addresses by hand,
probing each one before saving. With --non-interactive a single device is
registered from flags.

Examples:
  pifleet init
  pifleet init --non-interactive --name den-pi --address 192.168.4.61
  pifleet init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(initOptions{
			Force:          initForce,
			NonInteractive: initNonInteractive,
			Name:           initNameFlag,
			Address:        initAddressFlag,
			User:           initUserFlag,
			Port:           initPortFlag,
			KeyPath:        initKeyFlag,
			Tags:           initTagsFlag,
		})
	},
}

func init() {
	// scan command flags
	scanCmd.Flags().StringVar(&scanSubnetFlag, "subnet", "", "CIDR to sweep (e.g. 192.168.4.0/24)")
	scanCmd.Flags().StringVar(&scanHintsFlag, "hints", "", "names to try first (comma-separated)")
	scanCmd.Flags().StringVar(&scanStrategyFlag, "strategy", "", "probe strategy: service-probe, reachability, or link-table")
	scanCmd.Flags().StringVar(&scanTimeoutFlag, "probe-timeout", "", "per-address probe timeout (e.g. 3s, 500ms)")
	scanCmd.Flags().IntVar(&scanConcurrencyFlag, "concurrency", 0, "max in-flight probes")
	scanCmd.Flags().IntVar(&scanPortFlag, "port", 0, "service port to probe")

	// exec command flags
	execCmd.Flags().StringVar(&execTagFlag, "tag", "", "run on every device with this tag")
	execCmd.Flags().StringVar(&execTimeoutFlag, "timeout", "", "command timeout (e.g. 30s, 2m)")
	AddCommonFlags(execCmd, &execFlags)

	// attach command flags
	AddCommonFlags(attachCmd, &attachFlags)

	// logs command flags
	logsCmd.Flags().StringVar(&logsUnitFlag, "unit", "", "systemd unit to tail (required)")
	logsCmd.Flags().IntVar(&logsTailFlag, "tail", 0, "historical lines to start with")
	AddCommonFlags(logsCmd, &logsFlags)

	// monitor command flags
	monitorCmd.Flags().StringVar(&monitorDevicesFlag, "devices", "", "limit to specific devices (comma-separated ids)")
	monitorCmd.Flags().StringVar(&monitorIntervalFlag, "interval", "", "refresh interval (e.g. 2s, 5s)")
	monitorCmd.Flags().BoolVar(&monitorInsecureFlag, "insecure", false, "skip host key verification (lab networks only)")

	// serve command flags
	serveCmd.Flags().StringVar(&serveListenFlag, "listen", "", "bind address (default from config, :8443)")

	// power command flags
	rebootCmd.Flags().BoolVarP(&rebootYesFlag, "yes", "y", false, "skip the confirmation prompt")
	AddCommonFlags(rebootCmd, &rebootFlags)
	poweroffCmd.Flags().BoolVarP(&poweroffYesFlag, "yes", "y", false, "skip the confirmation prompt")
	AddCommonFlags(poweroffCmd, &poweroffFlags)

	// init command flags
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "no prompts; register one device from flags")
	initCmd.Flags().StringVar(&initNameFlag, "name", "", "device name (non-interactive)")
	initCmd.Flags().StringVar(&initAddressFlag, "address", "", "device address (non-interactive)")
	initCmd.Flags().StringVar(&initUserFlag, "user", "", "SSH user (non-interactive)")
	initCmd.Flags().IntVar(&initPortFlag, "port", 0, "SSH port (non-interactive)")
	initCmd.Flags().StringVar(&initKeyFlag, "key", "", "private key path (non-interactive)")
	initCmd.Flags().StringVar(&initTagsFlag, "tags", "", "tags, comma-separated (non-interactive)")

	// Register all commands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(poweroffCmd)
	rootCmd.AddCommand(initCmd)
}
