package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Global flags available on every command.
var (
	configFlag  string
	verboseFlag bool
)

// rootCmd is the base command all subcommands hang off.
var rootCmd = &cobra.Command{
	Use:   "pifleet",
	Short: "SSH fleet control for Raspberry Pis and other small boards",
	Long: `pifleet finds, watches, and drives a fleet of single-board computers
over plain SSH. No agent runs on the boards; everything works against a
stock sshd.

Start with 'pifleet init' to register your devices, then:

  pifleet scan                 Find boards on the network
  pifleet exec den-pi uptime   Run a command on one device
  pifleet exec --tag camera -- sudo systemctl restart picam
  pifleet monitor              Live dashboard for the whole fleet
  pifleet serve                HTTP/WebSocket API daemon`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			os.Setenv("PIFLEET_DEBUG", "1")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default searches ./pifleet.yaml, ~/.config/pifleet/)")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")

	viper.SetEnvPrefix("PIFLEET")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

// Config returns the config file path from --config or PIFLEET_CONFIG.
// Empty means search the default locations.
func Config() string {
	if configFlag != "" {
		return configFlag
	}
	return viper.GetString("config")
}

// Verbose reports whether --verbose was set.
func Verbose() bool {
	return verboseFlag
}

// Execute runs the root command and turns errors into process exit codes.
// A remote command's non-zero exit propagates as-is; everything else
// exits 1 after rendering the error.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if code, ok := errors.GetExitCode(err); ok {
		os.Exit(code)
	}

	if machineMode {
		_ = WriteJSONFromError(os.Stdout, err)
	} else {
		printError(err)
	}
	os.Exit(1)
}

// printError renders an error for humans. Structured errors format
// themselves; cobra's own errors (unknown command, bad flag) get the
// usage hint they expect.
func printError(err error) {
	msg := err.Error()
	fmt.Fprintln(os.Stderr, msg)
	if isUsageError(err) {
		fmt.Fprintln(os.Stderr, "Run 'pifleet --help' for usage.")
	}
}

// isUsageError detects cobra's parse-level failures, which deserve a help
// pointer rather than a suggestion line.
func isUsageError(err error) bool {
	var fleetErr *errors.Error
	if stderrors.As(err, &fleetErr) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "accepts") ||
		strings.Contains(msg, "requires at least")
}
