package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/pifleet/internal/config"
	"github.com/rileyhilliard/pifleet/internal/discover"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/ui"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
	"gopkg.in/yaml.v3"
)

// initOptions holds options for the init command.
type initOptions struct {
	Force          bool   // Start a fresh config even if one exists
	NonInteractive bool   // Skip prompts, take everything from flags
	Name           string // Device name (non-interactive)
	Address        string // Device address (non-interactive)
	User           string // SSH user (non-interactive)
	Port           int    // SSH port (non-interactive)
	KeyPath        string // Private key path (non-interactive)
	Tags           string // Comma-separated tags (non-interactive)
}

// initCommand sets up a fleet config and walks the user through registering
// devices. An existing config is added to, not overwritten, unless --force.
func initCommand(opts initOptions) error {
	path, fresh, err := initConfigPath(opts.Force)
	if err != nil {
		return err
	}

	if fresh {
		if err := writeFreshConfig(path); err != nil {
			return err
		}
		fmt.Printf("%s Created %s\n\n", ui.SymbolSuccess, path)
	} else {
		fmt.Printf("Adding devices to %s\n\n", path)
	}

	if opts.NonInteractive {
		dev, err := deviceFromFlags(opts)
		if err != nil {
			return err
		}
		if err := config.AddDevice(path, dev); err != nil {
			return err
		}
		fmt.Printf("%s Registered %s (%s)\n", ui.SymbolSuccess, dev.Name, dev.Address)
		return nil
	}

	if !ui.IsTerminal(os.Stdin) {
		return errors.New(errors.ErrConfig,
			"init needs a terminal for its prompts",
			"In scripts, pass --non-interactive with --name and --address.")
	}

	added := 0
	for {
		dev, done, err := promptDevice()
		if err != nil {
			return err
		}
		if done {
			break
		}

		if err := testDevice(dev); err != nil {
			fmt.Printf("\n%s Couldn't reach '%s': %s\n\n", ui.SymbolFail, dev.Address, errorMessage(err))

			var saveAnyway bool
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title("Register it anyway? (You can fix the connection later)").
						Value(&saveAnyway),
				),
			)
			if formErr := form.Run(); formErr != nil || !saveAnyway {
				fmt.Println("Skipped.")
				if !askAnother() {
					break
				}
				continue
			}
		}

		if err := config.AddDevice(path, dev); err != nil {
			fmt.Printf("%s %s\n", ui.SymbolFail, errorMessage(err))
		} else {
			added++
			fmt.Printf("%s Registered %s (%s)\n", ui.SymbolSuccess, dev.Name, dev.Address)
		}

		if !askAnother() {
			break
		}
	}

	if added > 0 {
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  pifleet devices              - List your fleet")
		fmt.Println("  pifleet exec <device> uptime - Run a command")
		fmt.Println("  pifleet monitor              - Watch the dashboard")
	}
	return nil
}

// initConfigPath decides where the config lives and whether it needs
// creating. --force resets an existing file to defaults.
func initConfigPath(force bool) (string, bool, error) {
	if explicit := Config(); explicit != "" {
		_, err := os.Stat(explicit)
		exists := err == nil
		return explicit, !exists || force, nil
	}

	found, err := config.Find("")
	if err != nil {
		return "", false, err
	}
	if found != "" {
		return found, force, nil
	}
	return config.DefaultPath(), true, nil
}

// writeFreshConfig writes a starter config to path, creating parent
// directories as needed. Only the keys an operator edits day one go in;
// the loader fills defaults for every section a file doesn't set.
func writeFreshConfig(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't create "+dir,
				"Check directory permissions")
		}
	}

	starter := struct {
		Version  int             `yaml:"version"`
		Defaults config.Defaults `yaml:"defaults"`
		Devices  []config.Device `yaml:"devices"`
	}{
		Version:  config.CurrentConfigVersion,
		Defaults: config.DefaultConfig().Defaults,
		Devices:  []config.Device{},
	}
	data, err := yaml.Marshal(starter)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to generate config",
			"This shouldn't happen - please report this bug")
	}

	header := `# pifleet configuration
# Devices are the boards your fleet knows by name; 'pifleet init' adds more.
# Timeouts, discovery, and the serve daemon all have defaults; see
# https://github.com/rileyhilliard/pifleet for every tunable.

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", path),
			"Check directory permissions")
	}
	return nil
}

// deviceFromFlags assembles a device entry from non-interactive flags.
func deviceFromFlags(opts initOptions) (config.Device, error) {
	if opts.Name == "" || opts.Address == "" {
		return config.Device{}, errors.New(errors.ErrConfig,
			"Non-interactive init needs --name and --address",
			"e.g. pifleet init --non-interactive --name den-pi --address 192.168.1.40")
	}
	return config.Device{
		Name:    opts.Name,
		Address: opts.Address,
		User:    opts.User,
		Port:    opts.Port,
		KeyPath: opts.KeyPath,
		Tags:    splitList(opts.Tags),
	}, nil
}

// promptDevice collects one device entry. Known ~/.ssh/config hosts are
// offered first; picking one prefills the form. done reports that the user
// cancelled out of the wizard.
func promptDevice() (config.Device, bool, error) {
	var draft config.Device
	var portStr, tagsStr string

	entries, err := sshx.ParseConfig()
	if err == nil {
		// Offering a host we can't authenticate to just moves the failure to
		// the connection test, so filter to ones with a usable key.
		entries = sshx.FilterHostsWithKeys(entries)
	}
	if len(entries) > 0 {
		hosts := make([]ui.SSHHostInfo, len(entries))
		for i, e := range entries {
			hosts[i] = ui.SSHHostInfo{
				Alias:    e.Alias,
				Hostname: e.Hostname,
				User:     e.User,
				Port:     e.Port,
			}
		}

		choice, cancelled, err := ui.PickSSHHost(hosts)
		if err != nil {
			return config.Device{}, false, err
		}
		if cancelled {
			return config.Device{}, true, nil
		}
		if choice != nil {
			draft.Name = choice.Alias
			draft.Address = choice.Hostname
			if draft.Address == "" {
				draft.Address = choice.Alias
			}
			draft.User = choice.User
			portStr = choice.Port

			for _, e := range entries {
				if e.Alias == choice.Alias {
					draft.KeyPath = e.IdentityFile
					break
				}
			}
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Device name").
				Description("How you'll refer to this board on the command line").
				Placeholder("den-pi").
				Value(&draft.Name).
				Validate(validateDeviceName),
			huh.NewInput().
				Title("Address").
				Description("Hostname, mDNS name, or IP address").
				Placeholder("raspberrypi.local or 192.168.1.40").
				Value(&draft.Address).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("address is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("SSH user (optional)").
				Description("Login on the board; empty uses defaults.user").
				Placeholder("pi").
				Value(&draft.User),
			huh.NewInput().
				Title("SSH port (optional)").
				Description("Empty uses defaults.port").
				Placeholder("22").
				Value(&portStr).
				Validate(validatePortString),
			huh.NewInput().
				Title("Tags (optional)").
				Description("Comma-separated, for fleet-wide commands like --tag camera").
				Placeholder("camera, outdoor").
				Value(&tagsStr),
		),
	)

	if err := form.Run(); err != nil {
		return config.Device{}, false, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive")
	}

	if portStr != "" {
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err == nil {
			draft.Port = port
		}
	}
	draft.Tags = splitList(tagsStr)
	return draft, false, nil
}

// validateDeviceName mirrors the config validator so the wizard rejects a
// name the loader would refuse later.
func validateDeviceName(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("device name is required")
	}
	if strings.Contains(s, "@") {
		return fmt.Errorf("that looks like an SSH string; the login goes in the user field")
	}
	for _, r := range s {
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("stick to letters, digits, and . _ -")
		}
	}
	return nil
}

func validatePortString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("ports run from 1 to 65535")
	}
	return nil
}

// testDevice service-probes the address before it goes into the config.
func testDevice(dev config.Device) error {
	fmt.Println()
	spinner := ui.NewSpinner("Testing connection to " + dev.Address)
	spinner.Start()

	locator := discover.NewLocator(discover.NewResolver())
	if dev.Port != 0 {
		locator.SetPort(dev.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := locator.Locate(ctx, discover.TargetSpec{Fixed: dev.Address}); err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	return nil
}

func askAnother() bool {
	var more bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Add another device?").
				Value(&more),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return more
}
