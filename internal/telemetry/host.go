package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

// hostInfoCommand gathers static host identity in one exec. Sections:
// 0. hostname
// 1. hostname -I - assigned addresses, first one is the primary
// 2. uname -m - architecture
// 3. uname -r - kernel release
// 4. /etc/os-release - distro identity
// 5. device-tree model - board name, present on Pi-class hardware
// 6. /proc/uptime
var hostInfoCommand = strings.Join([]string{
	`hostname 2>/dev/null`,
	`hostname -I 2>/dev/null`,
	`uname -m 2>/dev/null`,
	`uname -r 2>/dev/null`,
	`cat /etc/os-release 2>/dev/null`,
	`cat /proc/device-tree/model 2>/dev/null || true`,
	`cat /proc/uptime 2>/dev/null`,
}, `; echo "`+outputSeparator+`"; `)

const (
	hostSecName = iota
	hostSecAddr
	hostSecArch
	hostSecKernel
	hostSecRelease
	hostSecModel
	hostSecUptime
)

// CollectHostInfo reads the static identity of the runner's host. Fields
// the host doesn't expose come back empty rather than failing the call.
func CollectHostInfo(ctx context.Context, runner Runner) (HostInfo, error) {
	result, err := runner.Execute(ctx, hostInfoCommand)
	if err != nil {
		return HostInfo{}, err
	}
	if strings.TrimSpace(result.Stdout) == "" {
		return HostInfo{}, errors.New(errors.ErrParse,
			fmt.Sprintf("Host probe on %s produced no output", runner.Address()),
			"")
	}

	sections := splitSections(result.Stdout)
	section := func(i int) string {
		if i < len(sections) {
			return sections[i]
		}
		return ""
	}

	info := HostInfo{
		Hostname: section(hostSecName),
		Arch:     section(hostSecArch),
		Kernel:   section(hostSecKernel),
		OS:       parseOSRelease(section(hostSecRelease)),
	}
	if fields := strings.Fields(section(hostSecAddr)); len(fields) > 0 {
		info.Address = fields[0]
	}
	// Device-tree strings are NUL terminated.
	info.Model = strings.Trim(section(hostSecModel), "\x00")
	info.RaspberryPi = strings.Contains(strings.ToLower(info.Model), "raspberry")
	if up, err := parseUptime(section(hostSecUptime)); err == nil {
		info.UptimeSeconds = up
	}
	return info, nil
}

// parseOSRelease pulls the distro display name out of /etc/os-release.
func parseOSRelease(raw string) string {
	var name, pretty string
	for _, line := range strings.Split(raw, "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.TrimSpace(key) {
		case "PRETTY_NAME":
			pretty = value
		case "NAME":
			name = value
		}
	}
	if pretty != "" {
		return pretty
	}
	return name
}
