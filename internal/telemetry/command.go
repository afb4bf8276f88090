package telemetry

import (
	"fmt"
	"strings"
)

// Separator used to split batched probe output.
const outputSeparator = "---"

// Section indices into the batched probe output. The probe emits every
// section even when an individual command fails, so indices are stable.
const (
	secStat = iota
	secLoad
	secMeminfo
	secNetDev
	secUptime
	secNproc
	secTopCPU
	secTopMem
	secProcCount
	secDisk
	secTemp
	sectionCount
)

// batchCommand returns a single command that collects every metric source in
// one remote exec. Sections are separated by "---" and appear in this order:
// 0. /proc/stat - CPU jiffies
// 1. /proc/loadavg - load averages
// 2. /proc/meminfo - memory counters
// 3. /proc/net/dev - interface byte counters
// 4. /proc/uptime - seconds since boot
// 5. nproc - core count
// 6. ps sorted by CPU - top-N plus header
// 7. ps sorted by memory - top-N plus header
// 8. ps pid count - total process count
// 9. df - per-mount usage in 1K blocks
// 10. vcgencmd - SoC temperature (absent on non-Pi hosts)
func batchCommand(topN int) string {
	head := topN + 1
	probes := []string{
		`cat /proc/stat 2>/dev/null`,
		`cat /proc/loadavg 2>/dev/null`,
		`cat /proc/meminfo 2>/dev/null`,
		`cat /proc/net/dev 2>/dev/null`,
		`cat /proc/uptime 2>/dev/null`,
		`nproc 2>/dev/null`,
		fmt.Sprintf(`ps -eo pid,comm,%%cpu,%%mem --sort=-%%cpu 2>/dev/null | head -n %d`, head),
		fmt.Sprintf(`ps -eo pid,comm,%%cpu,%%mem --sort=-%%mem 2>/dev/null | head -n %d`, head),
		`ps -eo pid --no-headers 2>/dev/null | wc -l`,
		`df -P -k --output=source,target,fstype,size,used,pcent 2>/dev/null`,
		`vcgencmd measure_temp 2>/dev/null || true`,
	}
	return strings.Join(probes, `; echo "`+outputSeparator+`"; `)
}

// splitSections cuts batched output back into its numbered sections, trimmed.
func splitSections(output string) []string {
	parts := strings.Split(output, outputSeparator+"\n")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
