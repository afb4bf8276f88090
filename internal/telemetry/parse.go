package telemetry

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

// cpuSample holds jiffies counters for one /proc/stat line.
type cpuSample struct {
	total int64
	idle  int64
}

// parseProcStat extracts jiffies counters from /proc/stat keyed by label:
// "cpu" for the aggregate line, "cpu0".."cpuN" per core.
func parseProcStat(raw string) (map[string]cpuSample, error) {
	samples := make(map[string]cpuSample)
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		var total, idle int64
		ok := true
		for i, f := range fields[1:] {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				ok = false
				break
			}
			total += v
			if i == 3 {
				idle = v
			}
		}
		if ok {
			samples[fields[0]] = cpuSample{total: total, idle: idle}
		}
	}
	if _, found := samples["cpu"]; !found {
		return nil, errors.New(errors.ErrParse, "No aggregate cpu line in /proc/stat output", "")
	}
	return samples, nil
}

// cpuPercent computes utilization from two jiffies samples. A zero or
// negative total delta (counter reset, duplicate read) yields 0.
func cpuPercent(prev, cur cpuSample) float64 {
	totalDelta := cur.total - prev.total
	if totalDelta <= 0 {
		return 0
	}
	idleDelta := cur.idle - prev.idle
	pct := float64(totalDelta-idleDelta) / float64(totalDelta) * 100
	return round2(clampPercent(pct))
}

// coreNames returns the per-core labels of a stat sample in core order.
func coreNames(samples map[string]cpuSample) []string {
	names := make([]string, 0, len(samples))
	for name := range samples {
		if name != "cpu" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(names[i], "cpu"))
		b, _ := strconv.Atoi(strings.TrimPrefix(names[j], "cpu"))
		return a < b
	})
	return names
}

// parseLoadavg reads the three load averages from /proc/loadavg.
func parseLoadavg(raw string) ([3]float64, error) {
	var load [3]float64
	fields := strings.Fields(raw)
	if len(fields) < 3 {
		return load, errors.New(errors.ErrParse, "Unexpected /proc/loadavg format", "")
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return load, errors.WrapWithCode(err, errors.ErrParse, "Unexpected /proc/loadavg format", "")
		}
		load[i] = round2(v)
	}
	return load, nil
}

// memCounters holds /proc/meminfo derived values in bytes.
type memCounters struct {
	total     int64
	used      int64
	available int64
	free      int64
	cached    int64
	buffers   int64
	percent   float64
	swapTotal int64
	swapUsed  int64
	swapFree  int64
}

var meminfoValue = regexp.MustCompile(`(\d+)`)

// parseMeminfo reads memory counters from /proc/meminfo. Values in the file
// are kB; everything here is converted to bytes. MemAvailable falls back to
// MemFree on kernels that don't report it.
func parseMeminfo(raw string) (memCounters, error) {
	info := make(map[string]int64)
	for _, line := range strings.Split(raw, "\n") {
		key, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		match := meminfoValue.FindString(rest)
		if match == "" {
			continue
		}
		v, err := strconv.ParseInt(match, 10, 64)
		if err != nil {
			continue
		}
		info[strings.TrimSpace(key)] = v * 1024
	}

	var m memCounters
	m.total = info["MemTotal"]
	if m.total <= 0 {
		return m, errors.New(errors.ErrParse, "No MemTotal in /proc/meminfo output", "")
	}
	m.free = info["MemFree"]
	m.available = info["MemAvailable"]
	if m.available == 0 {
		m.available = m.free
	}
	m.cached = info["Cached"]
	m.buffers = info["Buffers"]
	m.used = m.total - m.available
	if m.used < 0 {
		m.used = 0
	}
	m.percent = round2(clampPercent(float64(m.used) / float64(m.total) * 100))
	m.swapTotal = info["SwapTotal"]
	m.swapFree = info["SwapFree"]
	m.swapUsed = m.swapTotal - m.swapFree
	if m.swapUsed < 0 {
		m.swapUsed = 0
	}
	return m, nil
}

// parseNetDev sums rx/tx byte counters across all interfaces except
// loopback. Totals feed the rate delta, so absolute values don't matter.
func parseNetDev(raw string) (rx, tx int64, err error) {
	if raw == "" {
		return 0, 0, errors.New(errors.ErrParse, "Empty /proc/net/dev output", "")
	}
	for _, line := range strings.Split(raw, "\n") {
		name, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), "lo") {
			continue
		}
		cols := strings.Fields(rest)
		if len(cols) < 9 {
			continue
		}
		r, rerr := strconv.ParseInt(cols[0], 10, 64)
		t, terr := strconv.ParseInt(cols[8], 10, 64)
		if rerr != nil || terr != nil {
			continue
		}
		rx += r
		tx += t
	}
	return rx, tx, nil
}

// parseUptime reads whole seconds since boot from /proc/uptime.
func parseUptime(raw string) (int64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, errors.New(errors.ErrParse, "Empty /proc/uptime output", "")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrParse, "Unexpected /proc/uptime format", "")
	}
	return int64(v), nil
}

// parseCoreCount reads the nproc output.
func parseCoreCount(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return 0, errors.New(errors.ErrParse, "Unexpected nproc output", "")
	}
	return v, nil
}

// parseProcessTable reads a ps table of pid/comm/%cpu/%mem rows, skipping
// the header and any row that doesn't parse. At most limit rows are kept.
func parseProcessTable(raw string, limit int) ([]ProcessStat, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 {
		return nil, errors.New(errors.ErrParse, "Empty ps output", "")
	}
	procs := make([]ProcessStat, 0, limit)
	for _, line := range lines[1:] {
		if len(procs) >= limit {
			break
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		cpu, cpuErr := strconv.ParseFloat(fields[2], 64)
		mem, memErr := strconv.ParseFloat(fields[3], 64)
		if cpuErr != nil || memErr != nil {
			continue
		}
		procs = append(procs, ProcessStat{
			PID:        pid,
			Name:       fields[1],
			CPUPercent: round2(cpu),
			MemPercent: round2(mem),
		})
	}
	return procs, nil
}

// parseProcessCount reads the wc -l total.
func parseProcessCount(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return 0, errors.New(errors.ErrParse, "Unexpected process count output", "")
	}
	return v, nil
}

// diskUsage holds the parsed df table: totals in bytes plus per-mount rows.
type diskUsage struct {
	total   int64
	used    int64
	percent float64
	mounts  []MountUsage
}

var pcentDigits = regexp.MustCompile(`\d+`)

// parseDiskTable reads the POSIX df output (1K blocks). The first data row
// seeds the totals; a later "/" row overrides them so the root filesystem
// wins over whatever df lists first.
func parseDiskTable(raw string) (diskUsage, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 {
		return diskUsage{}, errors.New(errors.ErrParse, "Empty df output", "")
	}
	var d diskUsage
	haveTotals := false
	for _, line := range lines[1:] {
		cols := strings.Fields(line)
		if len(cols) < 6 {
			continue
		}
		size, sizeErr := strconv.ParseInt(cols[3], 10, 64)
		used, usedErr := strconv.ParseInt(cols[4], 10, 64)
		if sizeErr != nil || usedErr != nil {
			continue
		}
		totalBytes := size * 1024
		usedBytes := used * 1024
		percent := 0.0
		if digits := pcentDigits.FindString(cols[5]); digits != "" {
			if v, err := strconv.ParseFloat(digits, 64); err == nil {
				percent = clampPercent(v)
			}
		}
		d.mounts = append(d.mounts, MountUsage{
			Device:     cols[0],
			Mountpoint: cols[1],
			Fstype:     cols[2],
			TotalGB:    bytesToGB(totalBytes),
			UsedGB:     bytesToGB(usedBytes),
			Percent:    percent,
		})
		if !haveTotals || cols[1] == "/" {
			d.total = totalBytes
			d.used = usedBytes
			d.percent = percent
			haveTotals = true
		}
	}
	if !haveTotals {
		return diskUsage{}, errors.New(errors.ErrParse, "No usable rows in df output", "")
	}
	return d, nil
}

var tempValue = regexp.MustCompile(`temp=([\d.]+)`)

// parseTemperature reads the vcgencmd measure_temp line. Empty output means
// the host has no sensor, which is not an error.
func parseTemperature(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	match := tempValue.FindStringSubmatch(raw)
	if match == nil {
		return nil, errors.New(errors.ErrParse, "Unexpected vcgencmd output", "")
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrParse, "Unexpected vcgencmd output", "")
	}
	t := round2(v)
	return &t, nil
}
