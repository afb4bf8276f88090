package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

const (
	// DefaultInterval is the sampling cadence when none is configured.
	DefaultInterval = 2 * time.Second
	// DefaultTopN bounds the process rankings in a snapshot.
	DefaultTopN = 5
)

// Runner executes the probe battery on some host. session.Session satisfies
// it for remote hosts; Local covers the controller's own host.
type Runner interface {
	Address() string
	Execute(ctx context.Context, command string) (sshx.Result, error)
}

// Config tunes a Sampler. Zero values pick the defaults.
type Config struct {
	// Interval is the expected sampling cadence. Counter baselines older
	// than twice this are discarded rather than turned into rate spikes.
	Interval time.Duration
	TopN     int
	Clock    clock.Clock
	Log      logger.Logger
}

func (c *Config) fill() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Log == nil {
		c.Log = logger.Noop()
	}
}

// Sampler turns probe output into metrics snapshots. It retains the previous
// raw counters per host so CPU utilization and network rates come out as
// deltas between consecutive samples; the first sample of a host reports
// zero for those fields.
type Sampler struct {
	cfg Config

	mu   sync.Mutex
	prev map[string]counterSet
}

// counterSet is the raw counter baseline kept between samples of one host.
type counterSet struct {
	at    time.Time
	cpu   map[string]cpuSample
	rx    int64
	tx    int64
	netOK bool
}

func NewSampler(cfg Config) *Sampler {
	cfg.fill()
	return &Sampler{cfg: cfg, prev: make(map[string]counterSet)}
}

// Interval reports the cadence the sampler was configured for.
func (s *Sampler) Interval() time.Duration {
	return s.cfg.Interval
}

// Sample runs the probe battery on the runner's host and assembles a
// snapshot. Transport errors fail the whole sample; a parse failure in one
// section only marks that section's fields degraded.
func (s *Sampler) Sample(ctx context.Context, runner Runner) (*MetricsSnapshot, error) {
	result, err := runner.Execute(ctx, batchCommand(s.cfg.TopN))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Stdout) == "" {
		return nil, errors.New(errors.ErrParse,
			fmt.Sprintf("Metrics probe on %s produced no output", runner.Address()),
			"The host may not expose /proc. Only Linux hosts are supported.")
	}
	return s.assemble(runner.Address(), splitSections(result.Stdout)), nil
}

// Forget drops the counter baseline for a host. Call it when the host's
// session closes so a later reconnect starts fresh instead of computing
// rates across the outage.
func (s *Sampler) Forget(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prev, address)
}

func (s *Sampler) assemble(address string, sections []string) *MetricsSnapshot {
	now := s.cfg.Clock.Now()
	snap := &MetricsSnapshot{Timestamp: now}
	degrade := func(group string, err error) {
		snap.Degraded = append(snap.Degraded, group)
		s.cfg.Log.Debug("metrics: %s unavailable on %s: %v", group, address, err)
	}
	section := func(i int) string {
		if i < len(sections) {
			return sections[i]
		}
		return ""
	}

	cpu, cpuErr := parseProcStat(section(secStat))
	rx, tx, netErr := parseNetDev(section(secNetDev))

	s.mu.Lock()
	prev, havePrev := s.prev[address]
	if havePrev && now.Sub(prev.at) > 2*s.cfg.Interval {
		// Stale baseline. Rates computed across the gap would be garbage,
		// so treat this sample as the first.
		havePrev = false
	}
	next := counterSet{at: now}
	if cpuErr == nil {
		next.cpu = cpu
	}
	if netErr == nil {
		next.rx, next.tx, next.netOK = rx, tx, true
	}
	s.prev[address] = next
	s.mu.Unlock()

	if cpuErr != nil {
		degrade("cpu", cpuErr)
	} else {
		names := coreNames(cpu)
		snap.CPUCores = len(names)
		snap.CPUPerCore = make([]float64, len(names))
		if havePrev && prev.cpu != nil {
			snap.CPUPercent = cpuPercent(prev.cpu["cpu"], cpu["cpu"])
			for i, name := range names {
				if p, ok := prev.cpu[name]; ok {
					snap.CPUPerCore[i] = cpuPercent(p, cpu[name])
				}
			}
		}
	}
	if snap.CPUCores == 0 {
		if cores, err := parseCoreCount(section(secNproc)); err == nil {
			snap.CPUCores = cores
		} else {
			degrade("cores", err)
		}
	}

	if load, err := parseLoadavg(section(secLoad)); err == nil {
		snap.Load1, snap.Load5, snap.Load15 = load[0], load[1], load[2]
	} else {
		degrade("load", err)
	}

	if mem, err := parseMeminfo(section(secMeminfo)); err == nil {
		snap.MemTotalMB = bytesToMB(mem.total)
		snap.MemUsedMB = bytesToMB(mem.used)
		snap.MemAvailableMB = bytesToMB(mem.available)
		snap.MemFreeMB = bytesToMB(mem.free)
		snap.MemCachedMB = bytesToMB(mem.cached)
		snap.MemBuffersMB = bytesToMB(mem.buffers)
		snap.MemPercent = mem.percent
		snap.SwapTotalMB = bytesToMB(mem.swapTotal)
		snap.SwapUsedMB = bytesToMB(mem.swapUsed)
		snap.SwapFreeMB = bytesToMB(mem.swapFree)
	} else {
		degrade("memory", err)
	}

	if netErr != nil {
		degrade("net", netErr)
	} else if havePrev && prev.netOK {
		elapsed := now.Sub(prev.at).Seconds()
		if elapsed > 0 {
			snap.NetRxKBps = rateKBps(rx-prev.rx, elapsed)
			snap.NetTxKBps = rateKBps(tx-prev.tx, elapsed)
		}
	}

	if up, err := parseUptime(section(secUptime)); err == nil {
		snap.UptimeSeconds = up
	} else {
		degrade("uptime", err)
	}

	if procs, err := parseProcessTable(section(secTopCPU), s.cfg.TopN); err == nil {
		snap.TopCPU = procs
	} else {
		degrade("top_cpu", err)
	}
	if procs, err := parseProcessTable(section(secTopMem), s.cfg.TopN); err == nil {
		snap.TopMem = procs
	} else {
		degrade("top_mem", err)
	}
	if count, err := parseProcessCount(section(secProcCount)); err == nil {
		snap.ProcessCount = count
	} else {
		degrade("processes", err)
	}

	if disk, err := parseDiskTable(section(secDisk)); err == nil {
		snap.DiskTotalGB = bytesToGB(disk.total)
		snap.DiskUsedGB = bytesToGB(disk.used)
		free := disk.total - disk.used
		if free < 0 {
			free = 0
		}
		snap.DiskFreeGB = bytesToGB(free)
		snap.DiskPercent = disk.percent
		snap.DiskPartitions = disk.mounts
	} else {
		degrade("disk", err)
	}

	if temp, err := parseTemperature(section(secTemp)); err == nil {
		snap.TempC = temp
	} else {
		degrade("temperature", err)
	}

	return snap
}

// rateKBps converts a byte counter delta over elapsed seconds into KB/s.
// Negative deltas (counter reset) report zero rather than a bogus rate.
func rateKBps(delta int64, elapsed float64) float64 {
	if delta <= 0 {
		return 0
	}
	return round2(float64(delta) / 1024 / elapsed)
}
