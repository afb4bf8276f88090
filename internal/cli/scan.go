package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/pifleet/internal/config"
	"github.com/rileyhilliard/pifleet/internal/discover"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/ui"
)

// scanOptions holds the scan command's parsed flags.
type scanOptions struct {
	Subnet      string
	Hints       string
	Strategy    string
	Timeout     string
	Concurrency int
	Port        int
}

// scanResultJSON is one reachable host in --json output.
type scanResultJSON struct {
	Address   string `json:"address"`
	SSH       bool   `json:"ssh"`
	Identity  string `json:"identity,omitempty"`
	Method    string `json:"method"`
	Source    string `json:"source"`
	LatencyMS int64  `json:"latency_ms"`
}

// scanCommand sweeps the network and prints what answered.
func scanCommand(opts scanOptions) error {
	cfg, err := config.LoadOrDefault(Config())
	if err != nil {
		return err
	}

	scanOpts := discover.Options{
		Concurrency: cfg.Discovery.Concurrency,
		Timeout:     cfg.Discovery.ProbeTimeout,
		Port:        cfg.Discovery.Port,
	}
	if opts.Strategy != "" {
		strategy, err := discover.ParseStrategy(opts.Strategy)
		if err != nil {
			return err
		}
		scanOpts.Strategy = strategy
	}
	if opts.Timeout != "" {
		timeout, err := ParseTimeout(opts.Timeout)
		if err != nil {
			return err
		}
		scanOpts.Timeout = timeout
	}
	if opts.Concurrency > 0 {
		scanOpts.Concurrency = opts.Concurrency
	}
	if opts.Port > 0 {
		scanOpts.Port = opts.Port
	}

	specs := scanSpecs(cfg, opts)

	resolver := discover.NewResolver()
	resolver.SetLogger(logger.NewEnvLogger("[scan]"))
	if cfg.Discovery.SubnetCap > 0 {
		resolver.SetSubnetCap(cfg.Discovery.SubnetCap)
	}

	start := time.Now()
	found, probed, err := runScan(context.Background(), resolver, specs, scanOpts)
	if err != nil {
		return err
	}

	if MachineMode() {
		rows := make([]scanResultJSON, len(found))
		for i, r := range found {
			rows[i] = scanResultJSON{
				Address:   r.Address,
				SSH:       r.IsTargetClass,
				Identity:  r.IdentityHint,
				Method:    r.Method.String(),
				Source:    r.Source.String(),
				LatencyMS: r.Latency.Milliseconds(),
			}
		}
		return WriteJSONSuccess(os.Stdout, map[string]any{
			"devices": rows,
			"probed":  probed,
		})
	}

	renderScanResults(found, probed, time.Since(start))
	return nil
}

// scanSpecs builds the target list: explicit flags win, then the config's
// hints with its subnet as fallback, then the default hints.
func scanSpecs(cfg *config.Config, opts scanOptions) []discover.TargetSpec {
	switch {
	case opts.Subnet != "":
		return []discover.TargetSpec{{Subnet: opts.Subnet}}
	case opts.Hints != "":
		return []discover.TargetSpec{{Hints: splitList(opts.Hints)}}
	}

	var specs []discover.TargetSpec
	if len(cfg.Discovery.Hints) > 0 {
		specs = append(specs, discover.TargetSpec{Hints: cfg.Discovery.Hints})
	}
	if cfg.Discovery.Subnet != "" {
		specs = append(specs, discover.TargetSpec{Subnet: cfg.Discovery.Subnet})
	}
	if len(specs) == 0 {
		specs = []discover.TargetSpec{{}}
	}
	return specs
}

// runScan probes each spec in order, stopping at the first that finds
// anything. Later specs are fallbacks, not additions.
func runScan(ctx context.Context, resolver *discover.Resolver, specs []discover.TargetSpec, opts discover.Options) ([]discover.ScanResult, int, error) {
	var spinner *ui.Spinner
	if !MachineMode() {
		spinner = ui.NewSpinner("Scanning")
		spinner.Start()
	}

	var found []discover.ScanResult
	probed := 0
	for _, spec := range specs {
		seq, err := resolver.Resolve(ctx, spec)
		if err != nil {
			if spinner != nil {
				spinner.Fail()
			}
			return nil, probed, err
		}

		results, err := discover.Scan(ctx, seq, opts)
		if err != nil {
			if spinner != nil {
				spinner.Fail()
			}
			return nil, probed, err
		}

		for result := range results {
			probed++
			if spinner != nil {
				spinner.SetLabel(fmt.Sprintf("Scanning (%d probed, %d up)", probed, len(found)))
			}
			if result.Reachable {
				found = append(found, result)
			}
		}

		if len(found) > 0 {
			break
		}
	}

	if spinner != nil {
		spinner.Stop()
		fmt.Print("\r\x1b[K")
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Address < found[j].Address })
	return found, probed, nil
}

// renderScanResults prints the result table plus a latency sparkline when
// enough hosts answered for one to mean anything.
func renderScanResults(found []discover.ScanResult, probed int, elapsed time.Duration) {
	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)

	rows := make([]ui.ScanRow, len(found))
	for i, r := range found {
		rows[i] = ui.ScanRow{
			Address:  r.Address,
			Service:  r.IsTargetClass,
			Identity: r.IdentityHint,
			Latency:  r.Latency,
			Source:   r.Source.String(),
		}
	}
	fmt.Print(ui.RenderScanTable(rows))

	var latencies []float64
	for _, r := range found {
		if r.Latency > 0 {
			latencies = append(latencies, float64(r.Latency.Microseconds()))
		}
	}
	if len(latencies) > 2 {
		fmt.Printf("  %s %s\n", muted.Render("latency"), ui.RenderSparkline(latencies, len(latencies)))
	}

	fmt.Println()
	fmt.Println(muted.Render(fmt.Sprintf("%d up, %d probed in %.1fs", len(found), probed, elapsed.Seconds())))
}

// splitList splits a comma-separated flag value, trimming blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
