package discover

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

// Strategy selects how the scanner probes a candidate.
type Strategy int

const (
	// ServiceProbe connects to the service port and reads the banner. A
	// banner that advertises SSH classifies the host as a managed board.
	ServiceProbe Strategy = iota
	// Reachability only checks that something answers at the address.
	Reachability
	// LinkTable consults the OS neighbor table instead of touching the
	// network. Vendor hints from hardware addresses are advisory only.
	LinkTable
)

// String returns the strategy name used in scan output.
func (s Strategy) String() string {
	switch s {
	case ServiceProbe:
		return "service-probe"
	case Reachability:
		return "reachability"
	case LinkTable:
		return "link-table"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a CLI flag value to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "service", "service-probe", "probe":
		return ServiceProbe, nil
	case "reach", "reachability", "ping":
		return Reachability, nil
	case "link", "link-table", "arp":
		return LinkTable, nil
	}
	return 0, errors.New(errors.ErrConfig,
		"Unknown scan strategy '"+name+"'",
		"Pick one of: service-probe, reachability, link-table.")
}

// ScanResult is one probed candidate. Immutable once emitted.
type ScanResult struct {
	Address       string
	Reachable     bool
	Method        Strategy
	Latency       time.Duration
	IdentityHint  string // reverse name, banner, or vendor hint when known
	IsTargetClass bool   // confirmed (or hinted) managed board
	Source        Source // which part of the target spec produced it
	Err           error  // classification detail when unreachable
}

const (
	// DefaultScanConcurrency bounds in-flight probes.
	DefaultScanConcurrency = 100

	// DefaultProbeTimeout bounds each individual probe.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultServicePort is where the secure-shell service listens.
	DefaultServicePort = 22
)

// Options configures a scan. Zero values take the defaults above.
type Options struct {
	Strategy    Strategy
	Concurrency int
	Timeout     time.Duration
	Port        int
}

func (o *Options) fill() {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultScanConcurrency
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultProbeTimeout
	}
	if o.Port <= 0 {
		o.Port = DefaultServicePort
	}
}

// Scan probes every candidate in the sequence and streams results as probes
// complete; first-result latency matters more than batch latency, so nothing
// waits for the whole batch. The channel closes after the last in-flight
// probe finishes. Cancelling ctx stops new probes, times out in-flight ones,
// and closes the channel; no goroutine outlives it.
func Scan(ctx context.Context, seq *CandidateSeq, opts Options) (<-chan ScanResult, error) {
	opts.fill()

	if opts.Strategy == LinkTable {
		return scanLinkTable(ctx, seq, opts)
	}

	results := make(chan ScanResult)
	queue := make(chan Candidate)

	// Feeder: pulls the lazy sequence so subnet candidates materialize only
	// as workers free up.
	go func() {
		defer close(queue)
		for {
			candidate, ok := seq.Next()
			if !ok {
				return
			}
			select {
			case queue <- candidate:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for candidate := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}

				result := probeCandidate(ctx, candidate, opts)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results, nil
}

// probeCandidate runs one probe under the configured strategy and timeout.
func probeCandidate(ctx context.Context, candidate Candidate, opts Options) ScanResult {
	address := joinPort(candidate.Address, opts.Port)

	pctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	result := ScanResult{
		Address: candidate.Address,
		Method:  opts.Strategy,
		Source:  candidate.Source,
	}

	switch opts.Strategy {
	case Reachability:
		latency, up, err := probeReachability(pctx, address, opts.Timeout)
		result.Reachable = up
		result.Latency = latency
		result.Err = err
	default:
		latency, banner, err := probeService(pctx, address, opts.Timeout)
		result.Latency = latency
		if err == nil {
			result.Reachable = true
			result.IdentityHint = banner
			result.IsTargetClass = isSSHBanner(banner)
		} else {
			result.Err = err
		}
	}

	if result.IdentityHint == "" && candidate.Name != "" {
		result.IdentityHint = candidate.Name
	} else if result.IdentityHint == "" && result.Reachable {
		result.IdentityHint = reverseName(pctx, candidate.Address)
	}

	return result
}

// reverseName does a best-effort reverse lookup for the identity hint.
func reverseName(ctx context.Context, address string) string {
	names, err := net.DefaultResolver.LookupAddr(ctx, address)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// Collect drains a scan channel into a slice ordered reachable-first, then
// by latency. Convenience for callers that want the table, not the stream.
func Collect(results <-chan ScanResult) []ScanResult {
	var all []ScanResult
	for result := range results {
		all = append(all, result)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Reachable != all[j].Reachable {
			return all[i].Reachable
		}
		return all[i].Latency < all[j].Latency
	})
	return all
}

// Merge folds results for the same address from several strategies into one.
// Service-probe classification wins over link-table vendor hints: the probe
// confirmed an actual listener, the hardware prefix is a guess.
func Merge(batches ...[]ScanResult) []ScanResult {
	rank := func(s Strategy) int {
		switch s {
		case ServiceProbe:
			return 2
		case Reachability:
			return 1
		default:
			return 0
		}
	}

	byAddr := make(map[string]ScanResult)
	var order []string
	for _, batch := range batches {
		for _, result := range batch {
			existing, seen := byAddr[result.Address]
			if !seen {
				byAddr[result.Address] = result
				order = append(order, result.Address)
				continue
			}
			if rank(result.Method) > rank(existing.Method) {
				// Keep the stronger classification, but don't lose a hint
				// the weaker strategy contributed.
				if result.IdentityHint == "" {
					result.IdentityHint = existing.IdentityHint
				}
				byAddr[result.Address] = result
			} else if existing.IdentityHint == "" && result.IdentityHint != "" {
				existing.IdentityHint = result.IdentityHint
				byAddr[result.Address] = existing
			}
		}
	}

	merged := make([]ScanResult, 0, len(order))
	for _, addr := range order {
		merged = append(merged, byAddr[addr])
	}
	return merged
}
