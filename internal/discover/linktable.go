package discover

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

// linkTablePath is where the kernel exposes the IPv4 neighbor table.
// Overridable in tests.
var linkTablePath = "/proc/net/arp"

// LinkEntry is one row of the neighbor table.
type LinkEntry struct {
	IPAddress    string
	HardwareAddr string
	Device       string
}

// boardVendorPrefixes maps hardware-address OUIs to the board vendors this
// tool manages. Pi Foundation and Pi Trading blocks, old and new.
var boardVendorPrefixes = map[string]string{
	"b8:27:eb": "Raspberry Pi Foundation",
	"dc:a6:32": "Raspberry Pi Trading",
	"e4:5f:01": "Raspberry Pi Trading",
	"d8:3a:dd": "Raspberry Pi Trading",
	"2c:cf:67": "Raspberry Pi Trading",
	"28:cd:c1": "Raspberry Pi Trading",
}

// boardVendor returns the vendor name for a hardware address whose prefix is
// a known board OUI.
func boardVendor(hardwareAddr string) (string, bool) {
	addr := strings.ToLower(hardwareAddr)
	if len(addr) < 8 {
		return "", false
	}
	vendor, ok := boardVendorPrefixes[addr[:8]]
	return vendor, ok
}

// parseLinkTable reads neighbor table rows, skipping the header and
// incomplete entries (flags without the complete bit mean the kernel never
// got an answer from that address).
func parseLinkTable(r io.Reader) ([]LinkEntry, error) {
	var entries []LinkEntry

	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}

		flags := fields[2]
		if flags == "0x0" {
			continue
		}
		hardwareAddr := fields[3]
		if hardwareAddr == "00:00:00:00:00:00" {
			continue
		}

		entries = append(entries, LinkEntry{
			IPAddress:    fields[0],
			HardwareAddr: hardwareAddr,
			Device:       fields[5],
		})
	}
	return entries, scanner.Err()
}

// readLinkTable loads the kernel's neighbor table.
func readLinkTable() ([]LinkEntry, error) {
	f, err := os.Open(linkTablePath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrInternal,
			"Couldn't read the neighbor table",
			"Link-table scans only work on Linux hosts.")
	}
	defer f.Close()
	return parseLinkTable(f)
}

// scanLinkTable answers candidates out of the neighbor table without
// touching the network. An entry proves the address answered on the link
// recently; the vendor hint is advisory, never a confirmed classification.
func scanLinkTable(ctx context.Context, seq *CandidateSeq, opts Options) (<-chan ScanResult, error) {
	entries, err := readLinkTable()
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]LinkEntry, len(entries))
	for _, entry := range entries {
		byAddr[entry.IPAddress] = entry
	}

	results := make(chan ScanResult)
	go func() {
		defer close(results)
		for {
			candidate, ok := seq.Next()
			if !ok {
				return
			}

			result := ScanResult{
				Address: candidate.Address,
				Method:  LinkTable,
				Source:  candidate.Source,
			}
			if entry, found := byAddr[candidate.Address]; found {
				result.Reachable = true
				result.IdentityHint = entry.HardwareAddr
				if vendor, isBoard := boardVendor(entry.HardwareAddr); isBoard {
					result.IdentityHint = fmt.Sprintf("%s (%s)", entry.HardwareAddr, vendor)
					result.IsTargetClass = true
				}
			}

			select {
			case results <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results, nil
}
