// Package registry is the read-only device catalog. It resolves device
// ids to dialing details and decides whether a request for a device
// runs on this host or is forwarded to the device's own control
// daemon. The config file the operator owns is the only persistence.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/config"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/session"
)

// Device is one board the fleet knows about, with the config defaults
// already merged in.
type Device struct {
	ID      string
	Name    string
	Address string
	Port    int
	User    string

	// CredentialsRef is the private key path for this device. Empty
	// defers to the agent and ~/.ssh defaults.
	CredentialsRef string

	Tags []string

	// ControlURL is non-empty when the board runs its own control
	// daemon; see Route.
	ControlURL string
}

// Credentials converts the registry entry into what the session layer
// dials with.
func (d Device) Credentials() session.Credentials {
	return session.Credentials{
		User:         d.User,
		Port:         d.Port,
		IdentityFile: d.CredentialsRef,
		Name:         d.Name,
	}
}

// HasTag reports whether the device carries the tag.
func (d Device) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Registry supplies devices by id. Implementations are safe for
// concurrent use.
type Registry interface {
	// Lookup resolves a device id to its entry.
	Lookup(id string) (Device, error)

	// List returns every registered device, ordered by id.
	List() []Device
}

// FromConfig builds a Registry over the config's devices section. The
// view is a snapshot; reload the config and rebuild to pick up edits.
func FromConfig(cfg *config.Config) Registry {
	devices := make([]Device, 0, len(cfg.Devices))
	for _, entry := range cfg.Devices {
		r := entry.Resolved(cfg.Defaults)
		devices = append(devices, Device{
			ID:             r.EffectiveID(),
			Name:           r.Name,
			Address:        r.Address,
			Port:           r.Port,
			User:           r.User,
			CredentialsRef: r.KeyPath,
			Tags:           append([]string(nil), r.Tags...),
			ControlURL:     r.ControlURL,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	byID := make(map[string]Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	return &configRegistry{devices: devices, byID: byID}
}

type configRegistry struct {
	devices []Device
	byID    map[string]Device
}

func (r *configRegistry) Lookup(id string) (Device, error) {
	d, ok := r.byID[id]
	if !ok {
		return Device{}, errors.New(errors.ErrNotFound,
			fmt.Sprintf("No device called '%s' is registered", id),
			"List what the fleet knows with 'pifleet devices'.")
	}
	return d, nil
}

func (r *configRegistry) List() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// FilterTagged narrows a device list to those carrying the tag. An
// empty tag returns the list unchanged.
func FilterTagged(devices []Device, tag string) []Device {
	if tag == "" {
		return devices
	}
	var out []Device
	for _, d := range devices {
		if d.HasTag(tag) {
			out = append(out, d)
		}
	}
	return out
}
