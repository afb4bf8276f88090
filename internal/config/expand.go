package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax - just ~ for the current user.
func ExpandTilde(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unchanged if we can't get home
		}
		return filepath.Join(home, path[2:])
	}

	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}

	return path
}

// ExpandPath expands ~ and environment variables in a local path, so key
// paths like ~/.ssh/id_ed25519 or $HOME/.ssh/fleet_key work as written.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	return ExpandTilde(os.ExpandEnv(path))
}

// ExpandDevice expands the local paths in a device entry.
func ExpandDevice(d Device) Device {
	d.KeyPath = ExpandPath(d.KeyPath)
	return d
}
