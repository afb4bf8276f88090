package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/ui"
)

// deviceJSON is one registry entry in --json output.
type deviceJSON struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Port       int      `json:"port"`
	User       string   `json:"user"`
	Tags       []string `json:"tags,omitempty"`
	ControlURL string   `json:"control_url,omitempty"`
}

// devicesCommand lists every registered device.
func devicesCommand() error {
	cfg, err := loadFleetConfig()
	if err != nil {
		return err
	}

	devices := registry.FromConfig(cfg).List()

	if MachineMode() {
		out := make([]deviceJSON, len(devices))
		for i, d := range devices {
			out[i] = deviceJSON{
				ID:         d.ID,
				Name:       d.Name,
				Address:    d.Address,
				Port:       d.Port,
				User:       d.User,
				Tags:       d.Tags,
				ControlURL: d.ControlURL,
			}
		}
		return WriteJSONSuccess(os.Stdout, out)
	}

	if len(devices) == 0 {
		fmt.Println("No devices registered.")
		fmt.Println("Run 'pifleet init' to add some, or 'pifleet scan' to find boards first.")
		return nil
	}

	columns := []ui.TableColumn{
		{Title: "ID", Width: 14},
		{Title: "ADDRESS", Width: 18},
		{Title: "SSH", Width: 14},
		{Title: "TAGS", Width: 20},
	}
	rows := make([][]string, len(devices))
	for i, d := range devices {
		rows[i] = []string{d.ID, d.Address, sshColumn(d), strings.Join(d.Tags, ", ")}
	}

	fmt.Println(ui.RenderSimpleTable(columns, rows))
	fmt.Printf("%d device(s)\n", len(devices))
	return nil
}

// sshColumn formats the login column, hiding the default port.
func sshColumn(d registry.Device) string {
	s := d.User
	if d.Port != 0 && d.Port != 22 {
		s += ":" + strconv.Itoa(d.Port)
	}
	return s
}
