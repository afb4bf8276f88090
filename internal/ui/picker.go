package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

// DeviceChoice is one pickable device. The CLI maps registry entries into
// this shape so the picker stays decoupled from the registry types.
type DeviceChoice struct {
	ID      string
	Name    string
	Address string
	User    string
	Tags    []string
}

// deviceItem implements list.Item for the Bubbles list component.
type deviceItem struct {
	device DeviceChoice
}

func (i deviceItem) Title() string {
	return i.device.Name
}

func (i deviceItem) Description() string {
	var parts []string

	target := i.device.Address
	if i.device.User != "" {
		target = fmt.Sprintf("%s@%s", i.device.User, i.device.Address)
	}
	if target != "" {
		parts = append(parts, target)
	}

	if len(i.device.Tags) > 0 {
		parts = append(parts, "["+strings.Join(i.device.Tags, ", ")+"]")
	}

	return strings.Join(parts, " | ")
}

func (i deviceItem) FilterValue() string {
	values := []string{i.device.Name, i.device.ID, i.device.Address}
	values = append(values, i.device.Tags...)
	return strings.Join(values, " ")
}

// DevicePickerModel is a Bubble Tea model for selecting a device.
type DevicePickerModel struct {
	list     list.Model
	devices  []DeviceChoice
	selected *DeviceChoice
	quitting bool
	width    int
	height   int
}

// devicePickerKeyMap defines key bindings for the device picker.
type devicePickerKeyMap struct {
	Enter key.Binding
	Quit  key.Binding
}

var devicePickerKeys = devicePickerKeyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q/esc", "cancel"),
	),
}

// NewDevicePickerModel creates a new device picker model.
func NewDevicePickerModel(devices []DeviceChoice) DevicePickerModel {
	items := make([]list.Item, len(devices))
	for i, d := range devices {
		items[i] = deviceItem{device: d}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color(string(ColorPrimary))).
		BorderForeground(lipgloss.Color(string(ColorSecondary)))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color(string(ColorMuted)))

	l := list.New(items, delegate, 0, 0)
	l.Title = "Select a device"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color(string(ColorPrimary))).
		Bold(true).
		Padding(0, 0, 1, 0)
	l.Styles.HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(string(ColorMuted)))

	return DevicePickerModel{
		list:    l,
		devices: devices,
		width:   80,
		height:  15,
	}
}

// Init implements tea.Model.
func (m DevicePickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m DevicePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, devicePickerKeys.Enter):
			if item, ok := m.list.SelectedItem().(deviceItem); ok {
				m.selected = &item.device
			}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, devicePickerKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m DevicePickerModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View()
}

// Selected returns the selected device, or nil if cancelled.
func (m DevicePickerModel) Selected() *DeviceChoice {
	return m.selected
}

// PickDevice displays an interactive device picker and returns the choice.
// Returns nil if the user cancels (ESC/q/Ctrl+C). A single-device fleet
// short-circuits without showing the picker.
func PickDevice(devices []DeviceChoice) (*DeviceChoice, error) {
	return PickDeviceWithOutput(devices, os.Stdout, os.Stdin)
}

// PickDeviceWithOutput displays the device picker using custom I/O.
func PickDeviceWithOutput(devices []DeviceChoice, output io.Writer, input io.Reader) (*DeviceChoice, error) {
	if len(devices) == 0 {
		return nil, errors.New(errors.ErrConfig, "No devices configured", "Run 'pifleet init' to set up your fleet, or add devices to pifleet.yaml.")
	}

	if len(devices) == 1 {
		return &devices[0], nil
	}

	model := NewDevicePickerModel(devices)

	p := tea.NewProgram(
		model,
		tea.WithOutput(output),
		tea.WithInput(input),
	)

	finalModel, err := p.Run()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Device picker failed", "Try again or name the device directly: pifleet <command> <device>.")
	}

	if m, ok := finalModel.(DevicePickerModel); ok {
		return m.Selected(), nil
	}

	return nil, nil
}

// IsTerminal returns true if the file descriptor is a terminal.
func IsTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
