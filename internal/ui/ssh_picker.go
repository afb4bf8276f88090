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

// SSHHostInfo is one Host block from ~/.ssh/config, offered as a seed for a
// new device entry during init.
type SSHHostInfo struct {
	Alias    string // Host alias
	Hostname string // Resolved HostName, if set
	User     string // User, if set
	Port     string // Port, if non-default
}

// sshHostItem implements list.Item for the Bubbles list component.
type sshHostItem struct {
	host SSHHostInfo
}

func (i sshHostItem) Title() string {
	return i.host.Alias
}

func (i sshHostItem) Description() string {
	target := i.host.Hostname
	if target == "" {
		target = i.host.Alias
	}
	if i.host.User != "" {
		target = fmt.Sprintf("%s@%s", i.host.User, target)
	}
	if i.host.Port != "" && i.host.Port != "22" {
		target = fmt.Sprintf("%s:%s", target, i.host.Port)
	}
	return target
}

func (i sshHostItem) FilterValue() string {
	// Allow searching by alias, hostname, and user
	values := []string{i.host.Alias}
	if i.host.Hostname != "" {
		values = append(values, i.host.Hostname)
	}
	if i.host.User != "" {
		values = append(values, i.host.User)
	}
	return strings.Join(values, " ")
}

// SSHHostPickerModel is a Bubble Tea model for selecting an SSH host.
type SSHHostPickerModel struct {
	list        list.Model
	hosts       []SSHHostInfo
	selected    *SSHHostInfo
	manualEntry bool // User chose to type an address instead
	quitting    bool
	width       int
	height      int
}

// sshHostPickerKeyMap defines key bindings.
type sshHostPickerKeyMap struct {
	Enter  key.Binding
	Manual key.Binding
	Quit   key.Binding
}

var sshHostPickerKeys = sshHostPickerKeyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Manual: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "manual entry"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q/esc", "cancel"),
	),
}

// NewSSHHostPickerModel creates a new SSH host picker model.
func NewSSHHostPickerModel(hosts []SSHHostInfo) SSHHostPickerModel {
	items := make([]list.Item, len(hosts))
	for i, h := range hosts {
		items[i] = sshHostItem{host: h}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color(string(ColorPrimary))).
		BorderForeground(lipgloss.Color(string(ColorSecondary)))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color(string(ColorMuted)))

	l := list.New(items, delegate, 0, 0)
	l.Title = "Import a device from ~/.ssh/config"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color(string(ColorPrimary))).
		Bold(true).
		Padding(0, 0, 1, 0)
	l.Styles.HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(string(ColorMuted)))

	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{sshHostPickerKeys.Manual}
	}

	return SSHHostPickerModel{
		list:   l,
		hosts:  hosts,
		width:  80,
		height: 15,
	}
}

// Init implements tea.Model.
func (m SSHHostPickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m SSHHostPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Don't handle keys when filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, sshHostPickerKeys.Enter):
			if item, ok := m.list.SelectedItem().(sshHostItem); ok {
				m.selected = &item.host
			}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, sshHostPickerKeys.Manual):
			m.manualEntry = true
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, sshHostPickerKeys.Quit):
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
func (m SSHHostPickerModel) View() string {
	if m.quitting {
		return ""
	}

	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color(string(ColorMuted))).
		Render("\n  Press 'm' to type an address instead")

	return m.list.View() + hint
}

// Selected returns the selected host, or nil if cancelled.
func (m SSHHostPickerModel) Selected() *SSHHostInfo {
	return m.selected
}

// ManualEntry returns true if the user chose to enter manually.
func (m SSHHostPickerModel) ManualEntry() bool {
	return m.manualEntry
}

// PickSSHHost displays an interactive SSH host picker.
// Returns:
// - selected host if the user picks one
// - nil, false if the user chooses manual entry
// - nil, true if the user cancels
func PickSSHHost(hosts []SSHHostInfo) (*SSHHostInfo, bool, error) {
	return PickSSHHostWithOutput(hosts, os.Stdout, os.Stdin)
}

// PickSSHHostWithOutput displays the SSH host picker with custom I/O.
func PickSSHHostWithOutput(hosts []SSHHostInfo, output io.Writer, input io.Reader) (*SSHHostInfo, bool, error) {
	if len(hosts) == 0 {
		return nil, false, nil // No hosts, go to manual entry
	}

	model := NewSSHHostPickerModel(hosts)

	p := tea.NewProgram(
		model,
		tea.WithOutput(output),
		tea.WithInput(input),
	)

	finalModel, err := p.Run()
	if err != nil {
		return nil, false, errors.WrapWithCode(err, errors.ErrConfig, "SSH host picker failed", "Re-run init, or add the device manually to pifleet.yaml.")
	}

	if m, ok := finalModel.(SSHHostPickerModel); ok {
		if m.ManualEntry() {
			return nil, false, nil // Manual entry requested
		}
		if m.Selected() == nil {
			return nil, true, nil // Cancelled
		}
		return m.Selected(), false, nil
	}

	return nil, true, nil // Cancelled
}
