package monitor

import tea "github.com/charmbracelet/bubbletea"

// Key bindings as constants for consistency.
const (
	KeyQuit        = "q"
	KeyQuitAlt     = "ctrl+c"
	KeyCycleSort   = "s"
	KeySelectPrev  = "up"
	KeySelectPrevK = "k"
	KeySelectNext  = "down"
	KeySelectNextJ = "j"
	KeySelectFirst = "home"
	KeySelectLast  = "end"
	KeyExpand      = "enter"
	KeyCollapse    = "esc"
	KeyToggleHelp  = "?"
)

// HandleKeyMsg processes keyboard input and returns updated model state and command.
// Returns true if the key was handled, false otherwise.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	// Help toggle takes priority
	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}

	// If help is showing, Esc closes it
	if m.showHelp && key == KeyCollapse {
		m.showHelp = false
		return true, nil
	}

	// Detail view: Esc returns to list
	if m.viewMode == ViewDetail && key == KeyCollapse {
		m.viewMode = ViewList
		return true, nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		for _, sub := range m.subs {
			sub.Close()
		}
		return true, tea.Quit

	case KeyCycleSort:
		m.sortOrder = m.sortOrder.Next()
		m.sortDevices()
		return true, nil

	case KeySelectPrev, KeySelectPrevK:
		if m.selected > 0 {
			m.selected--
			if m.viewMode == ViewDetail {
				m.updateDetailViewportContent()
			}
		}
		return true, nil

	case KeySelectNext, KeySelectNextJ:
		if m.selected < len(m.ids)-1 {
			m.selected++
			if m.viewMode == ViewDetail {
				m.updateDetailViewportContent()
			}
		}
		return true, nil

	case KeySelectFirst:
		if len(m.ids) > 0 {
			m.selected = 0
			if m.viewMode == ViewDetail {
				m.updateDetailViewportContent()
			}
		}
		return true, nil

	case KeySelectLast:
		if len(m.ids) > 0 {
			m.selected = len(m.ids) - 1
			if m.viewMode == ViewDetail {
				m.updateDetailViewportContent()
			}
		}
		return true, nil

	case KeyExpand:
		if m.viewMode == ViewList && len(m.ids) > 0 {
			m.viewMode = ViewDetail
			m.detailViewport.GotoTop()
			m.updateDetailViewportContent()
		}
		return true, nil

	case KeyCollapse:
		m.viewMode = ViewList
		return true, nil
	}

	// Remaining keys scroll the detail viewport (pgup, pgdn, space).
	if m.viewMode == ViewDetail {
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return true, cmd
	}

	return false, nil
}
