package monitor

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/hub"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// deviceState is everything the dashboard knows about one device.
type deviceState struct {
	device   registry.Device
	status   DeviceStatus
	snapshot *telemetry.MetricsSnapshot
	lastSeen time.Time

	// lastSeq and dropped track delivery gaps on the current subscription.
	lastSeq uint64
	dropped uint64

	errMsg  string
	errHint string
}

// Model is the Bubble Tea model for the fleet dashboard. Snapshots are
// pushed by the hub; the model never polls a device itself.
type Model struct {
	cfg Config

	order  []string // config order, the default sort
	ids    []string // current display order
	states map[string]*deviceState
	subs   map[string]*hub.Subscription

	// events is the merge point for every subscription's pump goroutine.
	events chan deviceEventMsg

	history    *History
	selected   int
	sortOrder  SortOrder
	viewMode   ViewMode
	showHelp   bool
	quitting   bool
	width      int
	height     int
	lastUpdate time.Time

	// Animation state
	spinnerFrame int

	// Detail view viewport for scrollable content
	detailViewport viewport.Model
	viewportReady  bool
}

// deviceEventMsg carries one hub event for one device.
type deviceEventMsg struct {
	id    string
	event hub.Event
}

// subscribedMsg reports a metrics subscription coming up.
type subscribedMsg struct {
	id  string
	sub *hub.Subscription
}

// subFailedMsg reports a subscription attempt that never got off the ground.
type subFailedMsg struct {
	id  string
	err error
}

// resubscribeMsg fires after RetryDelay to revive an ended stream.
type resubscribeMsg struct {
	id string
}

// spinnerTickMsg advances spinner animation and the "updated Ns ago" text.
type spinnerTickMsg time.Time

// spinnerInterval is the animation frame rate for the dashboard.
const spinnerInterval = 150 * time.Millisecond

// NewModel creates a dashboard model over the given fleet.
func NewModel(cfg Config) Model {
	if cfg.Log == nil {
		cfg.Log = logger.Noop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	order := make([]string, 0, len(cfg.Devices))
	states := make(map[string]*deviceState, len(cfg.Devices))
	for _, d := range cfg.Devices {
		order = append(order, d.ID)
		states[d.ID] = &deviceState{device: d, status: StatusWaiting}
	}

	ids := make([]string, len(order))
	copy(ids, order)

	selected := -1
	if len(ids) > 0 {
		selected = 0
	}

	return Model{
		cfg:       cfg,
		order:     order,
		ids:       ids,
		states:    states,
		subs:      make(map[string]*hub.Subscription, len(order)),
		events:    make(chan deviceEventMsg, 64),
		history:   NewHistory(DefaultHistorySize),
		selected:  selected,
		sortOrder: SortByDefault,
	}
}

// Init opens one metrics subscription per device and starts the event and
// animation loops.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEvent(), m.spinnerTickCmd()}
	for _, id := range m.order {
		cmds = append(cmds, m.subscribeCmd(id))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		handled, cmd := m.HandleKeyMsg(msg)
		if handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// The detail viewport gets everything between header and footer.
		headerHeight := 3
		footerHeight := 2
		viewportHeight := m.height - headerHeight - footerHeight
		if viewportHeight < 1 {
			viewportHeight = 1
		}

		if !m.viewportReady {
			m.detailViewport = viewport.New(m.width, viewportHeight)
			m.detailViewport.YPosition = headerHeight
			m.viewportReady = true
		} else {
			m.detailViewport.Width = m.width
			m.detailViewport.Height = viewportHeight
		}

		if m.viewMode == ViewDetail {
			m.updateDetailViewportContent()
		}

	case spinnerTickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % 10000
		return m, m.spinnerTickCmd()

	case subscribedMsg:
		if m.quitting {
			msg.sub.Close()
			return m, nil
		}
		m.subs[msg.id] = msg.sub

	case subFailedMsg:
		m.markOffline(msg.id, msg.err)
		if m.viewMode == ViewDetail {
			m.updateDetailViewportContent()
		}
		return m, m.retryCmd(msg.id)

	case resubscribeMsg:
		if m.quitting {
			return m, nil
		}
		st := m.states[msg.id]
		if st != nil {
			st.status = StatusWaiting
		}
		return m, m.subscribeCmd(msg.id)

	case deviceEventMsg:
		cmd := m.applyEvent(msg)
		if m.viewMode == ViewDetail {
			m.updateDetailViewportContent()
		}
		return m, tea.Batch(m.waitForEvent(), cmd)
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	if m.viewMode == ViewDetail {
		return m.renderDetailView()
	}
	return m.renderDashboard()
}

// subscribeCmd opens a metrics subscription and starts its pump goroutine.
// The pump forwards every delivery into the shared events channel and ends
// when the hub closes the stream.
func (m Model) subscribeCmd(id string) tea.Cmd {
	h := m.cfg.Hub
	interval := m.cfg.Interval
	events := m.events
	return func() tea.Msg {
		sub, err := h.SubscribeMetrics(context.Background(), id, interval)
		if err != nil {
			return subFailedMsg{id: id, err: err}
		}
		go func() {
			for ev := range sub.Events() {
				events <- deviceEventMsg{id: id, event: ev}
			}
		}()
		return subscribedMsg{id: id, sub: sub}
	}
}

// waitForEvent hands the next pumped event to Update. Re-armed after every
// delivery.
func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

// retryCmd schedules a resubscribe attempt after the retry delay.
func (m Model) retryCmd(id string) tea.Cmd {
	return tea.Tick(m.cfg.RetryDelay, func(time.Time) tea.Msg {
		return resubscribeMsg{id: id}
	})
}

// spinnerTickCmd returns a command that sends a spinner tick for animation.
func (m Model) spinnerTickCmd() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}

// applyEvent folds one hub event into the device's state. Returns a retry
// command when the stream ended.
func (m *Model) applyEvent(msg deviceEventMsg) tea.Cmd {
	st := m.states[msg.id]
	if st == nil {
		return nil
	}

	switch msg.event.Kind {
	case hub.EventSnapshot:
		snap := msg.event.Snapshot
		if snap == nil {
			return nil
		}

		// A sequence jump means the hub shed events we were too slow for.
		switch {
		case st.lastSeq == 0 && msg.event.Seq > 1:
			st.dropped += msg.event.Seq - 1
		case msg.event.Seq > st.lastSeq+1:
			st.dropped += msg.event.Seq - st.lastSeq - 1
		}
		st.lastSeq = msg.event.Seq

		st.snapshot = snap
		if len(snap.Degraded) > 0 {
			// Stream is healthy but parts of the sample are missing.
			st.status = StatusDegraded
			st.errMsg = "partial sample: " + strings.Join(snap.Degraded, ", ")
			st.errHint = ""
		} else {
			st.status = StatusOnline
			st.errMsg, st.errHint = "", ""
		}
		st.lastSeen = msg.event.Time
		m.lastUpdate = msg.event.Time
		m.history.Push(msg.id, snap)
		m.sortDevices()

	case hub.EventError:
		st.status = StatusDegraded
		st.errMsg, st.errHint = describeError(msg.event.Err)
		m.sortDevices()

	case hub.EventClosed:
		if m.quitting {
			return nil
		}
		st.status = StatusOffline
		st.lastSeq = 0
		delete(m.subs, msg.id)
		// Keep the last snapshot for context but drop the graph history;
		// a reconnect would otherwise graph the outage as a flatline.
		m.history.Clear(msg.id)
		m.sortDevices()
		m.cfg.Log.Debug("metrics stream for %s ended, retrying in %s", msg.id, m.cfg.RetryDelay)
		return m.retryCmd(msg.id)
	}

	return nil
}

// markOffline records a dead stream plus the reason it died.
func (m *Model) markOffline(id string, err error) {
	st := m.states[id]
	if st == nil {
		return
	}
	st.status = StatusOffline
	st.errMsg, st.errHint = describeError(err)
	m.sortDevices()
}

// describeError splits a structured error into message and suggestion so
// the card can show them on separate lines.
func describeError(err error) (msg, hint string) {
	if err == nil {
		return "", ""
	}
	var fe *errors.Error
	if stderrors.As(err, &fe) {
		return fe.Message, fe.Suggestion
	}
	return err.Error(), ""
}

// OnlineCount returns how many devices have a live stream.
func (m Model) OnlineCount() int {
	count := 0
	for _, st := range m.states {
		if st.status == StatusOnline || st.status == StatusDegraded {
			count++
		}
	}
	return count
}

// SelectedDevice returns the id of the currently selected device.
func (m Model) SelectedDevice() string {
	if m.selected >= 0 && m.selected < len(m.ids) {
		return m.ids[m.selected]
	}
	return ""
}

// SecondsSinceUpdate returns how long ago the newest snapshot arrived.
func (m Model) SecondsSinceUpdate() int {
	if m.lastUpdate.IsZero() {
		return 0
	}
	return int(time.Since(m.lastUpdate).Seconds())
}

// WaitingText returns the animated "linking up" message.
func (m Model) WaitingText() string {
	slow := m.spinnerFrame / WaitingTextSlowdown
	return WaitingTextFrames[slow%len(WaitingTextFrames)]
}

// LayoutMode returns the current layout tier for the terminal width.
func (m Model) LayoutMode() LayoutMode {
	switch {
	case m.width >= BreakpointWide:
		return LayoutWide
	case m.width >= BreakpointStandard:
		return LayoutStandard
	case m.width >= BreakpointCompact:
		return LayoutCompact
	default:
		return LayoutMinimal
	}
}

// ShowFooter reports whether the terminal is tall enough for the footer.
func (m Model) ShowFooter() bool {
	return m.height >= HeightMinimal
}

// sortDevices orders the display list for the current sort order, keeping
// the selection on the same device.
func (m *Model) sortDevices() {
	if len(m.ids) == 0 {
		return
	}

	selectedID := ""
	if m.selected >= 0 && m.selected < len(m.ids) {
		selectedID = m.ids[m.selected]
	}

	switch m.sortOrder {
	case SortByDefault:
		m.sortByDefault()

	case SortByName:
		sort.Slice(m.ids, func(i, j int) bool {
			return m.states[m.ids[i]].device.Name < m.states[m.ids[j]].device.Name
		})

	case SortByCPU:
		m.sortBySnapshot(func(s *telemetry.MetricsSnapshot) (float64, bool) {
			return s.CPUPercent, true
		})

	case SortByMemory:
		m.sortBySnapshot(func(s *telemetry.MetricsSnapshot) (float64, bool) {
			return s.MemPercent, true
		})

	case SortByTemp:
		m.sortBySnapshot(func(s *telemetry.MetricsSnapshot) (float64, bool) {
			if s.TempC == nil {
				return 0, false
			}
			return *s.TempC, true
		})
	}

	if selectedID != "" {
		for i, id := range m.ids {
			if id == selectedID {
				m.selected = i
				break
			}
		}
	}
}

// sortBySnapshot orders descending by a snapshot value. Devices without a
// snapshot, or without the value, sink to the end in id order.
func (m *Model) sortBySnapshot(value func(*telemetry.MetricsSnapshot) (float64, bool)) {
	sort.SliceStable(m.ids, func(i, j int) bool {
		si, sj := m.states[m.ids[i]].snapshot, m.states[m.ids[j]].snapshot
		vi, oki := 0.0, false
		vj, okj := 0.0, false
		if si != nil {
			vi, oki = value(si)
		}
		if sj != nil {
			vj, okj = value(sj)
		}
		if oki != okj {
			return oki
		}
		if !oki {
			return m.ids[i] < m.ids[j]
		}
		return vi > vj
	})
}

// sortByDefault puts live devices first, config order within each group.
func (m *Model) sortByDefault() {
	orderIndex := make(map[string]int, len(m.order))
	for i, id := range m.order {
		orderIndex[id] = i
	}

	sort.SliceStable(m.ids, func(i, j int) bool {
		sti, stj := m.states[m.ids[i]], m.states[m.ids[j]]
		alivei := sti.status == StatusOnline || sti.status == StatusDegraded
		alivej := stj.status == StatusOnline || stj.status == StatusDegraded
		if alivei != alivej {
			return alivei
		}
		return orderIndex[m.ids[i]] < orderIndex[m.ids[j]]
	})
}
