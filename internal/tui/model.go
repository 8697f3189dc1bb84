// Package tui provides the BubbleTea-based applet interface: a device
// list, per-device detail, and SMS conversations.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
	"github.com/nwxnw/cosmic-connect-applet/internal/pairing"
	"github.com/nwxnw/cosmic-connect-applet/internal/registry"
	"github.com/nwxnw/cosmic-connect-applet/internal/router"
	"github.com/nwxnw/cosmic-connect-applet/internal/sms"
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeDevices Mode = iota
	ModeConversations
	ModeMessages
	ModeHelp
)

const actionTimeout = 10 * time.Second

// Model is the main TUI model. It re-renders from current store
// state on every change notification rather than applying deltas.
type Model struct {
	registry *registry.Registry
	messages *sms.Model
	router   *router.Router
	pairing  *pairing.Machine

	mode Mode

	deviceList list.Model
	convoList  list.Model
	viewport   viewport.Model
	compose    textinput.Model
	help       help.Model

	// Current selection for conversation drill-down.
	deviceID   string
	convoKey   model.ConversationKey
	recipients []string

	width  int
	height int
	ready  bool

	keys KeyMap

	statusMsg string
	statusErr bool

	registryCh <-chan registry.ChangeEvent
	messagesCh <-chan sms.ChangeEvent
}

// deviceItem wraps a device for the list component.
type deviceItem struct {
	device model.Device
}

func (i deviceItem) Title() string {
	marker := "○"
	if i.device.Reachable {
		marker = "●"
	}
	return fmt.Sprintf("%s %s", marker, i.device.Name)
}

func (i deviceItem) Description() string {
	parts := []string{string(i.device.Type), i.device.Pair.String()}
	if i.device.Battery != nil {
		b := fmt.Sprintf("%d%%", i.device.Battery.Charge)
		if i.device.Battery.Charging {
			b += "+"
		}
		parts = append(parts, b)
	}
	if caps := i.device.Capabilities.List(); len(caps) > 0 {
		names := make([]string, len(caps))
		for n, c := range caps {
			names[n] = string(c)
		}
		parts = append(parts, strings.Join(names, ","))
	}
	return strings.Join(parts, " | ")
}

func (i deviceItem) FilterValue() string {
	return i.device.Name + " " + string(i.device.Type)
}

// convoItem wraps a conversation for the list component.
type convoItem struct {
	convo model.Conversation
	model *sms.Model
}

func (i convoItem) Title() string {
	if i.convo.Title != "" {
		return i.convo.Title
	}
	names := make([]string, len(i.convo.Participants))
	for n, p := range i.convo.Participants {
		names[n] = i.model.DisplayName(p)
	}
	return strings.Join(names, ", ")
}

func (i convoItem) Description() string {
	when := ""
	if ts := i.convo.LastTimestamp(); ts > 0 {
		when = humanize.Time(time.UnixMilli(ts)) + " - "
	}
	return when + i.convo.Preview(60)
}

func (i convoItem) FilterValue() string {
	return i.Title()
}

// New creates the TUI model over the shared stores.
func New(reg *registry.Registry, messages *sms.Model, rt *router.Router, pm *pairing.Machine) Model {
	deviceList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	deviceList.Title = "Connected Devices"
	deviceList.SetShowStatusBar(true)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(true)
	deviceList.DisableQuitKeybindings()

	convoList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	convoList.Title = "Conversations"
	convoList.SetShowStatusBar(true)
	convoList.SetShowHelp(false)
	convoList.SetFilteringEnabled(true)
	convoList.DisableQuitKeybindings()

	compose := textinput.New()
	compose.Placeholder = "Type a message..."
	compose.CharLimit = 1600

	m := Model{
		registry:   reg,
		messages:   messages,
		router:     rt,
		pairing:    pm,
		mode:       ModeDevices,
		deviceList: deviceList,
		convoList:  convoList,
		compose:    compose,
		help:       help.New(),
		keys:       DefaultKeyMap(),
	}

	if reg != nil {
		m.registryCh = reg.Subscribe()
	}
	if messages != nil {
		m.messagesCh = messages.Subscribe()
	}
	return m
}

type refreshMsg struct{}

type statusNote struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

// Init starts the change watchers.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.reload, m.watchRegistry, m.watchMessages)
}

func (m Model) reload() tea.Msg {
	return refreshMsg{}
}

func (m Model) watchRegistry() tea.Msg {
	if m.registryCh == nil {
		return nil
	}
	if _, ok := <-m.registryCh; !ok {
		return nil
	}
	return refreshMsg{}
}

func (m Model) watchMessages() tea.Msg {
	if m.messagesCh == nil {
		return nil
	}
	if _, ok := <-m.messagesCh; !ok {
		return nil
	}
	return refreshMsg{}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.deviceList.SetSize(msg.Width, msg.Height-2)
		m.convoList.SetSize(msg.Width, msg.Height-2)
		m.viewport = viewport.New(msg.Width, msg.Height-5)
		m.viewport.YPosition = 2
		return m, nil

	case refreshMsg:
		m.refreshLists()
		if m.mode == ModeMessages {
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
		}
		// Re-arm whichever watcher fired; both is harmless since
		// delivery is at-least-once and rendering is idempotent.
		return m, tea.Batch(m.watchRegistry, m.watchMessages)

	case statusNote:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil
	}

	switch m.mode {
	case ModeDevices:
		var cmd tea.Cmd
		m.deviceList, cmd = m.deviceList.Update(msg)
		cmds = append(cmds, cmd)
	case ModeConversations:
		var cmd tea.Cmd
		m.convoList, cmd = m.convoList.Update(msg)
		cmds = append(cmds, cmd)
	case ModeMessages:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		m.compose, cmd = m.compose.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// refreshLists rebuilds both list components from store state.
func (m *Model) refreshLists() {
	if m.registry != nil {
		devices := m.registry.List()
		items := make([]list.Item, len(devices))
		for n, d := range devices {
			items[n] = deviceItem{device: d}
		}
		m.deviceList.SetItems(items)
		if m.registry.Stale() {
			m.deviceList.Title = "Connected Devices (daemon unreachable, stale)"
		} else {
			m.deviceList.Title = "Connected Devices"
		}
	}
	if m.messages != nil && m.deviceID != "" {
		convos := m.messages.Conversations(m.deviceID)
		items := make([]list.Item, len(convos))
		for n, c := range convos {
			items[n] = convoItem{convo: c, model: m.messages}
		}
		m.convoList.SetItems(items)
	}
}

func (m Model) selectedDevice() (model.Device, bool) {
	item, ok := m.deviceList.SelectedItem().(deviceItem)
	if !ok {
		return model.Device{}, false
	}
	return item.device, true
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The compose field swallows most keys while visible.
	if m.mode == ModeMessages {
		return m.handleMessagesKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeHelp {
			m.mode = ModeDevices
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	switch m.mode {
	case ModeDevices:
		return m.handleDevicesKey(msg)
	case ModeConversations:
		return m.handleConversationsKey(msg)
	case ModeHelp:
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeDevices
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleDevicesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		dev, ok := m.selectedDevice()
		if !ok {
			return m, nil
		}
		if !dev.Capabilities.Has(model.CapabilitySMS) {
			return m, note("No messaging on "+dev.Name, true)
		}
		m.deviceID = dev.ID
		m.refreshLists()
		m.mode = ModeConversations
		return m, nil

	case key.Matches(msg, m.keys.Pair):
		dev, ok := m.selectedDevice()
		if !ok {
			return m, nil
		}
		return m, m.pairCmd(dev)

	case key.Matches(msg, m.keys.Unpair):
		dev, ok := m.selectedDevice()
		if !ok {
			return m, nil
		}
		return m, m.unpairCmd(dev)

	case key.Matches(msg, m.keys.Ping):
		dev, ok := m.selectedDevice()
		if !ok {
			return m, nil
		}
		return m, m.routerCmd("Ping sent to "+dev.Name, func() (string, error) {
			return m.router.Ping(dev.ID, "")
		})

	case key.Matches(msg, m.keys.Ring):
		dev, ok := m.selectedDevice()
		if !ok {
			return m, nil
		}
		return m, m.routerCmd("Ringing "+dev.Name, func() (string, error) {
			return m.router.Ring(dev.ID)
		})

	case key.Matches(msg, m.keys.PlayPause):
		dev, ok := m.selectedDevice()
		if !ok {
			return m, nil
		}
		return m, m.routerCmd("Toggled playback on "+dev.Name, func() (string, error) {
			return m.router.Media(dev.ID, model.MediaAction{Kind: model.MediaPlayPause})
		})

	case key.Matches(msg, m.keys.Refresh):
		m.refreshLists()
		return m, nil
	}

	var cmd tea.Cmd
	m.deviceList, cmd = m.deviceList.Update(msg)
	return m, cmd
}

func (m Model) handleConversationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = ModeDevices
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		item, ok := m.convoList.SelectedItem().(convoItem)
		if !ok {
			return m, nil
		}
		m.convoKey = item.convo.Key
		m.recipients = append([]string(nil), item.convo.Participants...)
		m.mode = ModeMessages
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		m.compose.SetValue("")
		m.compose.Focus()
		return m, nil
	}

	var cmd tea.Cmd
	m.convoList, cmd = m.convoList.Update(msg)
	return m, cmd
}

func (m Model) handleMessagesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.compose.Blur()
		m.mode = ModeConversations
		return m, nil

	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit

	case msg.Type == tea.KeyEnter:
		body := strings.TrimSpace(m.compose.Value())
		if body == "" {
			return m, nil
		}
		m.compose.SetValue("")
		deviceID := m.deviceID
		recipients := m.recipients
		return m, func() tea.Msg {
			if _, err := m.router.SendMessage(deviceID, recipients, body); err != nil {
				return statusNote{text: "Send failed: " + err.Error(), isErr: true}
			}
			return refreshMsg{}
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// pairCmd requests, accepts, or reports pairing depending on the
// device's current state.
func (m Model) pairCmd(dev model.Device) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		switch dev.Pair {
		case model.PairStateRequestedByRemote:
			if err := m.pairing.Accept(ctx, dev.ID); err != nil {
				return statusNote{text: "Accept failed: " + err.Error(), isErr: true}
			}
			return statusNote{text: "Pairing accepted for " + dev.Name}
		default:
			if err := m.pairing.Request(ctx, dev.ID); err != nil {
				return statusNote{text: "Pairing failed: " + err.Error(), isErr: true}
			}
			return statusNote{text: "Pairing requested for " + dev.Name}
		}
	}
}

// unpairCmd unpairs, or rejects an incoming request.
func (m Model) unpairCmd(dev model.Device) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		if dev.Pair == model.PairStateRequestedByRemote {
			if err := m.pairing.Reject(ctx, dev.ID); err != nil {
				return statusNote{text: "Reject failed: " + err.Error(), isErr: true}
			}
			return statusNote{text: "Pairing rejected for " + dev.Name}
		}
		if err := m.pairing.Unpair(ctx, dev.ID); err != nil {
			return statusNote{text: "Unpair failed: " + err.Error(), isErr: true}
		}
		return statusNote{text: "Unpaired " + dev.Name}
	}
}

// routerCmd wraps a router call into an async status update.
func (m Model) routerCmd(okText string, fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		if _, err := fn(); err != nil {
			return statusNote{text: err.Error(), isErr: true}
		}
		return statusNote{text: okText}
	}
}

func note(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return statusNote{text: text, isErr: isErr}
	}
}

// renderMessages renders the selected conversation for the viewport.
func (m Model) renderMessages() string {
	msgs, ok := m.messages.Messages(m.deviceID, m.convoKey)
	if !ok {
		return "No messages."
	}

	incoming := lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	outgoing := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	meta := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	var b strings.Builder
	for _, msg := range msgs {
		when := humanize.Time(time.UnixMilli(msg.Timestamp))
		if msg.Direction == model.DirectionIncoming {
			who := m.messages.DisplayName(msg.Sender)
			b.WriteString(incoming.Render(who) + " " + meta.Render(when) + "\n")
		} else {
			label := "me"
			switch msg.Status {
			case model.StatusSending:
				label = "me (sending...)"
			case model.StatusFailed:
				label = "me (FAILED)"
			}
			b.WriteString(outgoing.Render(label) + " " + meta.Render(when) + "\n")
		}
		b.WriteString(msg.Body + "\n\n")
	}
	return b.String()
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeDevices:
		return m.viewWithStatus(m.deviceList.View())
	case ModeConversations:
		return m.viewWithStatus(m.convoList.View())
	case ModeMessages:
		return m.viewMessages()
	case ModeHelp:
		return m.viewHelp()
	default:
		return ""
	}
}

func (m Model) viewWithStatus(body string) string {
	if m.statusMsg != "" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
		if m.statusErr {
			style = style.Foreground(lipgloss.Color("9"))
		}
		return body + "\n" + style.Render(m.statusMsg)
	}
	return body + "\n" + m.help.ShortHelpView(m.keys.ShortHelp())
}

func (m Model) viewMessages() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	title := "Conversation"
	if item, ok := m.convoList.SelectedItem().(convoItem); ok {
		title = item.Title()
	}
	header := headerStyle.Render(title)

	return header + "\n" + m.viewport.View() + "\n\n" + m.compose.View() + "\n" +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("enter send | esc back")
}

func (m Model) viewHelp() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	s := titleStyle.Render("Keyboard Shortcuts") + "\n\n"

	s += sectionStyle.Render("Navigation") + "\n"
	s += keyStyle.Render("  j/k, ↑/↓") + "     Move up/down\n"
	s += keyStyle.Render("  enter") + "        Open device conversations\n"
	s += keyStyle.Render("  esc") + "          Back\n"
	s += "\n"

	s += sectionStyle.Render("Device Actions") + "\n"
	s += keyStyle.Render("  p") + "            Request or accept pairing\n"
	s += keyStyle.Render("  u") + "            Unpair, or reject a request\n"
	s += keyStyle.Render("  g") + "            Ping device\n"
	s += keyStyle.Render("  f") + "            Ring device (find my phone)\n"
	s += keyStyle.Render("  space") + "        Play/pause remote media\n"
	s += keyStyle.Render("  r") + "            Refresh lists\n"
	s += "\n"

	s += sectionStyle.Render("General") + "\n"
	s += keyStyle.Render("  ?") + "            Toggle this help\n"
	s += keyStyle.Render("  q") + "            Quit\n"

	s += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		"Press ? or esc to return")

	return s
}
