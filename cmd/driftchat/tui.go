// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/driftapp/driftchat/internal/config"
	"github.com/driftapp/driftchat/internal/model"
	"github.com/driftapp/driftchat/internal/render"
	"github.com/driftapp/driftchat/internal/session"
	"github.com/driftapp/driftchat/internal/util"
)

const sidebarWidth = 28

// =============================================================================
// MESSAGES
// =============================================================================

// stateMsg carries a fresh controller snapshot into the update loop.
type stateMsg struct {
	snap session.Snapshot
}

// configReloadedMsg carries a live-reloaded configuration.
type configReloadedMsg struct {
	cfg *config.Config
}

// =============================================================================
// KEY BINDINGS
// =============================================================================

type keyMap struct {
	Send       key.Binding
	NewConv    key.Binding
	NextConv   key.Binding
	PrevConv   key.Binding
	DeleteConv key.Binding
	Reasoning  key.Binding
	Search     key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send:       key.NewBinding(key.WithKeys("enter")),
		NewConv:    key.NewBinding(key.WithKeys("ctrl+n")),
		NextConv:   key.NewBinding(key.WithKeys("ctrl+j")),
		PrevConv:   key.NewBinding(key.WithKeys("ctrl+k")),
		DeleteConv: key.NewBinding(key.WithKeys("ctrl+d")),
		Reasoning:  key.NewBinding(key.WithKeys("ctrl+r")),
		Search:     key.NewBinding(key.WithKeys("ctrl+s")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+c", "esc")),
	}
}

// =============================================================================
// STYLES
// =============================================================================

type styleSet struct {
	sidebar      lipgloss.Style
	activeItem   lipgloss.Style
	item         lipgloss.Style
	userLabel    lipgloss.Style
	botLabel     lipgloss.Style
	reasoning    lipgloss.Style
	errorLine    lipgloss.Style
	statusBar    lipgloss.Style
	toggleOn     lipgloss.Style
	toggleOff    lipgloss.Style
	inputBox     lipgloss.Style
}

func newStyles() styleSet {
	return styleSet{
		sidebar:    lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderRight(true).PaddingRight(1),
		activeItem: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		item:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		userLabel:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		botLabel:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		reasoning:  lipgloss.NewStyle().Faint(true).Italic(true),
		errorLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		statusBar:  lipgloss.NewStyle().Faint(true),
		toggleOn:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		toggleOff:  lipgloss.NewStyle().Faint(true),
		inputBox:   lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).PaddingLeft(1),
	}
}

// =============================================================================
// TUI MODEL
// =============================================================================

type tui struct {
	controller *session.Controller
	renderer   *render.Renderer
	cfg        *config.Config

	snap session.Snapshot

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	keys     keyMap
	styles   styleSet

	width  int
	height int
	ready  bool
}

func newTUI(controller *session.Controller, renderer *render.Renderer, cfg *config.Config) tui {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Focus()
	input.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return tui{
		controller: controller,
		renderer:   renderer,
		cfg:        cfg,
		snap:       controller.Snapshot(),
		input:      input,
		spinner:    sp,
		keys:       defaultKeyMap(),
		styles:     newStyles(),
	}
}

func (t tui) Init() tea.Cmd {
	return tea.Batch(t.waitForState(), t.spinner.Tick, textinput.Blink)
}

// waitForState blocks until the controller publishes, then re-reads the
// snapshot. Signals coalesce, so one command per tick is enough.
func (t tui) waitForState() tea.Cmd {
	controller := t.controller
	return func() tea.Msg {
		<-controller.Events()
		return stateMsg{snap: controller.Snapshot()}
	}
}

func (t tui) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		t.width = msg.Width
		t.height = msg.Height
		t.layout()
		t.ready = true
		t.refreshViewport()

	case stateMsg:
		atBottom := t.viewport.AtBottom()
		t.snap = msg.snap
		t.refreshViewport()
		if atBottom {
			t.viewport.GotoBottom()
		}
		cmds = append(cmds, t.waitForState())

	case configReloadedMsg:
		t.cfg = msg.cfg
		t.renderer = render.New(msg.cfg.UI.Theme)
		t.refreshViewport()

	case spinner.TickMsg:
		var cmd tea.Cmd
		t.spinner, cmd = t.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, t.keys.Quit):
			return t, tea.Quit

		case key.Matches(msg, t.keys.Send):
			text := t.input.Value()
			t.input.SetValue("")
			t.controller.Apply(session.SendMessage{Text: text})

		case key.Matches(msg, t.keys.NewConv):
			t.controller.Apply(session.NewConversation{})

		case key.Matches(msg, t.keys.NextConv):
			t.selectAdjacent(1)

		case key.Matches(msg, t.keys.PrevConv):
			t.selectAdjacent(-1)

		case key.Matches(msg, t.keys.DeleteConv):
			if id := t.snap.ActiveConversationID; id != "" {
				t.controller.Apply(session.DeleteConversation{ID: id})
			}

		case key.Matches(msg, t.keys.Reasoning):
			t.controller.Apply(session.ToggleReasoning{})

		case key.Matches(msg, t.keys.Search):
			t.controller.Apply(session.ToggleSearch{})

		case key.Matches(msg, t.keys.ScrollUp):
			t.viewport.HalfViewUp()

		case key.Matches(msg, t.keys.ScrollDown):
			t.viewport.HalfViewDown()

		default:
			var cmd tea.Cmd
			t.input, cmd = t.input.Update(msg)
			t.controller.Apply(session.UpdateInput{Text: t.input.Value()})
			cmds = append(cmds, cmd)
		}
	}

	return t, tea.Batch(cmds...)
}

// selectAdjacent moves focus through the directory list.
func (t *tui) selectAdjacent(step int) {
	if len(t.snap.Summaries) == 0 {
		return
	}
	idx := -1
	for i, s := range t.snap.Summaries {
		if s.ID == t.snap.ActiveConversationID {
			idx = i
			break
		}
	}
	idx += step
	if idx < 0 {
		idx = 0
	}
	if idx >= len(t.snap.Summaries) {
		idx = len(t.snap.Summaries) - 1
	}
	target := t.snap.Summaries[idx]
	t.controller.Apply(session.SelectConversation{ID: target.ID, Title: target.Title})
}

func (t *tui) layout() {
	transcriptWidth := t.width - sidebarWidth - 2
	if transcriptWidth < 20 {
		transcriptWidth = 20
	}
	transcriptHeight := t.height - 5
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}

	if t.ready {
		t.viewport.Width = transcriptWidth
		t.viewport.Height = transcriptHeight
	} else {
		t.viewport = viewport.New(transcriptWidth, transcriptHeight)
	}
	t.input.Width = t.width - 6
}

// =============================================================================
// VIEW
// =============================================================================

func (t *tui) refreshViewport() {
	if !t.ready {
		return
	}
	t.viewport.SetContent(t.renderTranscript())
}

func (t *tui) renderTranscript() string {
	var b strings.Builder

	for _, msg := range t.snap.Messages {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(t.styles.userLabel.Render("You"))
		default:
			b.WriteString(t.styles.botLabel.Render(msg.Role.DisplayName()))
		}
		b.WriteString("\n")

		if t.cfg.UI.ShowReasoning && msg.ReasoningContent != "" {
			b.WriteString(t.styles.reasoning.Render(msg.ReasoningContent))
			b.WriteString("\n")
		}

		content := msg.Content
		if content == "" && msg.IsStreaming {
			content = t.spinner.View() + " thinking"
		} else if t.cfg.UI.Markdown && msg.Role == model.RoleAssistant {
			content = t.renderer.Markdown(content, t.viewport.Width-2)
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	if t.snap.LastError != "" {
		b.WriteString(t.styles.errorLine.Render(t.snap.LastError))
		b.WriteString("\n")
	}
	return b.String()
}

func (t tui) renderSidebar(height int) string {
	var b strings.Builder
	b.WriteString(t.styles.activeItem.Render("Conversations"))
	b.WriteString("\n\n")

	if t.snap.ActiveConversationID == "" {
		label := model.DefaultTitle
		if len(t.snap.Messages) > 0 {
			label = t.snap.Messages[0].Preview(sidebarWidth - 5)
		}
		b.WriteString(t.styles.activeItem.Render("+ " + label))
		b.WriteString("\n")
	}

	for _, s := range t.snap.Summaries {
		title := util.TruncateString(s.GetTitle(), sidebarWidth-3)
		if s.ID == t.snap.ActiveConversationID {
			b.WriteString(t.styles.activeItem.Render("> " + title))
		} else {
			b.WriteString(t.styles.item.Render("  " + title))
		}
		b.WriteString("\n")
	}

	return t.styles.sidebar.Width(sidebarWidth).Height(height).Render(b.String())
}

func (t tui) renderStatusBar() string {
	toggle := func(name string, on bool) string {
		if on {
			return t.styles.toggleOn.Render("[" + name + " on]")
		}
		return t.styles.toggleOff.Render("[" + name + " off]")
	}

	parts := []string{
		toggle("reasoning", t.snap.ReasoningEnabled),
		toggle("search", t.snap.SearchEnabled),
	}
	if t.snap.Sending {
		parts = append(parts, t.spinner.View()+" streaming")
	}
	if t.snap.IsLoadingMessages || t.snap.IsLoadingConversations {
		parts = append(parts, t.spinner.View()+" loading")
	}
	parts = append(parts, "ctrl+n new / ctrl+j,k switch / ctrl+r,s toggles / esc quit")

	return t.styles.statusBar.Render(strings.Join(parts, "  "))
}

func (t tui) View() string {
	if !t.ready {
		return "starting..."
	}

	transcript := t.viewport.View()
	sidebar := t.renderSidebar(t.viewport.Height)
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, transcript)

	inputBox := t.styles.inputBox.Width(t.width - 2).Render(t.input.View())

	return fmt.Sprintf("%s\n%s\n%s", main, inputBox, t.renderStatusBar())
}
