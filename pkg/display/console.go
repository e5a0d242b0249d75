/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Dracula theme colors.
const (
	draculaForeground = "#F8F8F2"
	draculaCyan       = "#8BE9FD"
	draculaGreen      = "#50FA7B"
	draculaOrange     = "#FFB86C"
	draculaPink       = "#FF79C6"
	draculaPurple     = "#BD93F9"
	draculaRed        = "#FF5555"
	draculaYellow     = "#F1FA8C"
	draculaComment    = "#6272A4"
)

const (
	defaultRefresh = 100 * time.Millisecond
	barWidth       = 30
	maxHubKeys     = 9
)

// ErrQuit is returned by Console.Run when the operator quits the console.
var ErrQuit = errors.New("console closed by operator")

// SlotSource returns the current slot snapshots for the grid.
type SlotSource func() []models.ChannelSnapshot

// Console is a terminal front panel. It shows the four status rows, one
// progress bar per hub and a colored grid of slots, and turns key presses
// into button events: "1".."9" is a short press for that hub, alt with the
// digit a long press.
type Console struct {
	buttons *Buttons
	slots   SlotSource
	hubs    int
	input   io.Reader
	output  io.Writer
	refresh time.Duration

	mu     sync.Mutex
	lines  [Rows]string
	bars   [Rows]float64
	hasBar [Rows]bool
}

// ConsoleOption customises a Console.
type ConsoleOption func(*Console)

// WithIO replaces the terminal streams.
func WithIO(in io.Reader, out io.Writer) ConsoleOption {
	return func(c *Console) {
		c.input = in
		c.output = out
	}
}

// WithRefresh sets how often the screen is redrawn.
func WithRefresh(d time.Duration) ConsoleOption {
	return func(c *Console) {
		c.refresh = d
	}
}

// NewConsole builds a console for hubs hubs. slots may be nil.
func NewConsole(hubs int, slots SlotSource, opts ...ConsoleOption) *Console {
	c := &Console{
		buttons: NewButtons(),
		slots:   slots,
		hubs:    hubs,
		refresh: defaultRefresh,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Console) Message(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = [Rows]string{}
	c.hasBar = [Rows]bool{}

	for i := 0; i < len(lines) && i < Rows; i++ {
		c.lines[i] = lines[i]
	}
}

func (c *Console) SetLine(row int, text string) {
	if row < 0 || row >= Rows {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines[row] = text
	c.hasBar[row] = false
}

func (c *Console) SetBar(row int, percent float64) {
	if row < 0 || row >= Rows {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines[row] = ""
	c.bars[row] = clampPercent(percent)
	c.hasBar[row] = true
}

func (c *Console) Clear() {
	c.Message()
}

// Button implements Input.
func (c *Console) Button(hub int) Button {
	return c.buttons.Button(hub)
}

// Run drives the terminal until ctx ends or the operator quits.
func (c *Console) Run(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}

	if c.input != nil {
		opts = append(opts, tea.WithInput(c.input))
	}

	if c.output != nil {
		opts = append(opts, tea.WithOutput(c.output))
	} else {
		opts = append(opts, tea.WithAltScreen())
	}

	final, err := tea.NewProgram(newConsoleModel(c), opts...).Run()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		return fmt.Errorf("console: %w", err)
	}

	if m, ok := final.(*consoleModel); ok && m.quitting {
		return ErrQuit
	}

	return nil
}

type panelState struct {
	lines  [Rows]string
	bars   [Rows]float64
	hasBar [Rows]bool
}

func (c *Console) panel() panelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return panelState{lines: c.lines, bars: c.bars, hasBar: c.hasBar}
}

type refreshMsg time.Time

type consoleModel struct {
	console  *Console
	bar      progress.Model
	styles   consoleStyles
	quitting bool
}

type consoleStyles struct {
	title, line, help, app lipgloss.Style
	states                 map[models.ChannelState]lipgloss.Style
}

func newConsoleStyles() consoleStyles {
	slot := func(color string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
	}

	idle := slot(draculaComment)
	busy := slot(draculaYellow)

	return consoleStyles{
		title: lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPurple)).Bold(true),
		line:  lipgloss.NewStyle().Foreground(lipgloss.Color(draculaForeground)),
		help:  lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment)),
		app: lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color(draculaCyan)),
		states: map[models.ChannelState]lipgloss.Style{
			models.StateUnknown:      idle,
			models.StateEmpty:        idle,
			models.StateReady:        slot(draculaCyan),
			models.StateStarting:     busy,
			models.StateErasing:      busy,
			models.StatePartitioning: busy,
			models.StateFormating:    busy,
			models.StateMounting:     busy,
			models.StateCopying:      slot(draculaOrange),
			models.StateUnmounting:   busy,
			models.StateVerifying:    slot(draculaPink),
			models.StateSuccess:      slot(draculaGreen),
			models.StateFailed:       slot(draculaRed),
			models.StateCRCFailed:    slot(draculaRed),
			models.StateLEDTest:      slot(draculaPurple),
			models.StateIndicating:   slot(draculaPurple),
		},
	}
}

func newConsoleModel(c *Console) *consoleModel {
	return &consoleModel{
		console: c,
		bar:     progress.New(progress.WithGradient(draculaPurple, draculaGreen), progress.WithWidth(barWidth)),
		styles:  newConsoleStyles(),
	}
}

func (m *consoleModel) tick() tea.Cmd {
	return tea.Tick(m.console.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *consoleModel) Init() tea.Cmd {
	return m.tick()
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case refreshMsg:
		return m, m.tick()
	}

	return m, nil
}

func (m *consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c", "q":
		m.quitting = true

		return m, tea.Quit
	}

	button := ShortPress

	if strings.HasPrefix(key, "alt+") {
		button = LongPress
		key = strings.TrimPrefix(key, "alt+")
	}

	n, err := strconv.Atoi(key)
	if err != nil || n < 1 || n > maxHubKeys || n > m.console.hubs {
		return m, nil
	}

	m.console.buttons.Press(n-1, button)

	return m, nil
}

func (m *consoleModel) View() string {
	panel := m.console.panel()

	var b strings.Builder

	b.WriteString(m.styles.title.Render("USB Duplicator"))
	b.WriteString("\n\n")

	for row := 0; row < Rows; row++ {
		if panel.hasBar[row] {
			b.WriteString(m.bar.ViewAs(panel.bars[row] / 100))
		} else {
			b.WriteString(m.styles.line.Render(panel.lines[row]))
		}

		b.WriteString("\n")
	}

	if grid := m.renderSlots(); grid != "" {
		b.WriteString("\n")
		b.WriteString(grid)
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("1-9 start hub • alt+1-9 cancel hub • q quit"))

	return m.styles.app.Render(b.String())
}

func (m *consoleModel) renderSlots() string {
	if m.console.slots == nil {
		return ""
	}

	byHub := make(map[int][]string)

	var hubs []int

	for _, s := range m.console.slots() {
		if _, seen := byHub[s.Hub]; !seen {
			hubs = append(hubs, s.Hub)
		}

		style, ok := m.styles.states[s.State]
		if !ok {
			style = m.styles.help
		}

		byHub[s.Hub] = append(byHub[s.Hub], style.Render(fmt.Sprintf("%2d:%-12s", s.DeviceID+1, s.State)))
	}

	rows := make([]string, 0, len(hubs))

	for _, hub := range hubs {
		rows = append(rows, fmt.Sprintf("Hub %d  ", hub+1)+strings.Join(byHub[hub], " "))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
