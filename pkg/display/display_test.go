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
	"sync"
	"testing"

	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestButtonsLatchAndConsume(t *testing.T) {
	b := NewButtons()

	assert.Equal(t, NotPressed, b.Button(0))

	b.Press(1, ShortPress)
	assert.Equal(t, NotPressed, b.Button(0))
	assert.Equal(t, ShortPress, b.Button(1))
	assert.Equal(t, NotPressed, b.Button(1), "a press is consumed by reading it")

	b.Press(0, LongPress)
	b.Press(0, ShortPress)
	assert.Equal(t, LongPress, b.Button(0), "a long press wins over a later short one")
}

func TestButtonsConcurrentPresses(t *testing.T) {
	b := NewButtons()

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			b.Press(0, ShortPress)
		}()
	}

	wg.Wait()
	assert.Equal(t, ShortPress, b.Button(0))
}

func TestRows(t *testing.T) {
	assert.Equal(t, 0, StatusRow(0))
	assert.Equal(t, 1, DetailRow(0))
	assert.Equal(t, 2, StatusRow(1))
	assert.Equal(t, 3, DetailRow(1))
}

func TestLogDisplayTracksLines(t *testing.T) {
	d := NewLogDisplay(logger.NewTestLogger())

	d.Message("RPi USB Duplicator", "", "Version 1.0")
	assert.Equal(t, "RPi USB Duplicator", d.Line(0))
	assert.Equal(t, "Version 1.0", d.Line(2))
	assert.Empty(t, d.Line(3))

	d.SetLine(StatusRow(1), "Busy=3  OK=0  Bad=0 ")
	assert.Equal(t, "Busy=3  OK=0  Bad=0 ", d.Line(2))

	d.SetBar(DetailRow(1), 250)
	assert.Empty(t, d.Line(3))

	d.SetLine(7, "ignored")
	assert.Empty(t, d.Line(7))

	d.Clear()

	for row := 0; row < Rows; row++ {
		assert.Empty(t, d.Line(row))
	}
}

func TestClampPercent(t *testing.T) {
	assert.InDelta(t, 0.0, clampPercent(-5), 0)
	assert.InDelta(t, 42.5, clampPercent(42.5), 0)
	assert.InDelta(t, 100.0, clampPercent(180), 0)
}

func keyPress(s string, alt bool) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s), Alt: alt}
}

func TestConsoleKeysBecomeButtonPresses(t *testing.T) {
	c := NewConsole(2, nil)
	m := newConsoleModel(c)

	m.Update(keyPress("1", false))
	m.Update(keyPress("2", true))
	m.Update(keyPress("3", false))
	m.Update(keyPress("x", false))

	assert.Equal(t, ShortPress, c.Button(0))
	assert.Equal(t, LongPress, c.Button(1))
	assert.Equal(t, NotPressed, c.Button(2), "only configured hubs have buttons")
}

func TestConsoleQuit(t *testing.T) {
	m := newConsoleModel(NewConsole(1, nil))

	_, cmd := m.Update(keyPress("q", false))
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
}

func TestConsoleViewShowsPanelAndSlots(t *testing.T) {
	slots := func() []models.ChannelSnapshot {
		return []models.ChannelSnapshot{
			{DeviceID: 0, Hub: 0, State: models.StateCopying},
			{DeviceID: 1, Hub: 0, State: models.StateSuccess},
			{DeviceID: 2, Hub: 1, State: models.StateCRCFailed},
		}
	}

	c := NewConsole(2, slots)
	c.SetLine(StatusRow(0), "Busy=1  OK=1  Bad=0 ")
	c.SetBar(DetailRow(0), 50)
	c.SetLine(StatusRow(1), "Done. OK=0  Bad=1 ")

	view := newConsoleModel(c).View()

	assert.Contains(t, view, "Busy=1  OK=1  Bad=0")
	assert.Contains(t, view, "Done. OK=0  Bad=1")
	assert.Contains(t, view, "COPYING")
	assert.Contains(t, view, "CRC_FAILED")
	assert.Contains(t, view, "Hub 2")
}

func TestConsoleMessageReplacesPanel(t *testing.T) {
	c := NewConsole(1, nil)
	c.SetBar(1, 30)
	c.Message("Insert Master", "in slot 1")

	p := c.panel()
	assert.Equal(t, "Insert Master", p.lines[0])
	assert.Equal(t, "in slot 1", p.lines[1])
	assert.False(t, p.hasBar[1])
}
