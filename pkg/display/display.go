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

// Package display carries operator-facing status to the front panel and
// button presses back from it.
package display

//go:generate mockgen -destination=mock_display.go -package=display github.com/carverauto/usbcopier/pkg/display Display,Input

import "sync"

// Rows is the height of the status panel: two rows per hub.
const Rows = 4

// Button is the state of a hub's push button since it was last read.
type Button int

const (
	NotPressed Button = iota
	ShortPress
	LongPress
)

func (b Button) String() string {
	switch b {
	case NotPressed:
		return "none"
	case ShortPress:
		return "short"
	case LongPress:
		return "long"
	default:
		return "unknown"
	}
}

// Display renders status text and progress bars.
type Display interface {
	// Message replaces the whole panel; missing lines are blank.
	Message(lines ...string)
	SetLine(row int, text string)
	// SetBar draws a 0-100 progress bar on row.
	SetBar(row int, percent float64)
	Clear()
}

// Input reports button presses per hub. Reading a press consumes it.
type Input interface {
	Button(hub int) Button
}

// StatusRow is the panel row holding a hub's summary line.
func StatusRow(hub int) int { return hub * 2 }

// DetailRow is the panel row holding a hub's bar or elapsed time.
func DetailRow(hub int) int { return hub*2 + 1 }

// Buttons latches presses until they are read. It satisfies Input and is
// fed by whatever front end is attached.
type Buttons struct {
	mu      sync.Mutex
	pending map[int]Button
}

// NewButtons returns an empty latch.
func NewButtons() *Buttons {
	return &Buttons{pending: make(map[int]Button)}
}

// Press records b for hub. A long press is not downgraded by a later short one.
func (b *Buttons) Press(hub int, button Button) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if button > b.pending[hub] {
		b.pending[hub] = button
	}
}

// Button returns and clears the pending press for hub.
func (b *Buttons) Button(hub int) Button {
	b.mu.Lock()
	defer b.mu.Unlock()

	button := b.pending[hub]
	delete(b.pending, hub)

	return button
}
