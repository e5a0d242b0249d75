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
	"math"
	"strings"
	"sync"

	"github.com/carverauto/usbcopier/pkg/logger"
)

// LogDisplay writes panel changes to a logger. It is what a headless
// appliance uses.
type LogDisplay struct {
	logger logger.Logger

	mu    sync.Mutex
	lines [Rows]string
	bars  [Rows]int
}

// NewLogDisplay returns a Display that logs through log.
func NewLogDisplay(log logger.Logger) *LogDisplay {
	d := &LogDisplay{logger: log}
	d.resetBars()

	return d
}

func (d *LogDisplay) resetBars() {
	for i := range d.bars {
		d.bars[i] = -1
	}
}

// Message logs the non-empty lines as one event.
func (d *LogDisplay) Message(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines = [Rows]string{}
	d.resetBars()

	var shown []string

	for i, line := range lines {
		if i < Rows {
			d.lines[i] = line
		}

		if line != "" {
			shown = append(shown, line)
		}
	}

	d.logger.Info().Str("message", strings.Join(shown, " | ")).Msg("Display")
}

// SetLine logs text when it differs from what row already shows.
func (d *LogDisplay) SetLine(row int, text string) {
	if row < 0 || row >= Rows {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.bars[row] = -1

	if d.lines[row] == text {
		return
	}

	d.lines[row] = text

	if text != "" {
		d.logger.Info().Int("row", row).Str("text", text).Msg("Display")
	}
}

// SetBar logs whole-percent changes at debug level.
func (d *LogDisplay) SetBar(row int, percent float64) {
	if row < 0 || row >= Rows {
		return
	}

	p := int(math.Floor(clampPercent(percent)))

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines[row] = ""

	if d.bars[row] == p {
		return
	}

	d.bars[row] = p
	d.logger.Debug().Int("row", row).Int("percent", p).Msg("Progress")
}

// Clear forgets the panel contents.
func (d *LogDisplay) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines = [Rows]string{}
	d.resetBars()
}

// Line returns what row currently shows.
func (d *LogDisplay) Line(row int) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if row < 0 || row >= Rows {
		return ""
	}

	return d.lines[row]
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
