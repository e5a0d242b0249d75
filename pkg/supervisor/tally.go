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

package supervisor

import (
	"fmt"
	"time"

	"github.com/carverauto/usbcopier/pkg/models"
)

const bytesPerMB = 1024 * 1024

// Tally is the aggregate view of one hub.
type Tally struct {
	Busy  int
	OK    int
	Bad   int
	Bytes int64
}

// Count aggregates slots. Bytes covers running and successful slots only,
// so a failed drive does not inflate the hub's progress.
func Count(slots []models.ChannelSnapshot) Tally {
	var t Tally

	for _, s := range slots {
		switch {
		case s.State.IsRunning():
			t.Busy++
			t.Bytes += s.BytesCopied
		case s.State == models.StateSuccess:
			t.OK++
			t.Bytes += s.BytesCopied
		case s.State.IsFailure():
			t.Bad++
		}
	}

	return t
}

// Percent is the mean completion of the running and successful slots
// against the master size, clamped to 0-100.
func (t Tally) Percent(masterSize int64) float64 {
	n := t.Busy + t.OK
	if n == 0 || masterSize <= 0 {
		return 0
	}

	p := 100 * float64(t.Bytes) / float64(masterSize) / float64(n)

	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func (t Tally) StatusText() string {
	return fmt.Sprintf("Busy=%-2d OK=%-2d Bad=%-2d", t.Busy, t.OK, t.Bad)
}

func (t Tally) DoneText() string {
	return fmt.Sprintf("Done. OK=%-2d Bad=%-2d", t.OK, t.Bad)
}

// WroteText summarises a finished run, e.g. "Wrote 120MB in 2:05".
func WroteText(bytes int64, elapsed time.Duration) string {
	seconds := int(elapsed / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	return fmt.Sprintf("Wrote %dMB in %d:%02d", bytes/bytesPerMB, seconds/60, seconds%60)
}
