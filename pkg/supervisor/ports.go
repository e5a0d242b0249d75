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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/usbcopier/pkg/controlplane"
	"github.com/carverauto/usbcopier/pkg/display"
	"github.com/carverauto/usbcopier/pkg/models"
)

const (
	skipHint    = "Press Button to skip"
	portInUse   = "ERROR: SOCKET IN USE"
	mapPortsTop = "Testing USB Ports"
)

// MapPorts walks the slots in order, lighting each one and binding it to
// the port of the next drive plugged in. A short press on any hub leaves
// the slot unused. A port that already belongs to another slot is refused
// and the same slot is asked for again.
func (s *Supervisor) MapPorts(ctx context.Context) error {
	if s.events == nil {
		return errNoEvents
	}

	if s.binder == nil {
		return errNoPortBinder
	}

	// drop presses latched before the prompt
	for hub := range s.hubs {
		s.input.Button(hub)
	}

	ticker := s.clock.Ticker(s.cfg.PollInterval)
	defer ticker.Stop()

	status := skipHint

	for _, ch := range s.plane.Channels() {
		ch.SetState(models.StateIndicating)

		var err error

		if status, err = s.mapSlot(ctx, ch, ticker.Chan(), status); err != nil {
			return err
		}
	}

	s.display.Clear()

	s.logger.Info().Msg("Port mapping finished")

	return nil
}

func (s *Supervisor) mapSlot(ctx context.Context, ch *controlplane.Channel, tick <-chan time.Time, status string) (string, error) {
	prompt := fmt.Sprintf("Put disk in slot %d", ch.ID()+1)
	s.display.Message(mapPortsTop, prompt, "", status)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-tick:
			if !s.skipPressed() {
				continue
			}

			s.logger.Info().Int("device_id", ch.ID()).Msg("Slot skipped")
			ch.SetState(models.StateEmpty)

			return skipHint, nil
		case ev, ok := <-s.events:
			if !ok {
				return "", errNoEvents
			}

			if !freshInsert(ev) {
				continue
			}

			err := s.binder.Bind(ch.ID(), ev.Node, ev.PortPath)
			if errors.Is(err, controlplane.ErrPortInUse) {
				s.logger.Warn().Err(err).Int("device_id", ch.ID()).Str("port_path", ev.PortPath).Msg("Port already mapped")

				s.display.Message(mapPortsTop, prompt, "", portInUse)

				continue
			}

			if err != nil {
				return "", err
			}

			ch.SetState(models.StateSuccess)

			return ev.Node + " " + ev.PortPath, nil
		}
	}
}

func (s *Supervisor) skipPressed() bool {
	pressed := false

	for hub := range s.hubs {
		if s.input.Button(hub) == display.ShortPress {
			pressed = true
		}
	}

	return pressed
}
