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

	"github.com/carverauto/usbcopier/pkg/clock"
	"github.com/carverauto/usbcopier/pkg/models"
)

// LampTest is the power-on check: every slot shows red, yellow and green in
// turn, then a single lamp sweeps left to right, then all go dark.
func (s *Supervisor) LampTest(ctx context.Context) error {
	step := s.cfg.LampTestStep

	for _, state := range []models.ChannelState{models.StateFailed, models.StateReady, models.StateSuccess} {
		s.logger.Debug().Str("state", state.String()).Msg("Lamp test")
		s.setAll(state)

		if err := clock.Sleep(ctx, s.clock, step); err != nil {
			return err
		}
	}

	for _, ch := range s.plane.Channels() {
		s.setAll(models.StateEmpty)
		ch.SetState(models.StateLEDTest)

		if err := clock.Sleep(ctx, s.clock, step/2); err != nil {
			return err
		}
	}

	s.setAll(models.StateEmpty)

	return nil
}

func (s *Supervisor) setAll(state models.ChannelState) {
	for _, ch := range s.plane.Channels() {
		ch.SetState(state)
	}
}
