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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCopierConfigIsValid(t *testing.T) {
	cfg := DefaultCopierConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 14, cfg.Channels())
}

func TestCopierConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CopierConfig)
		wantErr error
	}{
		{"no hubs", func(c *CopierConfig) { c.Hubs = 0 }, errNoHubs},
		{"no ports", func(c *CopierConfig) { c.PortsPerHub = 0 }, errNoPorts},
		{"too many channels", func(c *CopierConfig) { c.Hubs = 5 }, errTooManyChannels},
		{"missing master", func(c *CopierConfig) { c.MasterDir = "" }, errMissingPath},
		{"long label", func(c *CopierConfig) { c.VolumeLabel = "ABCDEFGHIJKL" }, errBadLabel},
		{"no worker", func(c *CopierConfig) { c.WorkerCommand = nil }, errNoWorkerCommand},
		{"zero poll", func(c *CopierConfig) { c.PollInterval = 0 }, errBadInterval},
		{"negative stagger", func(c *CopierConfig) { c.StaggerDelay = -1 }, errBadInterval},
		{"port map out of range", func(c *CopierConfig) { c.PortMap = map[int]string{14: "1-1.2"} }, errBadPortMap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCopierConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestNeedsPortMapping(t *testing.T) {
	cfg := DefaultCopierConfig()
	assert.True(t, cfg.NeedsPortMapping())

	cfg.AutoAssignPorts = true
	assert.False(t, cfg.NeedsPortMapping())

	cfg.AutoAssignPorts = false
	cfg.PortMap = map[int]string{0: "1-1.1"}
	assert.False(t, cfg.NeedsPortMapping())
}
