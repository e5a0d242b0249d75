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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "copier.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadCopierConfigFromFile(t *testing.T) {
	path := writeConfig(t, `{
		"hubs": 1,
		"ports_per_hub": 4,
		"master_dir": "/tmp/master",
		"stagger_delay": "250ms",
		"verify": false,
		"port_map": {"0": "1-1.1", "3": "1-1.4"},
		"logging": {"level": "debug"}
	}`)

	cfg, err := LoadCopierConfig(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Hubs)
	assert.Equal(t, 4, cfg.PortsPerHub)
	assert.Equal(t, "/tmp/master", cfg.MasterDir)
	assert.Equal(t, 250*time.Millisecond, cfg.StaggerDelay.Std())
	assert.False(t, cfg.Verify)
	assert.Equal(t, "1-1.4", cfg.PortMap[3])
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched keys keep their defaults
	assert.Equal(t, models.DefaultMountRoot, cfg.MountRoot)
	assert.Equal(t, models.DefaultVolumeLabel, cfg.VolumeLabel)
}

func TestLoadCopierConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadCopierConfig(context.Background(), filepath.Join(t.TempDir(), "absent.json"), logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCopierConfig().Channels(), cfg.Channels())
}

func TestLoadCopierConfigBadJSON(t *testing.T) {
	path := writeConfig(t, `{"hubs": `)

	_, err := LoadCopierConfig(context.Background(), path, logger.NewTestLogger())
	require.Error(t, err)
}

func TestLoadCopierConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"master_dir": "/from/file"}`)

	t.Setenv("USBCOPIER_MASTER_DIR", "/from/env")
	t.Setenv("USBCOPIER_POLL_INTERVAL", "50ms")
	t.Setenv("USBCOPIER_WORKER_COMMAND", "/usr/bin/copier-worker, -config, /etc/usbcopier/copier.json")
	t.Setenv("USBCOPIER_VERIFY", "false")
	t.Setenv("USBCOPIER_LOGGING_LEVEL", "warn")

	cfg, err := LoadCopierConfig(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.MasterDir)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval.Std())
	assert.Equal(t, []string{"/usr/bin/copier-worker", "-config", "/etc/usbcopier/copier.json"}, cfg.WorkerCommand)
	assert.False(t, cfg.Verify)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadCopierConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `{"hubs": 0}`)

	_, err := LoadCopierConfig(context.Background(), path, logger.NewTestLogger())
	require.Error(t, err)
}

func TestEnvConfigLoaderRequiresStructPointer(t *testing.T) {
	loader := NewEnvConfigLoader(nil, EnvPrefix)

	var notStruct int

	require.ErrorIs(t, loader.Load(context.Background(), "", &notStruct), ErrDstMustBePointerToStruct)
	require.ErrorIs(t, loader.Load(context.Background(), "", nil), ErrDstMustBeNonNilPointer)
}

func TestEnvConfigLoaderKinds(t *testing.T) {
	t.Setenv("USBCOPIER_PORT_MAP", `{"0": "1-1.1", "7": "1-2.1"}`)
	t.Setenv("USBCOPIER_STAGGER_DELAY", "250000000")
	t.Setenv("USBCOPIER_HUBS", "1")
	t.Setenv("USBCOPIER_AUTO_ASSIGN_PORTS", "true")
	// unparsable values keep the previous setting
	t.Setenv("USBCOPIER_PORTS_PER_HUB", "seven")
	t.Setenv("USBCOPIER_CONSOLE", "maybe")

	cfg := models.DefaultCopierConfig()

	require.NoError(t, NewEnvConfigLoader(nil, EnvPrefix).Load(context.Background(), "", cfg))

	assert.Equal(t, map[int]string{0: "1-1.1", 7: "1-2.1"}, cfg.PortMap)
	assert.Equal(t, 250*time.Millisecond, cfg.StaggerDelay.Std())
	assert.Equal(t, 1, cfg.Hubs)
	assert.True(t, cfg.AutoAssignPorts)
	assert.Equal(t, models.DefaultPortsPerHub, cfg.PortsPerHub)
	assert.False(t, cfg.Console)
}

func TestEnvConfigLoaderWholeDocument(t *testing.T) {
	t.Setenv("USBCOPIER_CONFIG_JSON", `{"master_dir": "/from/json", "hubs": 1}`)
	t.Setenv("USBCOPIER_MASTER_DIR", "/ignored")

	cfg := models.DefaultCopierConfig()

	require.NoError(t, NewEnvConfigLoader(nil, EnvPrefix).Load(context.Background(), "", cfg))

	assert.Equal(t, "/from/json", cfg.MasterDir)
	assert.Equal(t, 1, cfg.Hubs)

	t.Setenv("USBCOPIER_CONFIG_JSON", `{"hubs": `)

	require.Error(t, NewEnvConfigLoader(nil, EnvPrefix).Load(context.Background(), "", cfg))
}
