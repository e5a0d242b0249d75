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
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/usbcopier/pkg/logger"
)

const (
	DefaultControlPlanePath = "/dev/shm/usb_copier_shm"
	DefaultMasterDir        = "/var/ramdrive/master"
	DefaultManifestPath     = "/var/ramdrive/crc.txt"
	DefaultMountRoot        = "/mnt/usb"
	DefaultVolumeLabel      = "TALKINGNEWS"
	DefaultHubs             = 2
	DefaultPortsPerHub      = 7

	// MaxChannels is the number of slots the control plane layout reserves.
	MaxChannels = 32
	// MaxVolumeLabel is the FAT volume label limit.
	MaxVolumeLabel = 11
)

var (
	errNoHubs          = errors.New("hubs must be positive")
	errNoPorts         = errors.New("ports_per_hub must be positive")
	errTooManyChannels = errors.New("hubs * ports_per_hub exceeds control plane capacity")
	errMissingPath     = errors.New("required path is empty")
	errBadLabel        = errors.New("volume_label must be 1-11 characters")
	errNoWorkerCommand = errors.New("worker_command is empty")
	errBadInterval     = errors.New("interval must be positive")
	errBadPortMap      = errors.New("port_map slot out of range")
)

// CopierConfig is the appliance configuration shared by the supervisor and
// the worker binaries.
type CopierConfig struct {
	ControlPlanePath string         `json:"control_plane_path"`
	Hubs             int            `json:"hubs"`
	PortsPerHub      int            `json:"ports_per_hub"`
	MasterDir        string         `json:"master_dir"`
	ManifestPath     string         `json:"manifest_path"`
	MountRoot        string         `json:"mount_root"`
	VolumeLabel      string         `json:"volume_label"`
	Verify           bool           `json:"verify"`
	WorkerCommand    []string       `json:"worker_command"`
	StaggerDelay     Duration       `json:"stagger_delay"`
	PollInterval     Duration       `json:"poll_interval"`
	HotplugInterval  Duration       `json:"hotplug_interval"`
	LampTestStep     Duration       `json:"lamp_test_step"`
	PortMap          map[int]string `json:"port_map,omitempty"`
	AutoAssignPorts  bool           `json:"auto_assign_ports"`
	LoadMaster       bool           `json:"load_master"`
	Console          bool           `json:"console"`
	Logging          *logger.Config `json:"logging,omitempty"`
}

// DefaultCopierConfig returns the configuration of a stock two-hub appliance.
func DefaultCopierConfig() *CopierConfig {
	return &CopierConfig{
		ControlPlanePath: DefaultControlPlanePath,
		Hubs:             DefaultHubs,
		PortsPerHub:      DefaultPortsPerHub,
		MasterDir:        DefaultMasterDir,
		ManifestPath:     DefaultManifestPath,
		MountRoot:        DefaultMountRoot,
		VolumeLabel:      DefaultVolumeLabel,
		Verify:           true,
		WorkerCommand:    []string{"sudo", "./copier-worker"},
		StaggerDelay:     Duration(500 * time.Millisecond),
		PollInterval:     Duration(100 * time.Millisecond),
		HotplugInterval:  Duration(200 * time.Millisecond),
		LampTestStep:     Duration(200 * time.Millisecond),
		LoadMaster:       true,
		Logging:          logger.DefaultConfig(),
	}
}

// NeedsPortMapping reports whether slots must be bound to ports
// interactively at start-up.
func (c *CopierConfig) NeedsPortMapping() bool {
	return len(c.PortMap) == 0 && !c.AutoAssignPorts
}

// Channels is the number of slots in use.
func (c *CopierConfig) Channels() int {
	return c.Hubs * c.PortsPerHub
}

// Validate implements config.Validator.
func (c *CopierConfig) Validate() error {
	if c.Hubs <= 0 {
		return errNoHubs
	}

	if c.PortsPerHub <= 0 {
		return errNoPorts
	}

	if c.Channels() > MaxChannels {
		return fmt.Errorf("%w: %d > %d", errTooManyChannels, c.Channels(), MaxChannels)
	}

	paths := map[string]string{
		"control_plane_path": c.ControlPlanePath,
		"master_dir":         c.MasterDir,
		"manifest_path":      c.ManifestPath,
		"mount_root":         c.MountRoot,
	}

	for name, value := range paths {
		if value == "" {
			return fmt.Errorf("%w: %s", errMissingPath, name)
		}
	}

	if n := len(c.VolumeLabel); n == 0 || n > MaxVolumeLabel {
		return errBadLabel
	}

	if len(c.WorkerCommand) == 0 {
		return errNoWorkerCommand
	}

	intervals := map[string]Duration{
		"poll_interval":    c.PollInterval,
		"hotplug_interval": c.HotplugInterval,
		"lamp_test_step":   c.LampTestStep,
	}

	for name, value := range intervals {
		if value <= 0 {
			return fmt.Errorf("%w: %s", errBadInterval, name)
		}
	}

	if c.StaggerDelay < 0 {
		return fmt.Errorf("%w: stagger_delay", errBadInterval)
	}

	for slot := range c.PortMap {
		if slot < 0 || slot >= c.Channels() {
			return fmt.Errorf("%w: %d", errBadPortMap, slot)
		}
	}

	return nil
}
