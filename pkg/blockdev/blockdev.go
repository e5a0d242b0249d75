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

// Package blockdev provisions a raw USB block device: wipe, partition,
// format and mount. The destructive steps shell out to the standard Linux
// utilities and succeed or fail on exit status alone.
package blockdev

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	MiB = int64(1 << 20)

	// WearLevelSlack is the spare capacity above which partitions get a
	// randomised start and a reduced span.
	WearLevelSlack = 200 * MiB

	wearLevelMinStartMiB = 4
	wearLevelStepMiB     = 4
	wearLevelSteps       = 16
	wearLevelEndPercent  = 90

	fullStartMiB   = 1
	fullEndPercent = 100
)

var (
	ErrInvalidDevice = errors.New("invalid block device name")
	ErrCommandFailed = errors.New("command failed")
)

// Geometry is the placement of the single primary partition.
type Geometry struct {
	StartMiB   int
	EndPercent int
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dMiB-%d%%", g.StartMiB, g.EndPercent)
}

// PlanGeometry chooses the partition layout for a device. When the device
// has more than WearLevelSlack bytes to spare beyond the master, the start
// offset is drawn uniformly from {4, 8, ..., 64} MiB and the partition ends
// at 90% of the device so the FAT lands on different flash blocks from run to
// run. Otherwise the partition spans the whole device from 1 MiB.
func PlanGeometry(deviceSize, masterSize int64, rng *rand.Rand) Geometry {
	slack := deviceSize - masterSize
	if slack <= WearLevelSlack {
		return Geometry{StartMiB: fullStartMiB, EndPercent: fullEndPercent}
	}

	var step int
	if rng != nil {
		step = rng.IntN(wearLevelSteps)
	} else {
		step = rand.IntN(wearLevelSteps)
	}

	return Geometry{
		StartMiB:   wearLevelMinStartMiB + step*wearLevelStepMiB,
		EndPercent: wearLevelEndPercent,
	}
}

// ValidateDevice applies the worker's precondition on a device node name.
func ValidateDevice(device string) error {
	if len(device) < 4 || !strings.Contains(device, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}

	return nil
}

// PartitionName returns the node of the first partition on device:
// /dev/sdb gives /dev/sdb1, /dev/mmcblk0 gives /dev/mmcblk0p1.
func PartitionName(device string) string {
	if device == "" {
		return ""
	}

	last := rune(device[len(device)-1])
	if unicode.IsDigit(last) {
		return device + "p1"
	}

	return device + "1"
}

// MountPoint returns where the first partition of device is mounted under
// root, e.g. /mnt/usb/sdb1.
func MountPoint(root, device string) string {
	return filepath.Join(root, filepath.Base(PartitionName(device)))
}
