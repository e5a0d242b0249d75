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

package blockdev

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/shirou/gopsutil/v3/disk"
)

// ExecRunner runs commands with os/exec and folds their output into the
// returned error.
type ExecRunner struct {
	Logger logger.Logger
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	if r.Logger != nil {
		r.Logger.Debug().Str("cmd", name).Strs("args", args).Msg("Executing")
	}

	var out bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s %s: %w: %s", ErrCommandFailed, name, strings.Join(args, " "), err,
			strings.TrimSpace(out.String()))
	}

	return nil
}

// CommandProvisioner implements Provisioner with wipefs, parted, mkfs.vfat,
// mount and umount.
type CommandProvisioner struct {
	runner Runner
	logger logger.Logger
	sizer  func(device string) (int64, error)
	mounts func(ctx context.Context) ([]disk.PartitionStat, error)
}

// NewCommandProvisioner returns a provisioner that runs commands via runner.
// A nil runner uses ExecRunner.
func NewCommandProvisioner(runner Runner, log logger.Logger) *CommandProvisioner {
	if log == nil {
		log = logger.NewTestLogger()
	}

	if runner == nil {
		runner = &ExecRunner{Logger: log}
	}

	return &CommandProvisioner{
		runner: runner,
		logger: log,
		sizer:  deviceSize,
		mounts: func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, true)
		},
	}
}

var _ Provisioner = (*CommandProvisioner)(nil)

// DeviceSize returns the raw capacity of device in bytes.
func (p *CommandProvisioner) DeviceSize(_ context.Context, device string) (int64, error) {
	size, err := p.sizer(device)
	if err != nil {
		return 0, fmt.Errorf("failed to read size of %s: %w", device, err)
	}

	p.logger.Debug().Str("device", device).Int64("bytes", size).Msg("Device size")

	return size, nil
}

// Wipe removes every filesystem and partition-table signature.
func (p *CommandProvisioner) Wipe(ctx context.Context, device string) error {
	return p.runner.Run(ctx, "wipefs", "-a", device)
}

// Partition writes a fresh MBR label with one primary FAT32 partition.
func (p *CommandProvisioner) Partition(ctx context.Context, device string, geometry Geometry) error {
	return p.runner.Run(ctx, "parted", "-s", device,
		"mklabel", "msdos",
		"mkpart", "primary", "fat32",
		fmt.Sprintf("%dMiB", geometry.StartMiB),
		fmt.Sprintf("%d%%", geometry.EndPercent))
}

// Format creates a FAT32 filesystem labelled label.
func (p *CommandProvisioner) Format(ctx context.Context, partition, label string) error {
	return p.runner.Run(ctx, "mkfs.vfat", "-n", label, "-F", "32", partition)
}

// Mount creates mountPoint if needed and mounts partition on it.
func (p *CommandProvisioner) Mount(ctx context.Context, partition, mountPoint string) error {
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point %s: %w", mountPoint, err)
	}

	return p.runner.Run(ctx, "mount", partition, mountPoint)
}

// Unmount detaches whatever is mounted on mountPoint.
func (p *CommandProvisioner) Unmount(ctx context.Context, mountPoint string) error {
	return p.runner.Run(ctx, "umount", mountPoint)
}

// IsMounted reports whether anything is mounted on mountPoint.
func (p *CommandProvisioner) IsMounted(ctx context.Context, mountPoint string) (bool, error) {
	parts, err := p.mounts(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list mounts: %w", err)
	}

	want := filepath.Clean(mountPoint)

	for _, part := range parts {
		if filepath.Clean(part.Mountpoint) == want {
			return true, nil
		}
	}

	return false, nil
}
