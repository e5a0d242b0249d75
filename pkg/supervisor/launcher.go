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
	"os"
	"os/exec"
	"strconv"

	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/shirou/gopsutil/v3/process"
)

var errNoCommand = errors.New("worker command is empty")

// Launcher starts the worker for one channel and returns its pid.
type Launcher interface {
	Start(ctx context.Context, deviceID int) (int, error)
}

// ExitFunc is told when a launched worker has been reaped.
type ExitFunc func(deviceID, pid int, err error)

// ProcessLauncher runs the worker binary as a child process with the
// channel id appended to the command line. Children are not tied to the
// launching context; they are stopped through their halt flag.
type ProcessLauncher struct {
	command []string
	logger  logger.Logger
	onExit  ExitFunc
}

// NewProcessLauncher returns a launcher for command, e.g. ["sudo", "./copier-worker"].
func NewProcessLauncher(command []string, log logger.Logger) *ProcessLauncher {
	return &ProcessLauncher{command: command, logger: log}
}

// OnExit registers fn to run after each child exits.
func (p *ProcessLauncher) OnExit(fn ExitFunc) {
	p.onExit = fn
}

func (p *ProcessLauncher) Start(_ context.Context, deviceID int) (int, error) {
	if len(p.command) == 0 {
		return 0, errNoCommand
	}

	args := append(append([]string(nil), p.command[1:]...), strconv.Itoa(deviceID))

	//nolint:gosec // the worker command comes from the appliance configuration
	cmd := exec.Command(p.command[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start worker %d: %w", deviceID, err)
	}

	pid := cmd.Process.Pid

	p.logger.Info().Int("device_id", deviceID).Int("pid", pid).Strs("command", cmd.Args).Msg("Started worker")

	go func() {
		err := cmd.Wait()

		p.logger.Debug().Int("device_id", deviceID).Int("pid", pid).Err(err).Msg("Worker exited")

		if p.onExit != nil {
			p.onExit(deviceID, pid, err)
		}
	}()

	return pid, nil
}

// LivenessFunc reports whether pid still exists.
type LivenessFunc func(ctx context.Context, pid int) bool

// PidExists checks the process table through gopsutil. Errors count as
// alive so a transient failure never fails a drive.
func PidExists(ctx context.Context, pid int) bool {
	exists, err := process.PidExistsWithContext(ctx, int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return true
	}

	return exists
}
