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

// Package supervisor runs the appliance control loop: it reads the hub
// buttons, dispatches one worker process per ready slot, aggregates their
// progress from the control plane and cancels a hub on request.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/usbcopier/pkg/blockdev"
	"github.com/carverauto/usbcopier/pkg/clock"
	"github.com/carverauto/usbcopier/pkg/controlplane"
	"github.com/carverauto/usbcopier/pkg/display"
	"github.com/carverauto/usbcopier/pkg/hotplug"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/google/uuid"
)

// CancelledText is shown on a hub's status row after a cancel.
const CancelledText = "CANCELLED"

var (
	errNoEvents      = errors.New("no hot-plug events to wait on")
	errNoProvisioner = errors.New("no block-device provisioner configured")
	errNoPortBinder  = errors.New("no port binder configured")
)

// PortBinder ties a slot to the USB port a drive was just seen on.
type PortBinder interface {
	Bind(id int, node, portPath string) error
}

// Config holds the supervisor's timing and the master locations.
type Config struct {
	PollInterval time.Duration
	StaggerDelay time.Duration
	LampTestStep time.Duration
	MasterDir    string
	ManifestPath string
	MountRoot    string
}

// ConfigFrom extracts the supervisor settings from the appliance config.
func ConfigFrom(c *models.CopierConfig) Config {
	return Config{
		PollInterval: c.PollInterval.Std(),
		StaggerDelay: c.StaggerDelay.Std(),
		LampTestStep: c.LampTestStep.Std(),
		MasterDir:    c.MasterDir,
		ManifestPath: c.ManifestPath,
		MountRoot:    c.MountRoot,
	}
}

type hubRun struct {
	busy    bool
	started time.Time
	runID   string
}

// Supervisor owns the control plane and drives every hub.
type Supervisor struct {
	plane    *controlplane.ControlPlane
	display  display.Display
	input    display.Input
	launcher Launcher
	cfg      Config

	clock       clock.Clock
	logger      logger.Logger
	alive       LivenessFunc
	provisioner blockdev.Provisioner
	events      <-chan hotplug.Event
	binder      PortBinder

	mu       sync.Mutex
	hubs     []hubRun
	detached bool
}

// Option customises a Supervisor.
type Option func(*Supervisor)

func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Supervisor) { s.logger = log }
}

// WithLiveness replaces the process-table check.
func WithLiveness(fn LivenessFunc) Option {
	return func(s *Supervisor) { s.alive = fn }
}

// WithProvisioner sets the block-device layer used to mount the master.
func WithProvisioner(p blockdev.Provisioner) Option {
	return func(s *Supervisor) { s.provisioner = p }
}

// WithEvents sets the hot-plug feed LoadMaster and MapPorts wait on.
func WithEvents(events <-chan hotplug.Event) Option {
	return func(s *Supervisor) { s.events = events }
}

func WithPortBinder(b PortBinder) Option {
	return func(s *Supervisor) { s.binder = b }
}

// New builds a Supervisor. If launcher is a *ProcessLauncher its exit
// notifications are wired to the supervisor.
func New(plane *controlplane.ControlPlane, disp display.Display, input display.Input,
	launcher Launcher, cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		plane:    plane,
		display:  disp,
		input:    input,
		launcher: launcher,
		cfg:      cfg,
		clock:    clock.Real(),
		logger:   logger.NewTestLogger(),
		alive:    PidExists,
		hubs:     make([]hubRun, plane.Hubs()),
	}

	for _, opt := range opts {
		opt(s)
	}

	if pl, ok := launcher.(*ProcessLauncher); ok {
		pl.OnExit(s.workerExited)
	}

	return s
}

// Run shows the ready prompt and polls the buttons until ctx ends. Channels
// still running at that point are told to halt.
func (s *Supervisor) Run(ctx context.Context) error {
	s.display.Message("Ready to copy", "", "Press Red button", "to begin")

	ticker := s.clock.Ticker(s.cfg.PollInterval)
	defer ticker.Stop()

	prompt := true

	for {
		select {
		case <-ctx.Done():
			s.haltAll()
			return ctx.Err()
		case <-ticker.Chan():
			buttons := make([]display.Button, len(s.hubs))

			for hub := range buttons {
				buttons[hub] = s.input.Button(hub)

				if prompt && buttons[hub] != display.NotPressed {
					s.display.Clear()

					prompt = false
				}
			}

			for hub, button := range buttons {
				if err := s.HandleHub(ctx, hub, button); err != nil {
					s.haltAll()
					return err
				}
			}
		}
	}
}

// Busy reports whether hub has a run in progress.
func (s *Supervisor) Busy(hub int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hubs[hub].busy
}

// HandleHub advances one hub by one poll. An idle hub starts on a short
// press; a busy one cancels on a long press and otherwise shows progress
// until its last slot finishes.
func (s *Supervisor) HandleHub(ctx context.Context, hub int, button display.Button) error {
	s.mu.Lock()
	run := s.hubs[hub]
	s.mu.Unlock()

	if !run.busy {
		if button == display.ShortPress {
			return s.start(ctx, hub)
		}

		return nil
	}

	if button == display.LongPress {
		s.Cancel(hub)

		return nil
	}

	s.checkLiveness(ctx, hub)

	tally := Count(s.hubSlots(hub))

	if tally.Busy > 0 {
		s.display.SetLine(display.StatusRow(hub), tally.StatusText())
		s.display.SetBar(display.DetailRow(hub), tally.Percent(s.plane.MasterSize()))

		return nil
	}

	elapsed := s.clock.Now().Sub(run.started)

	s.display.SetLine(display.StatusRow(hub), tally.DoneText())
	s.display.SetLine(display.DetailRow(hub), WroteText(tally.Bytes, elapsed))

	s.logger.Info().
		Int("hub", hub).
		Str("run_id", run.runID).
		Int("ok", tally.OK).
		Int("bad", tally.Bad).
		Int64("bytes", tally.Bytes).
		Dur("elapsed", elapsed).
		Msg("Hub finished")

	s.setIdle(hub)

	return nil
}

func (s *Supervisor) start(ctx context.Context, hub int) error {
	runID := uuid.NewString()

	s.mu.Lock()
	s.hubs[hub] = hubRun{busy: true, started: s.clock.Now(), runID: runID}
	s.mu.Unlock()

	s.logger.Info().Int("hub", hub).Str("run_id", runID).Msg("Hub start")

	s.display.SetLine(display.StatusRow(hub), "")
	s.display.SetLine(display.DetailRow(hub), "")

	_, err := s.Dispatch(ctx, hub, runID)

	return err
}

// Dispatch launches a worker for every startable slot on hub, pausing
// between launches. It returns how many were launched.
func (s *Supervisor) Dispatch(ctx context.Context, hub int, runID string) (int, error) {
	started := 0

	for _, ch := range s.plane.HubChannels(hub) {
		if !ch.State().IsStartable() {
			continue
		}

		// drop the previous run's pid so its late exit cannot match
		ch.SetPID(0)
		ch.SetHalt(false)
		ch.SetState(models.StateStarting)
		ch.SetStartTime(s.clock.Now())
		ch.SetBytesCopied(0)

		pid, err := s.launcher.Start(ctx, ch.ID())
		if err != nil {
			s.logger.Error().Err(err).Int("device_id", ch.ID()).Str("run_id", runID).Msg("Failed to start worker")
			ch.SetHalt(true)
			ch.SetState(models.StateFailed)

			continue
		}

		ch.SetPID(pid)
		started++

		s.logger.Debug().Int("device_id", ch.ID()).Int("pid", pid).Str("run_id", runID).Msg("Dispatched channel")

		if err := clock.Sleep(ctx, s.clock, s.cfg.StaggerDelay); err != nil {
			return started, err
		}
	}

	return started, nil
}

// Cancel raises the halt flag on every slot of hub and stops tracking it.
func (s *Supervisor) Cancel(hub int) {
	for _, ch := range s.plane.HubChannels(hub) {
		ch.SetHalt(true)
	}

	s.display.SetLine(display.StatusRow(hub), CancelledText)

	s.mu.Lock()
	runID := s.hubs[hub].runID
	s.mu.Unlock()

	s.logger.Warn().Int("hub", hub).Str("run_id", runID).Msg("Hub cancelled")

	s.setIdle(hub)
}

func (s *Supervisor) setIdle(hub int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hubs[hub].busy = false
}

func (s *Supervisor) hubSlots(hub int) []models.ChannelSnapshot {
	channels := s.plane.HubChannels(hub)
	slots := make([]models.ChannelSnapshot, 0, len(channels))

	for _, ch := range channels {
		slots = append(slots, ch.Snapshot())
	}

	return slots
}

// checkLiveness fails running slots whose worker process has gone away
// without recording a final state.
func (s *Supervisor) checkLiveness(ctx context.Context, hub int) {
	for _, ch := range s.plane.HubChannels(hub) {
		pid := ch.PID()
		if pid <= 0 || !ch.State().IsRunning() {
			continue
		}

		if s.alive(ctx, pid) {
			continue
		}

		s.failAbandoned(ch, "Worker process vanished")
	}
}

// Detach stops exit notifications from touching the control plane. Call it
// before closing the plane; workers may outlive the supervisor.
func (s *Supervisor) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detached = true
}

// workerExited ignores children from an earlier run: once a slot has been
// dispatched again its recorded pid belongs to the new worker.
func (s *Supervisor) workerExited(deviceID, pid int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detached {
		return
	}

	ch, chErr := s.plane.Channel(deviceID)
	if chErr != nil {
		return
	}

	if ch.PID() != pid {
		s.logger.Debug().Int("device_id", deviceID).Int("pid", pid).Int("current_pid", ch.PID()).Msg("Ignoring exit of a previous worker")
		return
	}

	if err != nil {
		s.logger.Debug().Err(err).Int("device_id", deviceID).Msg("Worker exit status")
	}

	s.failAbandoned(ch, "Worker exited without a final state")
}

// failAbandoned must only run after the worker is known to be gone: the
// worker records its final state before exiting, so a state that is still
// running can no longer change.
func (s *Supervisor) failAbandoned(ch *controlplane.Channel, msg string) {
	state := ch.State()
	if !state.IsRunning() {
		return
	}

	s.logger.Error().Int("device_id", ch.ID()).Str("state", state.String()).Msg(msg)

	ch.SetHalt(true)
	ch.SetState(models.StateFailed)
}

func (s *Supervisor) haltAll() {
	for _, ch := range s.plane.Channels() {
		if ch.State().IsRunning() {
			ch.SetHalt(true)
		}
	}
}
