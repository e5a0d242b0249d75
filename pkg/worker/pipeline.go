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

// Package worker runs one channel's destructive duplication pipeline:
// erase, partition, format, mount, copy, unmount and optionally verify,
// recording each transition in the channel's control-plane slot.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/carverauto/usbcopier/pkg/blockdev"
	"github.com/carverauto/usbcopier/pkg/copier"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/carverauto/usbcopier/pkg/verify"
)

const minPortPathLen = 2

// Record is the part of a control-plane slot the pipeline reads and writes.
// *controlplane.Channel satisfies it.
type Record interface {
	ID() int
	State() models.ChannelState
	SetState(s models.ChannelState)
	Halted() bool
	SetHalt(halt bool)
	Cancelled() bool
	SetStartTime(t time.Time)
	BytesCopied() int64
	SetBytesCopied(n int64)
	AddBytes(n int64)
	DeviceName() string
	DevicePath() string
}

// Config is what a pipeline needs to know about the appliance.
type Config struct {
	MasterDir    string
	ManifestPath string
	MountRoot    string
	VolumeLabel  string
	MasterSize   int64
	Verify       bool
}

// Pipeline drives one Record from STARTING to a terminal state.
type Pipeline struct {
	record Record
	prov   blockdev.Provisioner
	cfg    Config
	rng    *rand.Rand
	logger logger.Logger

	device     string
	partition  string
	mountPoint string
	deviceSize int64
	mounted    bool
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithRand fixes the source used for the wear-levelling offset.
func WithRand(rng *rand.Rand) Option {
	return func(p *Pipeline) {
		p.rng = rng
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) {
		p.logger = log
	}
}

// New returns a pipeline for record.
func New(record Record, prov blockdev.Provisioner, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		record: record,
		prov:   prov,
		cfg:    cfg,
		logger: logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

type stage struct {
	state models.ChannelState
	run   func(ctx context.Context) error
}

// stages lists the steps between STARTING and UNMOUNTING in the order they
// must run.
func (p *Pipeline) stages() []stage {
	return []stage{
		{state: models.StateErasing, run: p.erase},
		{state: models.StatePartitioning, run: p.partitionDevice},
		{state: models.StateFormating, run: p.format},
		{state: models.StateMounting, run: p.mount},
		{state: models.StateCopying, run: p.copyMaster},
	}
}

// Check validates the record before anything is touched.
func (p *Pipeline) Check() error {
	name := p.record.DeviceName()
	if err := blockdev.ValidateDevice(name); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, name)
	}

	if path := p.record.DevicePath(); len(path) < minPortPathLen {
		return fmt.Errorf("%w: %q", ErrInvalidPortPath, path)
	}

	return nil
}

func (p *Pipeline) halted(ctx context.Context) bool {
	return ctx.Err() != nil || p.record.Halted()
}

// Run executes the pipeline and returns the terminal state. A cancelled run
// ends in FAILED with a nil error; any stage failure ends in FAILED (or
// CRC_FAILED from verification) with the cancellation flag forced on and a
// *StageError returned.
func (p *Pipeline) Run(ctx context.Context) (models.ChannelState, error) {
	if err := p.Check(); err != nil {
		p.fail(models.StateFailed)
		return models.StateFailed, err
	}

	p.device = p.record.DeviceName()
	p.partition = blockdev.PartitionName(p.device)
	p.mountPoint = blockdev.MountPoint(p.cfg.MountRoot, p.device)

	p.logger.Info().
		Str("device", p.device).
		Str("port_path", p.record.DevicePath()).
		Str("partition", p.partition).
		Str("mount_point", p.mountPoint).
		Msg("Worker starting")

	if err := p.start(ctx); err != nil {
		return p.stageFailed(ctx, models.StateStarting, err)
	}

	for _, st := range p.stages() {
		if p.halted(ctx) {
			return p.cancelled(ctx), nil
		}

		p.enter(st.state)

		if err := st.run(ctx); err != nil {
			return p.stageFailed(ctx, st.state, err)
		}
	}

	// the unmount runs whether or not the copy was cancelled
	p.enter(models.StateUnmounting)

	if err := p.unmount(ctx); err != nil {
		return p.stageFailed(ctx, models.StateUnmounting, err)
	}

	if p.halted(ctx) {
		return p.cancelled(ctx), nil
	}

	if p.cfg.Verify {
		p.enter(models.StateVerifying)

		res, err := p.verify(ctx)
		if err != nil {
			p.logger.Error().Err(err).Msg("Verification failed")
			p.fail(models.StateCRCFailed)

			return models.StateCRCFailed, &StageError{State: models.StateVerifying, Err: err}
		}

		if res.Cancelled || p.halted(ctx) {
			return p.cancelled(ctx), nil
		}
	}

	p.record.SetState(models.StateSuccess)
	p.logger.Info().Int64("bytes", p.record.BytesCopied()).Msg("Worker finished")

	return models.StateSuccess, nil
}

func (p *Pipeline) enter(state models.ChannelState) {
	p.record.SetState(state)
	p.logger.Debug().Str("state", state.String()).Msg("Entering stage")
}

func (p *Pipeline) fail(state models.ChannelState) {
	p.record.SetHalt(true)
	p.record.SetState(state)
}

func (p *Pipeline) stageFailed(ctx context.Context, state models.ChannelState, err error) (models.ChannelState, error) {
	p.logger.Error().Err(err).Str("state", state.String()).Msg("Stage failed")
	p.releaseMount(ctx)
	p.fail(models.StateFailed)

	return models.StateFailed, &StageError{State: state, Err: err}
}

func (p *Pipeline) cancelled(ctx context.Context) models.ChannelState {
	p.logger.Warn().Msg("Worker cancelled")
	p.releaseMount(ctx)
	p.record.SetState(models.StateFailed)

	return models.StateFailed
}

// releaseMount is the best-effort unmount used on failure and cancel paths
// that bypass UNMOUNTING.
func (p *Pipeline) releaseMount(ctx context.Context) {
	if !p.mounted {
		return
	}

	if err := p.unmount(ctx); err != nil {
		p.logger.Warn().Err(err).Str("mount_point", p.mountPoint).Msg("Cleanup unmount failed")
	}
}

func (p *Pipeline) start(ctx context.Context) error {
	// halt belongs to the dispatcher: it is cleared before launch so a cancel
	// posted while the worker is starting up still counts
	p.record.SetState(models.StateStarting)
	p.record.SetBytesCopied(0)

	if mounted, err := p.prov.IsMounted(ctx, p.mountPoint); err == nil && mounted {
		p.logger.Warn().Str("mount_point", p.mountPoint).Msg("Removing stale mount")

		if err := p.prov.Unmount(ctx, p.mountPoint); err != nil {
			p.logger.Debug().Err(err).Msg("Stale unmount failed")
		}
	}

	size, err := p.prov.DeviceSize(ctx, p.device)
	if err != nil {
		return err
	}

	p.deviceSize = size
	p.logger.Info().Int64("device_size", size).Msg("Device size")

	return nil
}

func (p *Pipeline) erase(ctx context.Context) error {
	return p.prov.Wipe(ctx, p.device)
}

func (p *Pipeline) partitionDevice(ctx context.Context) error {
	geometry := blockdev.PlanGeometry(p.deviceSize, p.cfg.MasterSize, p.rng)
	p.logger.Info().Str("geometry", geometry.String()).Msg("Partitioning")

	return p.prov.Partition(ctx, p.device, geometry)
}

func (p *Pipeline) format(ctx context.Context) error {
	return p.prov.Format(ctx, p.partition, p.cfg.VolumeLabel)
}

func (p *Pipeline) mount(ctx context.Context) error {
	if err := p.prov.Mount(ctx, p.partition, p.mountPoint); err != nil {
		return err
	}

	p.mounted = true

	return nil
}

func (p *Pipeline) copyMaster(ctx context.Context) error {
	p.logger.Info().Str("source", p.cfg.MasterDir).Msg("Copying files")

	res, err := copier.Copy(ctx, p.cfg.MasterDir, p.mountPoint, copier.Options{
		Canceler: p.record,
		Counter:  p.record,
		Logger:   p.logger,
	})
	if err != nil {
		return err
	}

	p.logger.Info().
		Int("files", res.Files).
		Int64("bytes", res.Bytes).
		Bool("cancelled", res.Cancelled).
		Msg("Copy finished")

	return nil
}

func (p *Pipeline) unmount(ctx context.Context) error {
	if !p.mounted {
		return nil
	}

	if err := p.prov.Unmount(context.WithoutCancel(ctx), p.mountPoint); err != nil {
		return err
	}

	p.mounted = false

	return nil
}

func (p *Pipeline) verify(ctx context.Context) (verify.Result, error) {
	res, err := verify.Run(ctx, verify.Request{
		Partition:    p.partition,
		MountPoint:   p.mountPoint,
		ManifestPath: p.cfg.ManifestPath,
		Provisioner:  p.prov,
		Canceler:     p.record,
		Logger:       p.logger,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, err
	}

	if err != nil {
		res.Cancelled = true
	}

	return res, nil
}
