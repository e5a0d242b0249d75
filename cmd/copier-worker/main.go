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

// Command copier-worker duplicates the master onto the drive in one slot.
//
//	copier-worker [-config path] <channel-id>
//
// It exits 0 when the drive was written or the run was cancelled, and 1 on
// any failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/carverauto/usbcopier/pkg/blockdev"
	"github.com/carverauto/usbcopier/pkg/config"
	"github.com/carverauto/usbcopier/pkg/controlplane"
	"github.com/carverauto/usbcopier/pkg/lifecycle"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/worker"
)

var errUsage = errors.New("usage: copier-worker [-config path] <channel-id>")

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultPath, "Path to copier config file")
	flag.Parse()

	stderr, err := lifecycle.CreateComponentLogger("copier-worker", &logger.Config{Level: "error", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deviceID, err := channelArg(flag.Args())
	if err != nil {
		stderr.Error().Err(err).Msg("Invalid arguments")
		return 1
	}

	stderr = lifecycle.WithDevice(stderr, deviceID)

	if err := work(ctx, *configPath, deviceID); err != nil {
		stderr.Error().Err(err).Bool("precondition", worker.IsPrecondition(err)).Msg("Worker failed")
		return 1
	}

	return 0
}

func channelArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errUsage
	}

	id, err := strconv.Atoi(args[0])
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", worker.ErrInvalidChannel, args[0])
	}

	return id, nil
}

func work(ctx context.Context, configPath string, deviceID int) error {
	cfg, err := config.LoadCopierConfig(ctx, configPath, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	componentLogger, err := lifecycle.CreateComponentLogger("copier-worker", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := lifecycle.WithDevice(componentLogger, deviceID)

	plane, err := controlplane.Attach(cfg.ControlPlanePath)
	if err != nil {
		return fmt.Errorf("%w: %w", worker.ErrNoControlPlane, err)
	}

	defer func() { _ = plane.Close() }()

	ch, err := plane.Channel(deviceID)
	if err != nil {
		return fmt.Errorf("%w: %w", worker.ErrInvalidChannel, err)
	}

	pipeline := worker.New(ch, blockdev.NewCommandProvisioner(nil, log), worker.Config{
		MasterDir:    cfg.MasterDir,
		ManifestPath: cfg.ManifestPath,
		MountRoot:    cfg.MountRoot,
		VolumeLabel:  cfg.VolumeLabel,
		MasterSize:   plane.MasterSize(),
		Verify:       plane.Verify(),
	}, worker.WithLogger(log))

	state, err := pipeline.Run(ctx)

	log.Info().Str("state", state.String()).Msg("Worker done")

	return err
}
