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

// Command copier is the duplicator's supervisor: it owns the control plane,
// tracks drives as they are plugged in, loads the master and starts a
// copier-worker per slot when a hub's button is pressed.
//
// Without the console, SIGUSR1 starts every hub and SIGUSR2 cancels them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/usbcopier/pkg/blockdev"
	"github.com/carverauto/usbcopier/pkg/config"
	"github.com/carverauto/usbcopier/pkg/controlplane"
	"github.com/carverauto/usbcopier/pkg/display"
	"github.com/carverauto/usbcopier/pkg/hotplug"
	"github.com/carverauto/usbcopier/pkg/lifecycle"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/supervisor"
	"github.com/carverauto/usbcopier/pkg/version"
	"golang.org/x/sync/errgroup"
)

var errFailedToLoadConfig = errors.New("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath, "Path to copier config file")
	console := flag.Bool("console", false, "Run the terminal front panel")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadCopierConfig(ctx, *configPath, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	if *console {
		cfg.Console = true
	}

	copierLogger, err := lifecycle.CreateComponentLogger("copier", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	plane, err := controlplane.Create(cfg.ControlPlanePath, cfg.Hubs, cfg.PortsPerHub)
	if err != nil {
		return err
	}

	plane.SetVerify(cfg.Verify)

	var (
		disp  display.Display
		input display.Input
		panel *display.Console
	)

	if cfg.Console {
		panel = display.NewConsole(cfg.Hubs, plane.Snapshot)
		disp, input = panel, panel
	} else {
		buttons := display.NewButtons()
		go pressOnSignal(ctx, buttons, cfg.Hubs)

		disp, input = display.NewLogDisplay(copierLogger), buttons
	}

	title, ver := version.Banner()
	disp.Message(title, "", ver, "")

	copierLogger.Info().
		Str("version", version.GetFullVersion()).
		Int("hubs", cfg.Hubs).
		Int("ports_per_hub", cfg.PortsPerHub).
		Str("control_plane", plane.Path()).
		Msg("Starting")

	var monitorOpts []hotplug.MonitorOption
	if cfg.AutoAssignPorts {
		monitorOpts = append(monitorOpts, hotplug.WithAutoAssign())
	}

	monitor, err := hotplug.NewMonitor(hotplug.NewSysfsScanner(), plane, cfg.HotplugInterval.Std(),
		cfg.PortMap, nil, componentLogger("hotplug", cfg.Logging, copierLogger), monitorOpts...)
	if err != nil {
		_ = plane.Close()
		return err
	}

	supLogger := componentLogger("supervisor", cfg.Logging, copierLogger)
	launcher := supervisor.NewProcessLauncher(cfg.WorkerCommand, supLogger)

	sup := supervisor.New(plane, disp, input, launcher, supervisor.ConfigFrom(cfg),
		supervisor.WithLogger(supLogger),
		supervisor.WithProvisioner(blockdev.NewCommandProvisioner(nil, supLogger)),
		supervisor.WithEvents(monitor.Events()),
		supervisor.WithPortBinder(monitor),
	)

	err = serve(ctx, startup{loadMaster: cfg.LoadMaster, mapPorts: cfg.NeedsPortMapping()}, sup, monitor, panel)

	sup.Detach()

	if cerr := plane.Close(); cerr != nil {
		copierLogger.Error().Err(cerr).Msg("Failed to close control plane")
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, display.ErrQuit) {
		copierLogger.Info().Msg("Stopped")
		return nil
	}

	return err
}

// startup picks the interactive steps run before copying begins.
type startup struct {
	loadMaster bool
	mapPorts   bool
}

// serve runs the lamp test, then the hot-plug monitor, the optional console
// and the supervisor together until one of them stops.
func serve(ctx context.Context, steps startup, sup *supervisor.Supervisor,
	monitor *hotplug.Monitor, panel *display.Console) error {
	if err := sup.LampTest(ctx); err != nil {
		return err
	}

	// drives already plugged in are recorded before any prompt appears
	if _, err := monitor.Sync(ctx); err != nil {
		return fmt.Errorf("initial USB scan failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return monitor.Start(gctx) })

	if panel != nil {
		g.Go(func() error { return panel.Run(gctx) })
	}

	g.Go(func() error {
		if steps.loadMaster {
			if err := sup.LoadMaster(gctx); err != nil {
				return fmt.Errorf("failed to load master: %w", err)
			}
		}

		if steps.mapPorts {
			if err := sup.MapPorts(gctx); err != nil {
				return fmt.Errorf("failed to map ports: %w", err)
			}
		}

		return sup.Run(gctx)
	})

	return g.Wait()
}

func componentLogger(component string, cfg *logger.Config, fallback logger.Logger) logger.Logger {
	l, err := lifecycle.CreateComponentLogger(component, cfg)
	if err != nil {
		return fallback
	}

	return l
}

// pressOnSignal stands in for the front panel buttons on a headless unit.
func pressOnSignal(ctx context.Context, buttons *display.Buttons, hubs int) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)

	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			button := display.ShortPress
			if sig == syscall.SIGUSR2 {
				button = display.LongPress
			}

			for hub := 0; hub < hubs; hub++ {
				buttons.Press(hub, button)
			}
		}
	}
}
