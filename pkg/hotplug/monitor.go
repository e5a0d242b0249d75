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

package hotplug

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/usbcopier/pkg/clock"
	"github.com/carverauto/usbcopier/pkg/controlplane"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/models"
)

// EventKind says what happened to a slot.
type EventKind int

const (
	Inserted EventKind = iota + 1
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Unbound is the DeviceID of an event on a port no slot owns yet.
const Unbound = -1

// Event is one insertion or removal mapped onto a slot.
type Event struct {
	Kind     EventKind
	DeviceID int
	Node     string
	PortPath string
	// AtStartup marks drives that were already plugged in at the first scan.
	AtStartup bool
}

const eventBuffer = 64

// Monitor polls a Scanner and applies each scan to the control plane.
type Monitor struct {
	scanner  Scanner
	plane    *controlplane.ControlPlane
	interval time.Duration
	clock    clock.Clock
	logger   logger.Logger
	assign   bool

	// mu serialises scans with Bind
	mu      sync.Mutex
	scanned bool
	unbound map[string]string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// MonitorOption tunes a Monitor.
type MonitorOption func(*Monitor)

// WithAutoAssign binds unknown ports to the lowest slot without one instead
// of waiting for Bind.
func WithAutoAssign() MonitorOption {
	return func(m *Monitor) {
		m.assign = true
	}
}

// NewMonitor builds a Monitor. portMap pre-binds slots to port paths.
func NewMonitor(scanner Scanner, plane *controlplane.ControlPlane, interval time.Duration,
	portMap map[int]string, clk clock.Clock, log logger.Logger, opts ...MonitorOption) (*Monitor, error) {
	if clk == nil {
		clk = clock.Real()
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	for id, portPath := range portMap {
		if _, err := plane.BindPortPath(id, portPath); err != nil {
			return nil, err
		}
	}

	m := &Monitor{
		scanner:  scanner,
		plane:    plane,
		interval: interval,
		clock:    clk,
		logger:   log,
		unbound:  make(map[string]string),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Events delivers slot changes. Events are dropped when nobody reads them.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Start polls until ctx ends or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := m.Sync(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Initial USB scan failed")
	}

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case <-ticker.Chan():
			if _, err := m.Sync(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}

				m.logger.Error().Err(err).Msg("USB scan failed")
			}
		}
	}
}

// Stop ends Start.
func (m *Monitor) Stop() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Sync performs one scan and applies it. Events from the first scan carry
// AtStartup.
func (m *Monitor) Sync(ctx context.Context) ([]Event, error) {
	devices, err := m.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()

	events, unknown := reconcile(m.plane, devices, m.assign, m.logger)
	events = append(events, m.trackUnbound(unknown)...)

	if !m.scanned {
		m.scanned = true

		for i := range events {
			events[i].AtStartup = true
		}
	}

	m.mu.Unlock()

	for _, ev := range events {
		select {
		case m.events <- ev:
		default:
			m.logger.Debug().Int("device_id", ev.DeviceID).Str("event", ev.Kind.String()).Msg("Dropping hotplug event")
		}
	}

	return events, nil
}

// Bind ties slot id to the port a drive was just seen on and records the
// drive in it, so the next scan reports nothing new for that port.
func (m *Monitor) Bind(id int, node, portPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, err := m.plane.BindPortPath(id, portPath)
	if err != nil {
		return err
	}

	ch.SetDeviceName(node)
	delete(m.unbound, portPath)

	m.logger.Info().Int("device_id", id).Str("node", node).Str("port_path", portPath).Msg("Port bound to slot")

	return nil
}

// trackUnbound reports drives on ports no slot owns, once per appearance.
func (m *Monitor) trackUnbound(unknown []Device) []Event {
	var events []Event

	seen := make(map[string]bool, len(unknown))

	for _, dev := range unknown {
		seen[dev.PortPath] = true

		if m.unbound[dev.PortPath] == dev.Node {
			continue
		}

		m.unbound[dev.PortPath] = dev.Node
		events = append(events, Event{Kind: Inserted, DeviceID: Unbound, Node: dev.Node, PortPath: dev.PortPath})
	}

	for portPath, node := range m.unbound {
		if seen[portPath] {
			continue
		}

		delete(m.unbound, portPath)
		events = append(events, Event{Kind: Removed, DeviceID: Unbound, Node: node, PortPath: portPath})
	}

	return events
}

// Apply reconciles the control plane with the set of present devices and
// returns what changed. Unknown ports are bound to the lowest slot without
// one. A slot whose drive disappears goes back to EMPTY unless it shows a
// failure, which stays lit until a new drive goes in.
func Apply(plane *controlplane.ControlPlane, devices []Device, log logger.Logger) []Event {
	events, _ := reconcile(plane, devices, true, log)

	return events
}

// reconcile is Apply with auto-binding optional. Devices on ports no slot
// owns are returned when assign is false.
func reconcile(plane *controlplane.ControlPlane, devices []Device, assign bool, log logger.Logger) ([]Event, []Device) {
	present := make(map[int]bool, len(devices))

	var (
		events  []Event
		unknown []Device
	)

	for _, dev := range devices {
		ch, ok := plane.FindByPortPath(dev.PortPath)
		if !ok && !assign {
			unknown = append(unknown, dev)
			continue
		}

		if !ok {
			var err error

			if ch, err = plane.AssignPortPath(dev.PortPath); err != nil {
				log.Warn().Err(err).Str("node", dev.Node).Msg("Ignoring USB device")
				continue
			}
		}

		present[ch.ID()] = true

		if ch.DeviceName() == dev.Node {
			continue
		}

		log.Info().
			Int("device_id", ch.ID()).
			Str("node", dev.Node).
			Str("port_path", dev.PortPath).
			Msg("USB device inserted")

		ch.SetDeviceName(dev.Node)
		ch.SetState(models.StateReady)

		events = append(events, Event{Kind: Inserted, DeviceID: ch.ID(), Node: dev.Node, PortPath: dev.PortPath})
	}

	for _, ch := range plane.Channels() {
		if present[ch.ID()] || ch.DeviceName() == "" {
			continue
		}

		node := ch.DeviceName()

		log.Info().
			Int("device_id", ch.ID()).
			Str("node", node).
			Str("port_path", ch.DevicePath()).
			Msg("USB device removed")

		if !ch.State().IsFailure() {
			ch.SetState(models.StateEmpty)
		}

		ch.SetDeviceName("")

		events = append(events, Event{Kind: Removed, DeviceID: ch.ID(), Node: node, PortPath: ch.DevicePath()})
	}

	return events, unknown
}
