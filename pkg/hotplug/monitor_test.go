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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/usbcopier/pkg/clock"
	"github.com/carverauto/usbcopier/pkg/controlplane"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type stubScanner struct {
	mu      sync.Mutex
	devices []Device
	err     error
}

func (s *stubScanner) set(devices ...Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices = devices
}

func (s *stubScanner) Scan(context.Context) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Device(nil), s.devices...), s.err
}

func newPlane(t *testing.T) *controlplane.ControlPlane {
	t.Helper()

	cp, err := controlplane.Create(filepath.Join(t.TempDir(), "shm"), 2, 7)
	require.NoError(t, err)

	t.Cleanup(func() { _ = cp.Close() })

	return cp
}

func TestApplyAssignsLowestFreeSlot(t *testing.T) {
	cp := newPlane(t)

	events := Apply(cp, []Device{
		{Node: "/dev/sdb", PortPath: "1-1.3"},
		{Node: "/dev/sdc", PortPath: "1-1.1"},
	}, logger.NewTestLogger())

	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: Inserted, DeviceID: 0, Node: "/dev/sdb", PortPath: "1-1.3"}, events[0])
	assert.Equal(t, Event{Kind: Inserted, DeviceID: 1, Node: "/dev/sdc", PortPath: "1-1.1"}, events[1])

	ch0, _ := cp.Channel(0)
	assert.Equal(t, models.StateReady, ch0.State())
	assert.Equal(t, "/dev/sdb", ch0.DeviceName())
	assert.Equal(t, "1-1.3", ch0.DevicePath())
}

func TestApplyIsQuietWhenNothingChanges(t *testing.T) {
	cp := newPlane(t)
	devices := []Device{{Node: "/dev/sdb", PortPath: "1-1.3"}}

	require.Len(t, Apply(cp, devices, logger.NewTestLogger()), 1)

	ch, _ := cp.Channel(0)
	ch.SetState(models.StateCopying)

	assert.Empty(t, Apply(cp, devices, logger.NewTestLogger()))
	assert.Equal(t, models.StateCopying, ch.State())
}

func TestApplyRemovalEmptiesSlot(t *testing.T) {
	cp := newPlane(t)

	Apply(cp, []Device{{Node: "/dev/sdb", PortPath: "1-1.3"}}, logger.NewTestLogger())

	ch, _ := cp.Channel(0)
	ch.SetState(models.StateSuccess)

	events := Apply(cp, nil, logger.NewTestLogger())
	require.Len(t, events, 1)
	assert.Equal(t, Removed, events[0].Kind)
	assert.Equal(t, "/dev/sdb", events[0].Node)

	assert.Equal(t, models.StateEmpty, ch.State())
	assert.Empty(t, ch.DeviceName())
	// the port keeps its slot
	assert.Equal(t, "1-1.3", ch.DevicePath())
}

func TestApplyRemovalKeepsFailureVisible(t *testing.T) {
	for _, state := range []models.ChannelState{models.StateFailed, models.StateCRCFailed} {
		t.Run(state.String(), func(t *testing.T) {
			cp := newPlane(t)

			Apply(cp, []Device{{Node: "/dev/sdb", PortPath: "1-1.3"}}, logger.NewTestLogger())

			ch, _ := cp.Channel(0)
			ch.SetState(state)

			Apply(cp, nil, logger.NewTestLogger())

			assert.Equal(t, state, ch.State())
			assert.Empty(t, ch.DeviceName())
		})
	}
}

func TestApplyReinsertInSamePortReusesSlot(t *testing.T) {
	cp := newPlane(t)
	log := logger.NewTestLogger()

	Apply(cp, []Device{{Node: "/dev/sdb", PortPath: "1-1.3"}, {Node: "/dev/sdc", PortPath: "1-1.4"}}, log)
	Apply(cp, []Device{{Node: "/dev/sdc", PortPath: "1-1.4"}}, log)

	ch0, _ := cp.Channel(0)
	ch0.SetState(models.StateFailed)

	events := Apply(cp, []Device{{Node: "/dev/sdd", PortPath: "1-1.3"}, {Node: "/dev/sdc", PortPath: "1-1.4"}}, log)
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].DeviceID)
	assert.Equal(t, models.StateReady, ch0.State())
	assert.Equal(t, "/dev/sdd", ch0.DeviceName())
}

func TestApplyIgnoresDevicesWithoutSlot(t *testing.T) {
	cp, err := controlplane.Create(filepath.Join(t.TempDir(), "shm"), 1, 1)
	require.NoError(t, err)

	t.Cleanup(func() { _ = cp.Close() })

	events := Apply(cp, []Device{
		{Node: "/dev/sdb", PortPath: "1-1.1"},
		{Node: "/dev/sdc", PortPath: "1-1.2"},
	}, logger.NewTestLogger())

	require.Len(t, events, 1)
	assert.Equal(t, "/dev/sdb", events[0].Node)
}

func TestNewMonitorAppliesPortMap(t *testing.T) {
	cp := newPlane(t)

	_, err := NewMonitor(&stubScanner{}, cp, time.Second, map[int]string{5: "1-1.6"}, nil, nil)
	require.NoError(t, err)

	events := Apply(cp, []Device{{Node: "/dev/sdb", PortPath: "1-1.6"}}, logger.NewTestLogger())
	require.Len(t, events, 1)
	assert.Equal(t, 5, events[0].DeviceID)

	_, err = NewMonitor(&stubScanner{}, cp, time.Second, map[int]string{99: "x"}, nil, nil)
	require.ErrorIs(t, err, controlplane.ErrInvalidChannel)
}

func TestMonitorStartPollsOnTicks(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockClock := clock.NewMockClock(ctrl)
	mockTicker := clock.NewMockTicker(ctrl)
	tick := make(chan time.Time)

	mockClock.EXPECT().Ticker(200 * time.Millisecond).Return(mockTicker)
	mockTicker.EXPECT().Chan().Return(tick).AnyTimes()
	mockTicker.EXPECT().Stop()

	cp := newPlane(t)
	scanner := &stubScanner{}

	m, err := NewMonitor(scanner, cp, 200*time.Millisecond, nil, mockClock, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- m.Start(ctx) }()

	scanner.set(Device{Node: "/dev/sdb", PortPath: "1-1.1"})
	tick <- time.Now()

	select {
	case ev := <-m.Events():
		assert.Equal(t, Inserted, ev.Kind)
		assert.Equal(t, "/dev/sdb", ev.Node)
	case <-time.After(time.Second):
		t.Fatal("no insert event")
	}

	scanner.set()
	tick <- time.Now()

	select {
	case ev := <-m.Events():
		assert.Equal(t, Removed, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no remove event")
	}

	m.Stop()
	require.NoError(t, <-done)
}

func TestSyncReportsUnboundPortsUntilBound(t *testing.T) {
	cp := newPlane(t)
	scanner := &stubScanner{}

	m, err := NewMonitor(scanner, cp, time.Second, nil, nil, logger.NewTestLogger())
	require.NoError(t, err)

	ctx := context.Background()

	// already plugged in when monitoring begins
	scanner.set(Device{Node: "/dev/sdb", PortPath: "1-1.2"})

	events, err := m.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Kind: Inserted, DeviceID: Unbound, Node: "/dev/sdb", PortPath: "1-1.2", AtStartup: true}, events[0])

	_, bound := cp.FindByPortPath("1-1.2")
	assert.False(t, bound)

	events, err = m.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	scanner.set(Device{Node: "/dev/sdb", PortPath: "1-1.2"}, Device{Node: "/dev/sdc", PortPath: "1-1.3"})

	events, err = m.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Kind: Inserted, DeviceID: Unbound, Node: "/dev/sdc", PortPath: "1-1.3"}, events[0])

	require.NoError(t, m.Bind(4, "/dev/sdc", "1-1.3"))
	require.ErrorIs(t, m.Bind(5, "/dev/sdb", "1-1.3"), controlplane.ErrPortInUse)

	events, err = m.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	ch, err := cp.Channel(4)
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdc", ch.DeviceName())
	assert.Equal(t, "1-1.3", ch.DevicePath())

	scanner.set(Device{Node: "/dev/sdc", PortPath: "1-1.3"})

	events, err = m.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Kind: Removed, DeviceID: Unbound, Node: "/dev/sdb", PortPath: "1-1.2"}, events[0])

	// the queued copies match what Sync returned
	assert.Len(t, m.Events(), 3)
}

func TestWithAutoAssignBindsUnknownPorts(t *testing.T) {
	cp := newPlane(t)
	scanner := &stubScanner{}

	m, err := NewMonitor(scanner, cp, time.Second, nil, nil, logger.NewTestLogger(), WithAutoAssign())
	require.NoError(t, err)

	scanner.set(Device{Node: "/dev/sdb", PortPath: "1-1.2"})

	events, err := m.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].DeviceID)
	assert.True(t, events[0].AtStartup)

	ch, err := cp.Channel(0)
	require.NoError(t, err)
	assert.Equal(t, models.StateReady, ch.State())
	assert.Equal(t, "1-1.2", ch.DevicePath())
}

func TestNewMonitorRejectsDuplicatePortMap(t *testing.T) {
	cp := newPlane(t)

	_, err := NewMonitor(&stubScanner{}, cp, time.Second, map[int]string{2: "1-1.2", 3: "1-1.2"}, nil, nil)
	require.ErrorIs(t, err, controlplane.ErrPortInUse)
}
