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

package controlplane

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlane(t *testing.T) *ControlPlane {
	t.Helper()

	cp, err := Create(filepath.Join(t.TempDir(), "usb_copier_shm"), 2, 7)
	require.NoError(t, err)

	t.Cleanup(func() { _ = cp.Close() })

	return cp
}

func TestCreateInitialisesSlots(t *testing.T) {
	cp := newPlane(t)

	assert.Equal(t, 2, cp.Hubs())
	assert.Equal(t, 7, cp.PortsPerHub())
	require.Equal(t, 14, cp.NumChannels())

	for id, ch := range cp.Channels() {
		assert.Equal(t, id, ch.ID())
		assert.Equal(t, id/7, ch.Hub())
		assert.Equal(t, id%7, ch.Port())
		assert.Equal(t, models.StateEmpty, ch.State())
		assert.False(t, ch.Halted())
		assert.Empty(t, ch.DeviceName())
	}

	hub1 := cp.HubChannels(1)
	require.Len(t, hub1, 7)
	assert.Equal(t, 7, hub1[0].ID())
	assert.Nil(t, cp.HubChannels(2))
}

func TestCreateRejectsOversizedLayout(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "shm"), 5, 7)
	require.ErrorIs(t, err, ErrTooManySlots)
}

func TestAttachSharesState(t *testing.T) {
	cp := newPlane(t)

	worker, err := Attach(cp.Path())
	require.NoError(t, err)

	defer func() { _ = worker.Close() }()

	assert.Equal(t, cp.NumChannels(), worker.NumChannels())

	supCh, err := cp.Channel(3)
	require.NoError(t, err)

	supCh.SetDeviceName("/dev/sdc")
	supCh.SetState(models.StateStarting)
	cp.SetMasterSize(123 << 20)
	cp.SetVerify(true)

	wCh, err := worker.Channel(3)
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdc", wCh.DeviceName())
	assert.Equal(t, models.StateStarting, wCh.State())
	assert.Equal(t, int64(123<<20), worker.MasterSize())
	assert.True(t, worker.Verify())

	start := time.Unix(1_700_000_000, 0)
	wCh.SetStartTime(start)
	wCh.AddBytes(4096)
	wCh.SetPID(4242)
	wCh.SetHalt(true)

	assert.Equal(t, start, supCh.StartTime())
	assert.Equal(t, int64(4096), supCh.BytesCopied())
	assert.Equal(t, 4242, supCh.PID())
	assert.True(t, supCh.Cancelled())
}

func TestAttachErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Attach(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, ErrNotFound)

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, make([]byte, 100), 0o600))
	_, err = Attach(short)
	require.ErrorIs(t, err, ErrLayoutMismatch)

	blank := filepath.Join(dir, "blank")
	require.NoError(t, os.WriteFile(blank, make([]byte, Size), 0o600))
	_, err = Attach(blank)
	require.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestChannelOutOfRange(t *testing.T) {
	cp := newPlane(t)

	_, err := cp.Channel(14)
	require.ErrorIs(t, err, ErrInvalidChannel)

	_, err = cp.Channel(-1)
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestStringsAreTruncatedAndCleared(t *testing.T) {
	cp := newPlane(t)
	ch := cp.Channels()[0]

	ch.SetDeviceName(strings.Repeat("x", 400))
	assert.Len(t, ch.DeviceName(), StringCap-1)

	ch.SetDeviceName("/dev/sdb")
	assert.Equal(t, "/dev/sdb", ch.DeviceName())

	ch.SetDeviceName("")
	assert.Empty(t, ch.DeviceName())
}

func TestAssignPortPath(t *testing.T) {
	cp := newPlane(t)

	a, err := cp.AssignPortPath("3-1.1")
	require.NoError(t, err)
	assert.Equal(t, 0, a.ID())

	b, err := cp.AssignPortPath("3-1.2")
	require.NoError(t, err)
	assert.Equal(t, 1, b.ID())

	again, err := cp.AssignPortPath("3-1.1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.ID())

	found, ok := cp.FindByPortPath("3-1.2")
	require.True(t, ok)
	assert.Equal(t, 1, found.ID())

	_, ok = cp.FindByPortPath("")
	assert.False(t, ok)

	for i := 2; i < cp.NumChannels(); i++ {
		_, err := cp.AssignPortPath("port-" + string(rune('a'+i)))
		require.NoError(t, err)
	}

	_, err = cp.AssignPortPath("one-too-many")
	require.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestBindPortPathRefusesPortOwnedElsewhere(t *testing.T) {
	cp := newPlane(t)

	ch, err := cp.BindPortPath(3, "1-1.4")
	require.NoError(t, err)
	assert.Equal(t, "1-1.4", ch.DevicePath())

	// rebinding the same slot is fine
	_, err = cp.BindPortPath(3, "1-1.4")
	require.NoError(t, err)

	_, err = cp.BindPortPath(5, "1-1.4")
	require.ErrorIs(t, err, ErrPortInUse)

	other, err := cp.Channel(5)
	require.NoError(t, err)
	assert.Empty(t, other.DevicePath())

	_, err = cp.BindPortPath(cp.NumChannels(), "1-1.9")
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestWorkersOnlyTouchTheirOwnSlot(t *testing.T) {
	cp := newPlane(t)

	var wg sync.WaitGroup

	for _, ch := range cp.HubChannels(0) {
		wg.Add(1)

		go func(ch *Channel) {
			defer wg.Done()

			for i := 0; i < 1000; i++ {
				ch.AddBytes(int64(ch.ID() + 1))
			}

			ch.SetState(models.StateSuccess)
		}(ch)
	}

	wg.Wait()

	for _, ch := range cp.HubChannels(0) {
		assert.Equal(t, int64(1000*(ch.ID()+1)), ch.BytesCopied())
		assert.Equal(t, models.StateSuccess, ch.State())
	}

	for _, ch := range cp.HubChannels(1) {
		assert.Zero(t, ch.BytesCopied())
		assert.Equal(t, models.StateEmpty, ch.State())
	}
}

func TestCloseRemovesOwnedFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")

	cp, err := Create(path, 1, 2)
	require.NoError(t, err)

	worker, err := Attach(path)
	require.NoError(t, err)
	require.NoError(t, worker.Close())
	assert.FileExists(t, path)

	require.NoError(t, cp.Close())
	assert.NoFileExists(t, path)
	require.NoError(t, cp.Close())
}

func TestSnapshot(t *testing.T) {
	cp := newPlane(t)
	ch := cp.Channels()[8]
	ch.SetDevicePath("3-1.4")
	ch.SetState(models.StateCopying)

	snap := cp.Snapshot()
	require.Len(t, snap, 14)
	assert.Equal(t, models.ChannelSnapshot{
		DeviceID:   8,
		Hub:        1,
		Port:       1,
		State:      models.StateCopying,
		DevicePath: "3-1.4",
	}, snap[8])
}
