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

// Package controlplane is the fixed-layout shared state between the
// supervisor and its workers. The supervisor creates a file-backed region
// (normally under /dev/shm) and every worker maps the same file by name.
//
// There is no lock. Each field has one legitimate writer at a time: a worker
// owns the progress fields of its own slot while it runs, the supervisor owns
// dispatch, cancellation and reset between runs, and hot-plug owns device
// name, path and presence. Word-sized fields go through sync/atomic so a
// reader never sees a torn value.
package controlplane

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/carverauto/usbcopier/pkg/models"
	"golang.org/x/sys/unix"
)

const (
	// Magic marks an initialised region ("USBC").
	Magic uint32 = 0x55534243
	// Version changes whenever the byte layout changes.
	Version uint32 = 1

	// StringCap is the capacity of the device name and path fields,
	// including the terminating NUL.
	StringCap = 256

	headerSize = 40
	slotSize   = 552

	// Size is the byte length of the mapped region.
	Size = headerSize + models.MaxChannels*slotSize
)

// header offsets
const (
	offMagic       = 0
	offVersion     = 4
	offSize        = 8
	offHubs        = 12
	offPortsPerHub = 16
	offMasterSize  = 24
	offVerify      = 32
)

// slot offsets
const (
	offDeviceID    = 0
	offHub         = 4
	offPort        = 8
	offHalt        = 12
	offState       = 16
	offPID         = 20
	offStartTime   = 24
	offBytesCopied = 32
	offDeviceName  = 40
	offDevicePath  = offDeviceName + StringCap
)

var (
	ErrLayoutMismatch = errors.New("control plane layout mismatch")
	ErrNotFound       = errors.New("control plane not found")
	ErrInvalidChannel = errors.New("invalid channel id")
	ErrTooManySlots   = errors.New("too many channels for control plane")
	ErrNoFreeSlot     = errors.New("no free channel slot")
	ErrPortInUse      = errors.New("port already bound to another slot")
)

// ControlPlane is one process's view of the shared region.
type ControlPlane struct {
	path     string
	data     []byte
	owner    bool
	channels []*Channel
}

// Create makes a fresh region at path sized for hubs*portsPerHub channels,
// initialising every slot to EMPTY with its fixed hub and port. An existing
// file is truncated.
func Create(path string, hubs, portsPerHub int) (*ControlPlane, error) {
	if hubs <= 0 || portsPerHub <= 0 || hubs*portsPerHub > models.MaxChannels {
		return nil, fmt.Errorf("%w: %d hubs x %d ports", ErrTooManySlots, hubs, portsPerHub)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to create control plane %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := unix.Ftruncate(int(f.Fd()), Size); err != nil {
		return nil, fmt.Errorf("failed to size control plane %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map control plane %s: %w", path, err)
	}

	cp := &ControlPlane{path: path, data: data, owner: true}

	cp.store32(offVersion, Version)
	cp.store32(offSize, Size)
	cp.store32(offHubs, uint32(hubs))
	cp.store32(offPortsPerHub, uint32(portsPerHub))
	cp.buildChannels(hubs * portsPerHub)

	for id, ch := range cp.channels {
		ch.store32(offDeviceID, uint32(id))
		ch.store32(offHub, uint32(id/portsPerHub))
		ch.store32(offPort, uint32(id%portsPerHub))
		ch.SetState(models.StateEmpty)
	}

	// magic goes last so an early Attach cannot see a half-built region
	cp.store32(offMagic, Magic)

	return cp, nil
}

// Attach maps an existing region created by Create. The caller does not own
// it; Close only unmaps.
func Attach(path string) (*ControlPlane, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return nil, fmt.Errorf("failed to open control plane %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat control plane %s: %w", path, err)
	}

	if info.Size() != Size {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrLayoutMismatch, info.Size(), Size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map control plane %s: %w", path, err)
	}

	cp := &ControlPlane{path: path, data: data}

	if err := cp.checkHeader(); err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}

	cp.buildChannels(cp.Hubs() * cp.PortsPerHub())

	return cp, nil
}

func (cp *ControlPlane) checkHeader() error {
	if m := cp.load32(offMagic); m != Magic {
		return fmt.Errorf("%w: magic %#x", ErrLayoutMismatch, m)
	}

	if v := cp.load32(offVersion); v != Version {
		return fmt.Errorf("%w: version %d, want %d", ErrLayoutMismatch, v, Version)
	}

	if s := cp.load32(offSize); s != Size {
		return fmt.Errorf("%w: recorded size %d, want %d", ErrLayoutMismatch, s, Size)
	}

	if n := cp.Hubs() * cp.PortsPerHub(); n <= 0 || n > models.MaxChannels {
		return fmt.Errorf("%w: %d channels", ErrLayoutMismatch, n)
	}

	return nil
}

func (cp *ControlPlane) buildChannels(n int) {
	cp.channels = make([]*Channel, n)

	for id := range cp.channels {
		off := headerSize + id*slotSize
		cp.channels[id] = &Channel{data: cp.data[off : off+slotSize : off+slotSize]}
	}
}

// Close unmaps the region. The creating process also removes the file.
func (cp *ControlPlane) Close() error {
	if cp.data == nil {
		return nil
	}

	if err := unix.Msync(cp.data, unix.MS_SYNC); err != nil {
		_ = unix.Munmap(cp.data)
		cp.data = nil

		return fmt.Errorf("failed to sync control plane: %w", err)
	}

	if err := unix.Munmap(cp.data); err != nil {
		return fmt.Errorf("failed to unmap control plane: %w", err)
	}

	cp.data = nil
	cp.channels = nil

	if cp.owner {
		if err := os.Remove(cp.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove control plane %s: %w", cp.path, err)
		}
	}

	return nil
}

// Path is the backing file name.
func (cp *ControlPlane) Path() string { return cp.path }

func (cp *ControlPlane) Hubs() int { return int(cp.load32(offHubs)) }

func (cp *ControlPlane) PortsPerHub() int { return int(cp.load32(offPortsPerHub)) }

// NumChannels is the number of slots in use.
func (cp *ControlPlane) NumChannels() int { return len(cp.channels) }

// MasterSize is the cumulative byte size of the loaded master.
func (cp *ControlPlane) MasterSize() int64 {
	return atomic.LoadInt64(cp.word64(offMasterSize))
}

func (cp *ControlPlane) SetMasterSize(n int64) {
	atomic.StoreInt64(cp.word64(offMasterSize), n)
}

// Verify reports whether workers run the verification pass.
func (cp *ControlPlane) Verify() bool {
	return cp.load32(offVerify) != 0
}

func (cp *ControlPlane) SetVerify(v bool) {
	cp.store32(offVerify, boolWord(v))
}

// Channel returns the slot for id.
func (cp *ControlPlane) Channel(id int) (*Channel, error) {
	if id < 0 || id >= len(cp.channels) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrInvalidChannel, id, len(cp.channels))
	}

	return cp.channels[id], nil
}

// Channels returns every slot in device id order.
func (cp *ControlPlane) Channels() []*Channel {
	return cp.channels
}

// HubChannels returns the slots belonging to hub, in port order.
func (cp *ControlPlane) HubChannels(hub int) []*Channel {
	ports := cp.PortsPerHub()
	if hub < 0 || hub >= cp.Hubs() {
		return nil
	}

	return cp.channels[hub*ports : (hub+1)*ports]
}

// FindByPortPath returns the slot whose stable USB route is portPath.
func (cp *ControlPlane) FindByPortPath(portPath string) (*Channel, bool) {
	if portPath == "" {
		return nil, false
	}

	for _, ch := range cp.channels {
		if ch.DevicePath() == portPath {
			return ch, true
		}
	}

	return nil, false
}

// BindPortPath ties slot id to portPath. A port another slot already owns
// is refused with ErrPortInUse.
func (cp *ControlPlane) BindPortPath(id int, portPath string) (*Channel, error) {
	ch, err := cp.Channel(id)
	if err != nil {
		return nil, err
	}

	if owner, ok := cp.FindByPortPath(portPath); ok && owner.ID() != id {
		return nil, fmt.Errorf("%w: %s is slot %d", ErrPortInUse, portPath, owner.ID()+1)
	}

	ch.SetDevicePath(portPath)

	return ch, nil
}

// AssignPortPath binds portPath to the lowest slot that has none yet.
func (cp *ControlPlane) AssignPortPath(portPath string) (*Channel, error) {
	if ch, ok := cp.FindByPortPath(portPath); ok {
		return ch, nil
	}

	for _, ch := range cp.channels {
		if ch.DevicePath() == "" {
			ch.SetDevicePath(portPath)
			return ch, nil
		}
	}

	return nil, fmt.Errorf("%w for %s", ErrNoFreeSlot, portPath)
}

// Snapshot copies every slot out of the shared region.
func (cp *ControlPlane) Snapshot() []models.ChannelSnapshot {
	out := make([]models.ChannelSnapshot, len(cp.channels))
	for i, ch := range cp.channels {
		out[i] = ch.Snapshot()
	}

	return out
}

func (cp *ControlPlane) load32(off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&cp.data[off])))
}

func (cp *ControlPlane) store32(off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&cp.data[off])), v)
}

func (cp *ControlPlane) word64(off int) *int64 {
	return (*int64)(unsafe.Pointer(&cp.data[off]))
}

// Channel is a view of one slot inside the shared region.
type Channel struct {
	data []byte
}

func (c *Channel) load32(off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&c.data[off])))
}

func (c *Channel) store32(off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&c.data[off])), v)
}

func (c *Channel) word64(off int) *int64 {
	return (*int64)(unsafe.Pointer(&c.data[off]))
}

func (c *Channel) ID() int   { return int(int32(c.load32(offDeviceID))) }
func (c *Channel) Hub() int  { return int(int32(c.load32(offHub))) }
func (c *Channel) Port() int { return int(int32(c.load32(offPort))) }

func (c *Channel) State() models.ChannelState {
	return models.ChannelState(c.load32(offState))
}

func (c *Channel) SetState(s models.ChannelState) {
	c.store32(offState, uint32(s))
}

// Halted reports whether cancellation has been requested for the current run.
func (c *Channel) Halted() bool {
	return c.load32(offHalt) != 0
}

// Cancelled lets a Channel act as the copy engine's cancel flag.
func (c *Channel) Cancelled() bool {
	return c.Halted()
}

func (c *Channel) SetHalt(halt bool) {
	c.store32(offHalt, boolWord(halt))
}

// PID is the process id of the worker that owns the slot, or 0.
func (c *Channel) PID() int {
	return int(int32(c.load32(offPID)))
}

func (c *Channel) SetPID(pid int) {
	c.store32(offPID, uint32(int32(pid)))
}

func (c *Channel) StartTime() time.Time {
	sec := atomic.LoadInt64(c.word64(offStartTime))
	if sec == 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0)
}

func (c *Channel) SetStartTime(t time.Time) {
	var sec int64
	if !t.IsZero() {
		sec = t.Unix()
	}

	atomic.StoreInt64(c.word64(offStartTime), sec)
}

func (c *Channel) BytesCopied() int64 {
	return atomic.LoadInt64(c.word64(offBytesCopied))
}

func (c *Channel) SetBytesCopied(n int64) {
	atomic.StoreInt64(c.word64(offBytesCopied), n)
}

// AddBytes lets a Channel act as the copy engine's byte counter.
func (c *Channel) AddBytes(n int64) {
	atomic.AddInt64(c.word64(offBytesCopied), n)
}

// DeviceName is the block device node, e.g. /dev/sdb.
func (c *Channel) DeviceName() string {
	return readString(c.data[offDeviceName : offDeviceName+StringCap])
}

func (c *Channel) SetDeviceName(name string) {
	writeString(c.data[offDeviceName:offDeviceName+StringCap], name)
}

// DevicePath is the stable USB route of the port, e.g. 3-1.3.
func (c *Channel) DevicePath() string {
	return readString(c.data[offDevicePath : offDevicePath+StringCap])
}

func (c *Channel) SetDevicePath(path string) {
	writeString(c.data[offDevicePath:offDevicePath+StringCap], path)
}

// Snapshot copies the slot out of the shared region.
func (c *Channel) Snapshot() models.ChannelSnapshot {
	return models.ChannelSnapshot{
		DeviceID:    c.ID(),
		Hub:         c.Hub(),
		Port:        c.Port(),
		Halt:        c.Halted(),
		State:       c.State(),
		PID:         c.PID(),
		StartTime:   atomic.LoadInt64(c.word64(offStartTime)),
		BytesCopied: c.BytesCopied(),
		DeviceName:  c.DeviceName(),
		DevicePath:  c.DevicePath(),
	}
}

func readString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}

	return string(field)
}

// writeString stores s truncated to the field's capacity, NUL padded.
func writeString(field []byte, s string) {
	n := copy(field[:len(field)-1], s)
	clear(field[n:])
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}
