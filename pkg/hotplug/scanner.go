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

// Package hotplug discovers removable USB drives under /sys/block and keeps
// the control plane's device names in step with what is plugged in.
package hotplug

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultSysBlock = "/sys/block"
	DefaultDevDir   = "/dev"
)

var ErrNoRoute = errors.New("no usb route in sysfs link")

// Device is one removable drive as seen by the kernel.
type Device struct {
	// Node is the block device, e.g. /dev/sdb.
	Node string
	// PortPath is the stable USB route of the port it sits in, e.g. 3-1.3.
	PortPath string
}

// Scanner lists the removable drives currently present.
type Scanner interface {
	Scan(ctx context.Context) ([]Device, error)
}

// SysfsScanner reads /sys/block.
type SysfsScanner struct {
	SysBlock string
	DevDir   string
}

// NewSysfsScanner returns a scanner over the standard sysfs and /dev paths.
func NewSysfsScanner() *SysfsScanner {
	return &SysfsScanner{SysBlock: DefaultSysBlock, DevDir: DefaultDevDir}
}

// Scan returns every sd* block device that reports removable=1, sorted by
// node name.
func (s *SysfsScanner) Scan(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(s.SysBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.SysBlock, err)
	}

	var devices []Device

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		if !strings.HasPrefix(name, "sd") || !s.removable(name) {
			continue
		}

		link, err := os.Readlink(filepath.Join(s.SysBlock, name))
		if err != nil {
			continue
		}

		route, err := ExtractPortPath(link)
		if err != nil {
			continue
		}

		devices = append(devices, Device{
			Node:     filepath.Join(s.DevDir, name),
			PortPath: route,
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Node < devices[j].Node })

	return devices, nil
}

func (s *SysfsScanner) removable(name string) bool {
	raw, err := os.ReadFile(filepath.Join(s.SysBlock, name, "removable"))
	if err != nil {
		return false
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))

	return err == nil && v == 1
}

// ExtractPortPath pulls the USB route out of a /sys/block symlink target.
// For
//
//	../devices/platform/axi/1000120000.pcie/1f00300000.usb/xhci-hcd.1/usb3/3-1/3-1.3/3-1.3:1.0/host1/target1:0:0/1:0:0:0/block/sdb
//
// it returns "3-1.3": the interface component just above "/host", cut at
// its ':'.
func ExtractPortPath(link string) (string, error) {
	host := strings.Index(link, "/host")
	if host < 0 {
		return "", fmt.Errorf("%w: %s", ErrNoRoute, link)
	}

	prefix := link[:host]
	component := prefix[strings.LastIndexByte(prefix, '/')+1:]

	colon := strings.IndexByte(component, ':')
	if colon <= 0 {
		return "", fmt.Errorf("%w: %s", ErrNoRoute, link)
	}

	return component[:colon], nil
}
