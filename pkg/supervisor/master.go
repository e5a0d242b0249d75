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
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/usbcopier/pkg/blockdev"
	"github.com/carverauto/usbcopier/pkg/copier"
	"github.com/carverauto/usbcopier/pkg/hotplug"
	"github.com/carverauto/usbcopier/pkg/manifest"
	"github.com/carverauto/usbcopier/pkg/models"
)

// LoadMaster asks for the master drive, copies it into the master
// directory while writing the manifest, records the master size and waits
// for the drive to be removed. Drives already plugged in at start-up are
// never taken as the master. Any failure is fatal to start-up.
func (s *Supervisor) LoadMaster(ctx context.Context) error {
	if s.events == nil {
		return errNoEvents
	}

	if s.provisioner == nil {
		return errNoProvisioner
	}

	first, err := s.plane.Channel(0)
	if err != nil {
		return err
	}

	first.SetState(models.StateIndicating)
	s.display.Message("", "Insert Master", "in slot 1", "")

	s.logger.Info().Msg("Waiting for master USB to be inserted")

	inserted, err := s.waitFor(ctx, freshInsert)
	if err != nil {
		return err
	}

	// an unmapped port lights slot 1, where the operator was asked to plug in
	ch := first

	if inserted.DeviceID != hotplug.Unbound {
		if ch, err = s.plane.Channel(inserted.DeviceID); err != nil {
			return err
		}

		first.SetState(models.StateEmpty)
	}

	ch.SetState(models.StateCopying)
	s.display.Message("Reading Master", "", inserted.Node, inserted.PortPath)

	size, err := s.readMaster(ctx, inserted.Node)
	if err != nil {
		ch.SetState(models.StateFailed)
		return fmt.Errorf("failed to load master from %s: %w", inserted.Node, err)
	}

	s.plane.SetMasterSize(size)

	s.logger.Info().Int64("bytes", size).Str("master_dir", s.cfg.MasterDir).Msg("Master loaded")

	s.display.Message("Master loaded OK.", fmt.Sprintf("Size = %dMB", size/bytesPerMB), "", "Remove Master USB")
	ch.SetState(models.StateReady)

	s.logger.Info().Msg("Waiting for master USB to be removed")

	if _, err := s.waitFor(ctx, func(ev hotplug.Event) bool {
		return ev.Kind == hotplug.Removed && ev.PortPath == inserted.PortPath
	}); err != nil {
		return err
	}

	ch.SetState(models.StateEmpty)
	s.display.Clear()

	return nil
}

func (s *Supervisor) readMaster(ctx context.Context, node string) (size int64, err error) {
	if err := blockdev.ValidateDevice(node); err != nil {
		return 0, err
	}

	partition := blockdev.PartitionName(node)
	mountPoint := blockdev.MountPoint(s.cfg.MountRoot, node)

	if err := s.provisioner.Mount(ctx, partition, mountPoint); err != nil {
		return 0, err
	}

	defer func() {
		if uerr := s.provisioner.Unmount(context.WithoutCancel(ctx), mountPoint); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if err := emptyDir(s.cfg.MasterDir); err != nil {
		return 0, err
	}

	w, err := manifest.Create(s.cfg.ManifestPath)
	if err != nil {
		return 0, err
	}

	result, copyErr := copier.Copy(ctx, mountPoint, s.cfg.MasterDir, copier.Options{
		Manifest: w,
		Logger:   s.logger,
	})

	if cerr := w.Close(); cerr != nil && copyErr == nil {
		copyErr = cerr
	}

	if copyErr != nil {
		return 0, copyErr
	}

	if result.Cancelled {
		return 0, ctx.Err()
	}

	s.logger.Debug().Int("files", result.Files).Int("manifest_entries", w.Count()).Msg("Master copied")

	return result.Bytes, nil
}

// emptyDir removes everything under dir, creating dir if needed.
func emptyDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to empty %s: %w", dir, err)
		}
	}

	return nil
}

// freshInsert matches a drive plugged in after start-up.
func freshInsert(ev hotplug.Event) bool {
	return ev.Kind == hotplug.Inserted && !ev.AtStartup
}

func (s *Supervisor) waitFor(ctx context.Context, match func(hotplug.Event) bool) (hotplug.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return hotplug.Event{}, ctx.Err()
		case ev, ok := <-s.events:
			if !ok {
				return hotplug.Event{}, errNoEvents
			}

			if match(ev) {
				return ev, nil
			}
		}
	}
}
