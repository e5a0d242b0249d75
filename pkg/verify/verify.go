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

// Package verify re-reads a freshly written drive and checks every file named
// in the manifest against its recorded checksum.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/carverauto/usbcopier/pkg/blockdev"
	"github.com/carverauto/usbcopier/pkg/copier"
	"github.com/carverauto/usbcopier/pkg/crc"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/manifest"
)

var (
	ErrNoManifest = errors.New("cannot open manifest")
	ErrMount      = errors.New("cannot mount target for verification")
	ErrUnmount    = errors.New("cannot unmount target after verification")
	ErrUnsafePath = errors.New("manifest path escapes the target")
)

// IntegrityError names the first file that failed verification.
type IntegrityError struct {
	Path     string
	Expected uint32
	Actual   uint32
	Err      error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot verify %q: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("checksum mismatch for %q: expected %08x, got %08x", e.Path, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// Request describes one verification pass over a mounted target.
type Request struct {
	Partition    string
	MountPoint   string
	ManifestPath string
	Provisioner  blockdev.Provisioner
	Canceler     copier.Canceler
	Logger       logger.Logger
}

// Result summarises a pass.
type Result struct {
	Checked   int
	Cancelled bool
	Elapsed   time.Duration
}

// Run mounts the partition, checks it against the manifest and unmounts it
// again on both the success and failure paths. A cancellation stops early
// with a nil error and Result.Cancelled set.
func Run(ctx context.Context, req Request) (res Result, err error) {
	log := req.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	started := time.Now()

	reader, err := manifest.Open(req.ManifestPath)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrNoManifest, err)
	}
	defer func() { _ = reader.Close() }()

	if cancelled(ctx, req.Canceler) {
		res.Cancelled = true
		return res, nil
	}

	if err := req.Provisioner.Mount(ctx, req.Partition, req.MountPoint); err != nil {
		return res, fmt.Errorf("%w: %w", ErrMount, err)
	}

	defer func() {
		// the unmount must run even if ctx was cancelled mid-pass
		if uerr := req.Provisioner.Unmount(context.WithoutCancel(ctx), req.MountPoint); uerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrUnmount, uerr)
		}
	}()

	log.Info().Str("mount_point", req.MountPoint).Msg("Verify checking CRCs")

	res, err = Tree(ctx, req.MountPoint, reader, req.Canceler)
	res.Elapsed = time.Since(started)

	if err != nil {
		return res, err
	}

	log.Info().
		Int("files", res.Checked).
		Dur("elapsed", res.Elapsed).
		Bool("cancelled", res.Cancelled).
		Msg("Verify complete")

	return res, nil
}

// Tree checks every entry from reader against the files under root. It does
// no mounting and never modifies root, so repeated passes over an unchanged
// tree give the same answer.
func Tree(ctx context.Context, root string, reader *manifest.Reader, canceler copier.Canceler) (Result, error) {
	var res Result

	for {
		if cancelled(ctx, canceler) {
			res.Cancelled = true
			return res, nil
		}

		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}

		if err != nil {
			return res, err
		}

		if !filepath.IsLocal(filepath.FromSlash(entry.Path)) {
			return res, &IntegrityError{Path: entry.Path, Expected: entry.CRC, Err: ErrUnsafePath}
		}

		actual, err := crc.File(filepath.Join(root, filepath.FromSlash(entry.Path)))
		if err != nil {
			return res, &IntegrityError{Path: entry.Path, Expected: entry.CRC, Err: err}
		}

		if actual != entry.CRC {
			return res, &IntegrityError{Path: entry.Path, Expected: entry.CRC, Actual: actual}
		}

		res.Checked++
	}
}

func cancelled(ctx context.Context, c copier.Canceler) bool {
	return ctx.Err() != nil || (c != nil && c.Cancelled())
}
