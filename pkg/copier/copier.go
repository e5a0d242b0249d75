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

// Package copier mirrors a directory tree in a deterministic order, checksums
// each file as it streams through, and honours a cooperative cancel flag
// between buffers.
package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/carverauto/usbcopier/pkg/crc"
	"github.com/carverauto/usbcopier/pkg/logger"
	"github.com/carverauto/usbcopier/pkg/manifest"
	"github.com/carverauto/usbcopier/pkg/models"
)

const (
	// BufferSize is the chunk size streamed per read/write.
	BufferSize = 64 * 1024
	// MaxEntries caps the number of entries in one directory.
	MaxEntries = 1024
	// MaxPath caps the length of any source or destination path.
	MaxPath = 512
	// SkippedDir is never copied.
	SkippedDir = "System Volume Information"
)

var (
	ErrTooManyEntries = errors.New("too many entries in directory")
	ErrPathTooLong    = errors.New("path too long")
	ErrNotDirectory   = errors.New("source is not a directory")
)

// Canceler reports whether the caller has asked the copy to stop.
type Canceler interface {
	Cancelled() bool
}

// Counter accumulates bytes written to the destination.
type Counter interface {
	AddBytes(n int64)
}

// Options tune a Copy. Every field is optional.
type Options struct {
	Canceler Canceler
	Counter  Counter
	Manifest manifest.Sink
	Logger   logger.Logger
}

// Result summarises a Copy.
type Result struct {
	Files     int
	Bytes     int64
	Cancelled bool
}

type copyRun struct {
	ctx    context.Context
	opts   Options
	buf    []byte
	result Result
}

// Copy mirrors src into dst. Within each directory, entries are visited in
// byte-wise name order and regular files are copied before any subdirectory
// is entered. A cancellation observed between buffers ends the copy early
// with a nil error and Result.Cancelled set.
func Copy(ctx context.Context, src, dst string, opts Options) (Result, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewTestLogger()
	}

	info, err := os.Stat(src)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat source %s: %w", src, err)
	}

	if !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotDirectory, src)
	}

	run := &copyRun{
		ctx:  ctx,
		opts: opts,
		buf:  make([]byte, BufferSize),
	}

	if err := run.directory(src, dst, ""); err != nil {
		return run.result, err
	}

	return run.result, nil
}

func (r *copyRun) cancelled() bool {
	if r.result.Cancelled {
		return true
	}

	if r.ctx.Err() != nil || (r.opts.Canceler != nil && r.opts.Canceler.Cancelled()) {
		r.result.Cancelled = true
	}

	return r.result.Cancelled
}

func checkPath(p string) error {
	if len(p) >= MaxPath {
		return fmt.Errorf("%w: %d bytes, max %d: %s", ErrPathTooLong, len(p), MaxPath-1, p)
	}

	return nil
}

func listSorted(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open source directory %s: %w", dir, err)
	}
	defer func() { _ = f.Close() }()

	names, err := f.Readdirnames(MaxEntries + 1)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read source directory %s: %w", dir, err)
	}

	if len(names) > MaxEntries {
		return nil, fmt.Errorf("%w: %s (max %d)", ErrTooManyEntries, dir, MaxEntries)
	}

	sort.Strings(names)

	return names, nil
}

// directory copies one level. rel is the slash-separated path of dir below
// the copy root, used for manifest keys.
func (r *copyRun) directory(src, dst, rel string) error {
	if filepath.Base(src) == SkippedDir {
		r.opts.Logger.Debug().Str("path", src).Msg("Ignoring hidden system directory")
		return nil
	}

	names, err := listSorted(src)
	if err != nil {
		return err
	}

	if err := os.Mkdir(dst, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create destination directory %s: %w", dst, err)
	}

	if r.cancelled() {
		return nil
	}

	var subdirs []string

	for _, name := range names {
		srcPath := filepath.Join(src, name)
		dstPath := filepath.Join(dst, name)

		if err := checkPath(srcPath); err != nil {
			return err
		}

		if err := checkPath(dstPath); err != nil {
			return err
		}

		info, err := os.Stat(srcPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", srcPath, err)
		}

		if r.cancelled() {
			return nil
		}

		switch {
		case info.Mode().IsRegular():
			if err := r.file(srcPath, dstPath, path.Join(rel, name)); err != nil {
				return fmt.Errorf("failed to copy file %s -> %s: %w", srcPath, dstPath, err)
			}

			if r.result.Cancelled {
				return nil
			}
		case info.IsDir():
			subdirs = append(subdirs, name)
		}
	}

	for _, name := range subdirs {
		if r.cancelled() {
			return nil
		}

		srcPath := filepath.Join(src, name)
		if err := r.directory(srcPath, filepath.Join(dst, name), path.Join(rel, name)); err != nil {
			return fmt.Errorf("failed to copy subdirectory %s: %w", srcPath, err)
		}
	}

	return nil
}

func (r *copyRun) file(src, dst, rel string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}

	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close destination: %w", cerr)
		}
	}()

	digest := crc.New()

	for {
		if r.cancelled() {
			return nil
		}

		n, rerr := in.Read(r.buf)
		if n > 0 {
			if _, werr := out.Write(r.buf[:n]); werr != nil {
				return fmt.Errorf("failed to write: %w", werr)
			}

			_, _ = digest.Write(r.buf[:n])

			r.result.Bytes += int64(n)
			if r.opts.Counter != nil {
				r.opts.Counter.AddBytes(int64(n))
			}
		}

		if errors.Is(rerr, io.EOF) {
			break
		}

		if rerr != nil {
			return fmt.Errorf("failed to read: %w", rerr)
		}
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to sync destination: %w", err)
	}

	r.result.Files++

	if r.opts.Manifest != nil {
		entry := models.ManifestEntry{Path: rel, CRC: digest.Sum32()}
		if err := r.opts.Manifest.Append(entry); err != nil {
			return err
		}
	}

	return nil
}
