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

// Package manifest reads and writes the flat CRC manifest: one
// "<relative-path>\t<8-hex-digit-crc>\n" line per copied file, in copy order.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/carverauto/usbcopier/pkg/models"
)

var (
	// ErrMissingSeparator is returned for a line with no tab.
	ErrMissingSeparator = errors.New("manifest line has no tab separator")
	// ErrBadChecksum is returned when the CRC field is not eight hex digits.
	ErrBadChecksum = errors.New("manifest line has a malformed checksum")
	// ErrBadPath is returned for an empty path or one containing a newline or tab.
	ErrBadPath = errors.New("manifest path is empty or contains a separator")
)

// Sink receives one entry per copied file.
type Sink interface {
	Append(entry models.ManifestEntry) error
}

// FormatLine renders an entry without its trailing newline.
func FormatLine(entry models.ManifestEntry) string {
	return fmt.Sprintf("%s\t%08x", entry.Path, entry.CRC)
}

// ParseLine splits one manifest line. A trailing newline is tolerated.
func ParseLine(line string) (models.ManifestEntry, error) {
	line = strings.TrimRight(line, "\r\n")

	idx := strings.LastIndexByte(line, '\t')
	if idx < 0 {
		return models.ManifestEntry{}, fmt.Errorf("%w: %q", ErrMissingSeparator, line)
	}

	path, hex := line[:idx], line[idx+1:]
	if path == "" {
		return models.ManifestEntry{}, fmt.Errorf("%w: %q", ErrBadPath, line)
	}

	if len(hex) != 8 {
		return models.ManifestEntry{}, fmt.Errorf("%w: %q", ErrBadChecksum, hex)
	}

	sum, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return models.ManifestEntry{}, fmt.Errorf("%w: %q: %w", ErrBadChecksum, hex, err)
	}

	return models.ManifestEntry{Path: path, CRC: uint32(sum)}, nil
}

// Writer appends entries to a manifest stream.
type Writer struct {
	w     *bufio.Writer
	file  *os.File
	count int
}

// NewWriter wraps w. Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Create truncates or creates the manifest file at path.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest %s: %w", path, err)
	}

	return &Writer{w: bufio.NewWriter(f), file: f}, nil
}

// Append implements Sink.
func (m *Writer) Append(entry models.ManifestEntry) error {
	if entry.Path == "" || strings.ContainsAny(entry.Path, "\t\n") {
		return fmt.Errorf("%w: %q", ErrBadPath, entry.Path)
	}

	if _, err := m.w.WriteString(FormatLine(entry) + "\n"); err != nil {
		return fmt.Errorf("failed to write manifest entry: %w", err)
	}

	m.count++

	return nil
}

// Count is the number of entries appended so far.
func (m *Writer) Count() int {
	return m.count
}

// Close flushes buffered entries and, for a file created by Create, syncs
// and closes it.
func (m *Writer) Close() error {
	if err := m.w.Flush(); err != nil {
		if m.file != nil {
			_ = m.file.Close()
		}

		return fmt.Errorf("failed to flush manifest: %w", err)
	}

	if m.file == nil {
		return nil
	}

	if err := m.file.Sync(); err != nil {
		_ = m.file.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}

	return m.file.Close()
}

// Reader yields manifest entries in file order.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
	line    int
}

// NewReader reads entries from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Open opens the manifest file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}

	return &Reader{scanner: bufio.NewScanner(f), file: f}, nil
}

// Next returns the next entry, or io.EOF after the last one. Blank lines are
// skipped.
func (m *Reader) Next() (models.ManifestEntry, error) {
	for m.scanner.Scan() {
		m.line++

		text := m.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		entry, err := ParseLine(text)
		if err != nil {
			return models.ManifestEntry{}, fmt.Errorf("line %d: %w", m.line, err)
		}

		return entry, nil
	}

	if err := m.scanner.Err(); err != nil {
		return models.ManifestEntry{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	return models.ManifestEntry{}, io.EOF
}

// Close releases the underlying file when the Reader came from Open.
func (m *Reader) Close() error {
	if m.file == nil {
		return nil
	}

	return m.file.Close()
}

// ReadAll collects every entry from r.
func ReadAll(r io.Reader) ([]models.ManifestEntry, error) {
	reader := NewReader(r)

	var entries []models.ManifestEntry

	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}
}
