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

// Package crc implements the appliance's integrity checksum: a table-driven,
// most-significant-bit-first CRC-32 (polynomial 0x04C11DB7, seed 0xFFFFFFFF,
// complemented result) over at most the first mebibyte of a file.
package crc

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"
)

const (
	// Polynomial is the CRC-32 generator polynomial in normal (unreflected) form.
	Polynomial = 0x04C11DB7
	// Cap is the number of leading bytes that contribute to a file's checksum.
	Cap = 1 << 20
	// Size is the length of a checksum in bytes.
	Size = 4

	seed = 0xFFFFFFFF
)

var (
	table     [256]uint32
	tableOnce sync.Once
)

// ErrOpenFile is returned when a file cannot be opened for checksumming.
var ErrOpenFile = errors.New("cannot open file for checksum")

func makeTable() {
	for i := range table {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = (c << 1) ^ Polynomial
			} else {
				c <<= 1
			}
		}

		table[i] = c
	}
}

// Table returns the 256-entry lookup table, building it on first use.
func Table() *[256]uint32 {
	tableOnce.Do(makeTable)

	return &table
}

// Digest is a streaming checksum that ignores everything past Cap bytes.
// It satisfies hash.Hash32 so it can sit behind an io.MultiWriter.
type Digest struct {
	crc   uint32
	count int64
	tab   *[256]uint32
}

var _ hash.Hash32 = (*Digest)(nil)

// New returns a Digest seeded and ready for Write.
func New() *Digest {
	return &Digest{crc: seed, tab: Table()}
}

// Write folds p into the running checksum. Bytes beyond Cap are accepted and
// counted as written but do not change the sum.
func (d *Digest) Write(p []byte) (int, error) {
	n := len(p)

	if remaining := Cap - d.count; remaining > 0 {
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}

		crc := d.crc
		for _, b := range p {
			crc = (crc << 8) ^ d.tab[byte(crc>>24)^b]
		}

		d.crc = crc
		d.count += int64(len(p))
	}

	return n, nil
}

// Sum32 returns the complemented checksum of the bytes written so far.
func (d *Digest) Sum32() uint32 {
	return d.crc ^ seed
}

// Sum appends the big-endian checksum to b.
func (d *Digest) Sum(b []byte) []byte {
	s := d.Sum32()

	return append(b, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (d *Digest) Reset() {
	d.crc = seed
	d.count = 0
}

func (*Digest) Size() int { return Size }

func (*Digest) BlockSize() int { return 1 }

// Checksum returns the capped checksum of data.
func Checksum(data []byte) uint32 {
	d := New()
	_, _ = d.Write(data)

	return d.Sum32()
}

// Reader returns the capped checksum of everything readable from r, reading
// no further than Cap bytes.
func Reader(r io.Reader) (uint32, error) {
	d := New()

	if _, err := io.Copy(d, io.LimitReader(r, Cap)); err != nil {
		return 0, err
	}

	return d.Sum32(), nil
}

// File returns the capped checksum of the file at path.
func File(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", ErrOpenFile, path, err)
	}
	defer func() { _ = f.Close() }()

	sum, err := Reader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return sum, nil
}
