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

package crc

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bitwise computes the same checksum one bit at a time, without the table.
func bitwise(data []byte) uint32 {
	c := uint32(seed)

	for _, b := range data {
		c ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if c&0x80000000 != 0 {
				c = (c << 1) ^ Polynomial
			} else {
				c <<= 1
			}
		}
	}

	return c ^ seed
}

func randomBytes(n int) []byte {
	r := rand.New(rand.NewPCG(1, 2))
	buf := make([]byte, n)

	for i := range buf {
		buf[i] = byte(r.UintN(256))
	}

	return buf
}

func TestChecksumKnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  uint32
	}{
		{"empty", "", 0x00000000},
		{"check string", "123456789", 0xFC891918},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum([]byte(tt.input)))
		})
	}
}

func TestTableMatchesBitwise(t *testing.T) {
	data := randomBytes(4096)
	assert.Equal(t, bitwise(data), Checksum(data))
	assert.Equal(t, uint32(0), Table()[0])
	assert.Equal(t, uint32(Polynomial), Table()[1])
}

func TestDigestStreamingMatchesOneShot(t *testing.T) {
	data := randomBytes(10000)

	d := New()
	for off := 0; off < len(data); off += 333 {
		end := min(off+333, len(data))
		n, err := d.Write(data[off:end])
		require.NoError(t, err)
		assert.Equal(t, end-off, n)
	}

	assert.Equal(t, Checksum(data), d.Sum32())
	assert.Equal(t, []byte{byte(d.Sum32() >> 24), byte(d.Sum32() >> 16), byte(d.Sum32() >> 8), byte(d.Sum32())}, d.Sum(nil))

	d.Reset()
	assert.Equal(t, Checksum(nil), d.Sum32())
}

func TestDigestIgnoresBytesPastCap(t *testing.T) {
	head := randomBytes(Cap)
	long := append(bytes.Clone(head), []byte("tail that must not count")...)

	assert.Equal(t, Checksum(head), Checksum(long))

	d := New()
	_, _ = d.Write(long[:Cap-10])
	_, _ = d.Write(long[Cap-10:])
	assert.Equal(t, Checksum(head), d.Sum32())
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track01.mp3")
	data := randomBytes(Cap + 4096)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	sum, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, Checksum(data[:Cap]), sum)

	_, err = File(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, ErrOpenFile)
}
