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

package manifest

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFormat(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf)
	require.NoError(t, w.Append(models.ManifestEntry{Path: "album/01 intro.mp3", CRC: 0xabc}))
	require.NoError(t, w.Append(models.ManifestEntry{Path: "readme.txt", CRC: 0xFC891918}))
	require.NoError(t, w.Close())

	assert.Equal(t, "album/01 intro.mp3\t00000abc\nreadme.txt\tfc891918\n", buf.String())
	assert.Equal(t, 2, w.Count())
}

func TestWriterRejectsSeparatorsInPath(t *testing.T) {
	w := NewWriter(io.Discard)

	require.ErrorIs(t, w.Append(models.ManifestEntry{Path: "a\tb"}), ErrBadPath)
	require.ErrorIs(t, w.Append(models.ManifestEntry{Path: ""}), ErrBadPath)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    models.ManifestEntry
		wantErr error
	}{
		{"plain", "a.txt\t0000ffff\n", models.ManifestEntry{Path: "a.txt", CRC: 0xffff}, nil},
		{"upper hex", "dir/b.bin\tDEADBEEF", models.ManifestEntry{Path: "dir/b.bin", CRC: 0xdeadbeef}, nil},
		{"crlf", "c\t00000001\r\n", models.ManifestEntry{Path: "c", CRC: 1}, nil},
		{"no tab", "a.txt 0000ffff", models.ManifestEntry{}, ErrMissingSeparator},
		{"short crc", "a.txt\tffff", models.ManifestEntry{}, ErrBadChecksum},
		{"not hex", "a.txt\tzzzzzzzz", models.ManifestEntry{}, ErrBadChecksum},
		{"empty path", "\t00000000", models.ManifestEntry{}, ErrBadPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReaderSkipsBlankLinesAndReportsLineNumbers(t *testing.T) {
	entries, err := ReadAll(strings.NewReader("a\t00000001\n\nb\t00000002\n"))
	require.NoError(t, err)
	assert.Equal(t, []models.ManifestEntry{{Path: "a", CRC: 1}, {Path: "b", CRC: 2}}, entries)

	_, err = ReadAll(strings.NewReader("a\t00000001\nbroken\n"))
	require.ErrorIs(t, err, ErrMissingSeparator)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCreateAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crc.txt")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(models.ManifestEntry{Path: "x", CRC: 7}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)

	defer func() { _ = r.Close() }()

	entry, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, models.ManifestEntry{Path: "x", CRC: 7}, entry)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}
