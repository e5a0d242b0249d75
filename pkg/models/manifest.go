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

package models

// ManifestEntry pairs a path relative to the copy root with the CRC of the
// file's first mebibyte.
type ManifestEntry struct {
	Path string
	CRC  uint32
}

// ChannelSnapshot is a point-in-time copy of one control-plane slot, used by
// readers that must not hold on to the shared mapping.
type ChannelSnapshot struct {
	DeviceID    int
	Hub         int
	Port        int
	Halt        bool
	State       ChannelState
	PID         int
	StartTime   int64
	BytesCopied int64
	DeviceName  string
	DevicePath  string
}
