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

// Package models holds the data types shared by the supervisor, the workers
// and the display.
package models

// ChannelState is the lifecycle state of one USB slot. The numeric values are
// stored in the shared control plane and must stay stable across releases.
type ChannelState uint32

const (
	StateUnknown ChannelState = iota
	StateEmpty
	StateReady
	StateStarting
	StateErasing
	StateFormating
	StatePartitioning
	StateMounting
	StateCopying
	StateUnmounting
	StateVerifying
	StateSuccess
	StateFailed
	StateCRCFailed
	StateLEDTest
	StateIndicating
)

var stateNames = map[ChannelState]string{
	StateUnknown:      "UNKNOWN",
	StateEmpty:        "EMPTY",
	StateReady:        "READY",
	StateStarting:     "STARTING",
	StateErasing:      "ERASING",
	StateFormating:    "FORMATING",
	StatePartitioning: "PARTITIONING",
	StateMounting:     "MOUNTING",
	StateCopying:      "COPYING",
	StateUnmounting:   "UNMOUNTING",
	StateVerifying:    "VERIFYING",
	StateSuccess:      "SUCCESS",
	StateFailed:       "FAILED",
	StateCRCFailed:    "CRC_FAILED",
	StateLEDTest:      "LED_TEST",
	StateIndicating:   "INDICATING",
}

func (s ChannelState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return stateNames[StateUnknown]
}

// IsTerminal reports whether a run has finished on the channel.
func (s ChannelState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateCRCFailed
}

// IsRunning reports whether a worker pipeline is mid-flight.
func (s ChannelState) IsRunning() bool {
	return s >= StateStarting && s <= StateVerifying
}

// IsStartable reports whether a hub start may dispatch a worker to the channel.
func (s ChannelState) IsStartable() bool {
	return s == StateReady || s == StateSuccess || s == StateFailed
}

// IsFailure reports whether the channel ended badly.
func (s ChannelState) IsFailure() bool {
	return s == StateFailed || s == StateCRCFailed
}

// PipelineOrder is the order a worker walks through the duplication stages.
// VERIFYING is only entered when verification is enabled.
var PipelineOrder = []ChannelState{
	StateStarting,
	StateErasing,
	StatePartitioning,
	StateFormating,
	StateMounting,
	StateCopying,
	StateUnmounting,
	StateVerifying,
}
