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

package worker

import (
	"errors"
	"fmt"

	"github.com/carverauto/usbcopier/pkg/models"
	"github.com/carverauto/usbcopier/pkg/verify"
)

// Precondition errors stop a worker before any stage runs.
var (
	ErrInvalidChannel  = errors.New("invalid channel id")
	ErrInvalidDevice   = errors.New("invalid device name")
	ErrInvalidPortPath = errors.New("invalid device path")
	ErrNoControlPlane  = errors.New("control plane unavailable")
)

// StageError is a failure while executing one pipeline stage.
type StageError struct {
	State models.ChannelState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsPrecondition reports whether err came from a start-up check.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrInvalidChannel) ||
		errors.Is(err, ErrInvalidDevice) ||
		errors.Is(err, ErrInvalidPortPath) ||
		errors.Is(err, ErrNoControlPlane)
}

// IsIntegrity reports whether err is a checksum or readback failure found
// by the verification pass.
func IsIntegrity(err error) bool {
	var integrity *verify.IntegrityError

	return errors.As(err, &integrity)
}
