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

package probe

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrProbeFailed marks a status query that could not produce a value.
	ErrProbeFailed = errors.New("probe failed")
	// ErrCommandFailed marks a control command that exited unsuccessfully.
	ErrCommandFailed = errors.New("command failed")

	ErrInvalidServiceName = errors.New("invalid service name")
	ErrInvalidVMID        = errors.New("invalid vm id")
	ErrUnknownResource    = errors.New("unknown resource")

	errUnexpectedOutput = errors.New("unexpected output")
	errNoIPv4Address    = errors.New("no IPv4 address")
)

var (
	validServiceName = regexp.MustCompile(`^[a-zA-Z0-9\-_.@]+$`)
	validVMID        = regexp.MustCompile(`^[0-9]+$`)
)

const maxServiceNameLength = 256

// ValidateServiceName rejects names that could not be a unit name.
func ValidateServiceName(name string) error {
	if len(name) > maxServiceNameLength || !validServiceName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidServiceName, name)
	}

	return nil
}

// ValidateVMID rejects ids that are not numeric.
func ValidateVMID(id string) error {
	if !validVMID.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidVMID, id)
	}

	return nil
}
