// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"errors"
)

// ErrAlreadyRegistered is returned when registering a principal that
// already has an organization record
var ErrAlreadyRegistered = errors.New("organization already registered")

// ErrNotRegistered is returned when the caller has no organization record
var ErrNotRegistered = errors.New("organization not registered")

// ErrOrgNotFound is returned when a target organization does not exist
var ErrOrgNotFound = errors.New("organization not found")

// ErrIncorrectPayment is returned when a subscription payment does not
// match the configured price exactly
var ErrIncorrectPayment = errors.New("incorrect payment amount")

// ErrNullifierAlreadyUsed is returned when a nullifier has already been
// consumed for the organization
var ErrNullifierAlreadyUsed = errors.New("nullifier already used")

// ErrNotAuthorized is returned when the caller lacks the privilege for an
// operation
var ErrNotAuthorized = errors.New("not authorized")

// ErrTransferFailed is returned when the settlement backend cannot
// complete a funds withdrawal
var ErrTransferFailed = errors.New("funds transfer failed")

// ErrInvalidPrincipal is returned when a principal is empty or exceeds the
// maximum length
var ErrInvalidPrincipal = errors.New("invalid principal")
