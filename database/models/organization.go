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

package models

import (
	"github.com/blinklabs-io/veilpost/database/types"
)

// MaxPrincipalLen is the maximum length in bytes of a principal identifier
const MaxPrincipalLen = 128

// Organization represents a registered organization account. The principal
// that registered the organization is its permanent identifier and the only
// principal allowed to manage it.
type Organization struct {
	Principal       string `gorm:"uniqueIndex;size:128;not null"`
	MetadataRef     string `gorm:"type:text;not null"`
	MembershipRoot  []byte `gorm:"size:32"`
	ID              uint   `gorm:"primarykey"`
	AddedSeq        uint64 `gorm:"index"`
	SubscriptionEnd types.Uint64
	Verified        bool `gorm:"default:false"`
}

func (Organization) TableName() string {
	return "organization"
}

// HasActiveSubscription returns true when the organization's subscription
// covers the given time. The end time itself is still covered.
func (o *Organization) HasActiveSubscription(now uint64) bool {
	return uint64(o.SubscriptionEnd) >= now
}
