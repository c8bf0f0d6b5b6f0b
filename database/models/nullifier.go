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

// Nullifier records a nullifier consumed by a confirmed post. Nullifiers are
// scoped per organization, so the same value may appear under different
// organizations without conflict.
type Nullifier struct {
	OrgPrincipal string `gorm:"uniqueIndex:org_nullifier;size:128;not null"`
	Nullifier    []byte `gorm:"uniqueIndex:org_nullifier;size:32;not null"`
	ID           uint   `gorm:"primarykey"`
	AddedSeq     uint64 `gorm:"index"`
}

func (Nullifier) TableName() string {
	return "nullifier"
}
