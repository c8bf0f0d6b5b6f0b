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

package verifier

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
)

// TreeDepth fixes the membership tree depth the circuit proves against.
// Organizations build their trees at this depth (2^16 members max).
const TreeDepth = 16

// MembershipCircuit proves that the prover knows a member secret whose
// leaf MiMC(secret) lies under the public membership Root, and that the
// public NullifierHash is MiMC(secret, PostCommitment). Binding the
// nullifier to the post commitment makes the proof unusable for any other
// post.
type MembershipCircuit struct {
	// Public inputs
	Root           frontend.Variable `gnark:",public"`
	NullifierHash  frontend.Variable `gnark:",public"`
	PostCommitment frontend.Variable `gnark:",public"`

	// Private inputs
	Secret   frontend.Variable
	Siblings [TreeDepth]frontend.Variable
	PathBits [TreeDepth]frontend.Variable
}

func (c *MembershipCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	// Leaf derivation (leaf = H(secret))
	hasher.Write(c.Secret)
	cur := hasher.Sum()
	// Walk the path to the root. A set path bit means the current node is
	// the right child at that level.
	for i := range TreeDepth {
		api.AssertIsBoolean(c.PathBits[i])
		left := api.Select(c.PathBits[i], c.Siblings[i], cur)
		right := api.Select(c.PathBits[i], cur, c.Siblings[i])
		hasher.Reset()
		hasher.Write(left)
		hasher.Write(right)
		cur = hasher.Sum()
	}
	api.AssertIsEqual(cur, c.Root)
	// Nullifier binding (nullifierHash = H(secret, postCommitment))
	hasher.Reset()
	hasher.Write(c.Secret)
	hasher.Write(c.PostCommitment)
	api.AssertIsEqual(c.NullifierHash, hasher.Sum())
	return nil
}

// CompileCircuit compiles the membership circuit over BN254
func CompileCircuit() (constraint.ConstraintSystem, error) {
	var circuit MembershipCircuit
	return frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
}
