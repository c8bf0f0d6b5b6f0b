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
	"bytes"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/blinklabs-io/veilpost/merkle"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
)

func digestToValue(d ledger.Digest) *big.Int {
	return new(big.Int).SetBytes(d[:])
}

// BuildProof produces a serialized membership proof for a post. The member
// holds the secret; the witness comes from the organization's current
// membership tree (which must have been built at TreeDepth).
func BuildProof(
	ccs constraint.ConstraintSystem,
	pk groth16.ProvingKey,
	secret ledger.Digest,
	treeWitness *merkle.Witness,
	root ledger.Digest,
	postCommitment ledger.Digest,
) ([]byte, error) {
	if len(treeWitness.Siblings) != TreeDepth {
		return nil, fmt.Errorf(
			"witness depth mismatch: expected %d, got %d",
			TreeDepth,
			len(treeWitness.Siblings),
		)
	}
	assignment := &MembershipCircuit{
		Root:           digestToValue(root),
		NullifierHash:  digestToValue(merkle.NullifierHash(secret, postCommitment)),
		PostCommitment: digestToValue(postCommitment),
		Secret:         digestToValue(secret),
	}
	for i := range TreeDepth {
		assignment.Siblings[i] = digestToValue(treeWitness.Siblings[i])
		assignment.PathBits[i] = treeWitness.PathBit(i)
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return proofBuf.Bytes(), nil
}
