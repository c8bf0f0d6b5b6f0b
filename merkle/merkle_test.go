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

package merkle_test

import (
	"testing"

	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/blinklabs-io/veilpost/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret(fill byte) ledger.Digest {
	var ret ledger.Digest
	// Leave the first byte zero so values stay below the field modulus
	for i := 1; i < len(ret); i++ {
		ret[i] = fill
	}
	return ret
}

func TestTreeRootDeterministic(t *testing.T) {
	leaves := []ledger.Digest{
		merkle.MemberLeaf(testSecret(0x01)),
		merkle.MemberLeaf(testSecret(0x02)),
		merkle.MemberLeaf(testSecret(0x03)),
	}
	tree1, err := merkle.NewTree(8, leaves)
	require.NoError(t, err)
	tree2, err := merkle.NewTree(8, leaves)
	require.NoError(t, err)
	assert.Equal(t, tree1.Root(), tree2.Root())
	assert.False(t, tree1.Root().IsZero())

	// Different membership yields a different root
	tree3, err := merkle.NewTree(
		8,
		[]ledger.Digest{merkle.MemberLeaf(testSecret(0x04))},
	)
	require.NoError(t, err)
	assert.NotEqual(t, tree1.Root(), tree3.Root())
}

func TestWitnessVerifies(t *testing.T) {
	var leaves []ledger.Digest
	for i := byte(1); i <= 5; i++ {
		leaves = append(leaves, merkle.MemberLeaf(testSecret(i)))
	}
	tree, err := merkle.NewTree(8, leaves)
	require.NoError(t, err)
	for i := range leaves {
		w, err := tree.Witness(i)
		require.NoError(t, err)
		require.Len(t, w.Siblings, 8)
		assert.True(t, merkle.VerifyWitness(tree.Root(), w))
	}
}

func TestWitnessForLeaf(t *testing.T) {
	secret := testSecret(0x07)
	leaf := merkle.MemberLeaf(secret)
	tree, err := merkle.NewTree(
		4,
		[]ledger.Digest{merkle.MemberLeaf(testSecret(0x01)), leaf},
	)
	require.NoError(t, err)
	w, err := tree.WitnessForLeaf(leaf)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Index)
	assert.True(t, merkle.VerifyWitness(tree.Root(), w))

	_, err = tree.WitnessForLeaf(merkle.MemberLeaf(testSecret(0x09)))
	require.ErrorIs(t, err, merkle.ErrLeafNotFound)
}

func TestWitnessWrongRootFails(t *testing.T) {
	tree, err := merkle.NewTree(
		4,
		[]ledger.Digest{merkle.MemberLeaf(testSecret(0x01))},
	)
	require.NoError(t, err)
	w, err := tree.Witness(0)
	require.NoError(t, err)
	var wrongRoot ledger.Digest
	wrongRoot[31] = 0x01
	assert.False(t, merkle.VerifyWitness(wrongRoot, w))
}

func TestNullifierBinding(t *testing.T) {
	secret := testSecret(0x01)
	post1 := testSecret(0x02)
	post2 := testSecret(0x03)
	n1 := merkle.NullifierHash(secret, post1)
	n2 := merkle.NullifierHash(secret, post2)
	// The nullifier is bound to the post commitment
	assert.NotEqual(t, n1, n2)
	// And deterministic for the same pair
	assert.Equal(t, n1, merkle.NullifierHash(secret, post1))
}

func TestTreeCapacity(t *testing.T) {
	leaves := make([]ledger.Digest, 3)
	_, err := merkle.NewTree(1, leaves)
	require.Error(t, err)
	_, err = merkle.NewTree(0, nil)
	require.Error(t, err)
}
