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

// Package merkle builds membership trees over member secrets using the
// MiMC hash on the BN254 scalar field, matching the in-circuit hash used
// by the proof verifier. Organizations publish the tree root as their
// membership root; members derive witnesses from their leaf position.
package merkle

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// ErrLeafNotFound is returned when a witness is requested for an unknown
// leaf
var ErrLeafNotFound = errors.New("leaf not found in tree")

// Tree is a fixed-depth MiMC merkle tree. Missing leaves are padded with
// the zero field element.
type Tree struct {
	depth  int
	levels [][]fr.Element
}

// Witness is a membership path from a leaf to the root. Bit i of the path
// selects the hashing order at level i: set means the current node is the
// right child.
type Witness struct {
	Leaf     ledger.Digest
	Siblings []ledger.Digest
	Index    int
}

// PathBit returns the order bit for the given level
func (w *Witness) PathBit(level int) int {
	return (w.Index >> level) & 1
}

func digestToElement(d ledger.Digest) fr.Element {
	var e fr.Element
	e.SetBytes(d[:])
	return e
}

func elementToDigest(e fr.Element) ledger.Digest {
	return ledger.Digest(e.Bytes())
}

func hashElements(elems ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for _, e := range elems {
		b := e.Bytes()
		// Write cannot fail for canonical element bytes
		_, _ = h.Write(b[:])
	}
	var ret fr.Element
	ret.SetBytes(h.Sum(nil))
	return ret
}

// MemberLeaf derives the tree leaf for a member secret: MiMC(secret)
func MemberLeaf(secret ledger.Digest) ledger.Digest {
	return elementToDigest(hashElements(digestToElement(secret)))
}

// NullifierHash derives the one-time nullifier binding a member secret to
// a specific post commitment: MiMC(secret, postCommitment). The binding
// makes a proof unusable for any other post.
func NullifierHash(secret, postCommitment ledger.Digest) ledger.Digest {
	return elementToDigest(hashElements(
		digestToElement(secret),
		digestToElement(postCommitment),
	))
}

// NewTree builds a tree of the given depth from leaf digests. The leaf
// count must not exceed 2^depth.
func NewTree(depth int, leaves []ledger.Digest) (*Tree, error) {
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("invalid tree depth: %d", depth)
	}
	capacity := 1 << depth
	if len(leaves) > capacity {
		return nil, fmt.Errorf(
			"too many leaves: %d exceeds capacity %d for depth %d",
			len(leaves),
			capacity,
			depth,
		)
	}
	t := &Tree{
		depth:  depth,
		levels: make([][]fr.Element, depth+1),
	}
	// Leaf level, zero-padded to capacity
	t.levels[0] = make([]fr.Element, capacity)
	for i, leaf := range leaves {
		t.levels[0][i] = digestToElement(leaf)
	}
	// Interior levels
	for level := 1; level <= depth; level++ {
		below := t.levels[level-1]
		t.levels[level] = make([]fr.Element, len(below)/2)
		for i := range t.levels[level] {
			t.levels[level][i] = hashElements(below[2*i], below[2*i+1])
		}
	}
	return t, nil
}

// Depth returns the tree depth
func (t *Tree) Depth() int {
	return t.depth
}

// Root returns the membership root
func (t *Tree) Root() ledger.Digest {
	return elementToDigest(t.levels[t.depth][0])
}

// Witness produces the membership path for the leaf at the given index
func (t *Tree) Witness(index int) (*Witness, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("leaf index out of range: %d", index)
	}
	siblings := make([]ledger.Digest, t.depth)
	idx := index
	for level := range t.depth {
		siblings[level] = elementToDigest(t.levels[level][idx^1])
		idx >>= 1
	}
	return &Witness{
		Leaf:     elementToDigest(t.levels[0][index]),
		Siblings: siblings,
		Index:    index,
	}, nil
}

// WitnessForLeaf locates the leaf in the tree and produces its witness
func (t *Tree) WitnessForLeaf(leaf ledger.Digest) (*Witness, error) {
	target := digestToElement(leaf)
	for i := range t.levels[0] {
		if t.levels[0][i].Equal(&target) {
			return t.Witness(i)
		}
	}
	return nil, ErrLeafNotFound
}

// VerifyWitness checks a membership path against a root using the native
// hash. The circuit performs the same computation in-proof.
func VerifyWitness(root ledger.Digest, w *Witness) bool {
	cur := digestToElement(w.Leaf)
	for level, sibling := range w.Siblings {
		sib := digestToElement(sibling)
		if w.PathBit(level) == 1 {
			cur = hashElements(sib, cur)
		} else {
			cur = hashElements(cur, sib)
		}
	}
	return elementToDigest(cur) == root
}
