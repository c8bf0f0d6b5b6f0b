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

package verifier_test

import (
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/veilpost/event"
	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/blinklabs-io/veilpost/merkle"
	"github.com/blinklabs-io/veilpost/postpool"
	"github.com/blinklabs-io/veilpost/verifier"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	setupOnce sync.Once
	testCcs   constraint.ConstraintSystem
	testPk    groth16.ProvingKey
	testVk    groth16.VerifyingKey
	setupErr  error
)

// proofSetup compiles the circuit and runs groth16 setup once for the
// whole test package; both are expensive
func proofSetup(t *testing.T) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey) {
	t.Helper()
	setupOnce.Do(func() {
		testCcs, setupErr = verifier.CompileCircuit()
		if setupErr != nil {
			return
		}
		testPk, testVk, setupErr = groth16.Setup(testCcs)
	})
	require.NoError(t, setupErr)
	return testCcs, testPk, testVk
}

func testSecret(fill byte) ledger.Digest {
	var ret ledger.Digest
	// Keep values below the field modulus
	for i := 1; i < len(ret); i++ {
		ret[i] = fill
	}
	return ret
}

func buildMembership(t *testing.T, secrets ...ledger.Digest) *merkle.Tree {
	t.Helper()
	leaves := make([]ledger.Digest, len(secrets))
	for i, secret := range secrets {
		leaves[i] = merkle.MemberLeaf(secret)
	}
	tree, err := merkle.NewTree(verifier.TreeDepth, leaves)
	require.NoError(t, err)
	return tree
}

func TestProofRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping expensive proof test in short mode")
	}
	ccs, pk, vk := proofSetup(t)
	secret := testSecret(0x01)
	tree := buildMembership(t, secret, testSecret(0x02))
	w, err := tree.WitnessForLeaf(merkle.MemberLeaf(secret))
	require.NoError(t, err)

	postCommitment := testSecret(0x77)
	nullifier := merkle.NullifierHash(secret, postCommitment)
	proof, err := verifier.BuildProof(ccs, pk, secret, w, tree.Root(), postCommitment)
	require.NoError(t, err)

	v := newTestVerifier(t, vk, nil)
	require.NoError(
		t,
		v.VerifyProof(proof, tree.Root(), nullifier, postCommitment),
	)

	// Wrong root fails
	otherTree := buildMembership(t, testSecret(0x03))
	err = v.VerifyProof(proof, otherTree.Root(), nullifier, postCommitment)
	require.Error(t, err)

	// A different post commitment breaks the nullifier binding
	err = v.VerifyProof(proof, tree.Root(), nullifier, testSecret(0x78))
	require.Error(t, err)

	// A forged nullifier fails
	err = v.VerifyProof(proof, tree.Root(), testSecret(0x79), postCommitment)
	require.Error(t, err)
}

func TestNonMemberCannotProve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping expensive proof test in short mode")
	}
	ccs, pk, _ := proofSetup(t)
	tree := buildMembership(t, testSecret(0x01))
	w, err := tree.Witness(0)
	require.NoError(t, err)
	// Proving with a secret whose leaf is not on the witness path fails
	// inside the prover (the constraint system is unsatisfiable)
	_, err = verifier.BuildProof(
		ccs,
		pk,
		testSecret(0x02),
		w,
		tree.Root(),
		testSecret(0x77),
	)
	require.Error(t, err)
}

// recordingLedger captures confirm/reject calls for assertions
type recordingLedger struct {
	mutex     sync.Mutex
	orgs      map[ledger.Principal]ledger.OrganizationRecord
	confirmed []ledger.Digest
	rejected  []ledger.Digest
}

func (r *recordingLedger) Organization(
	id ledger.Principal,
) (ledger.OrganizationRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.orgs[id], nil
}

func (r *recordingLedger) ConfirmPost(
	_ ledger.Principal,
	_ ledger.Principal,
	_ ledger.Digest,
	nullifierHash ledger.Digest,
) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.confirmed = append(r.confirmed, nullifierHash)
	return nil
}

func (r *recordingLedger) RejectPost(
	_ ledger.Principal,
	_ ledger.Principal,
	_ ledger.Digest,
	nullifierHash ledger.Digest,
) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rejected = append(r.rejected, nullifierHash)
	return nil
}

func (r *recordingLedger) counts() (int, int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.confirmed), len(r.rejected)
}

func newTestVerifier(
	t *testing.T,
	vk groth16.VerifyingKey,
	client verifier.LedgerClient,
) *verifier.Verifier {
	t.Helper()
	if client == nil {
		client = &recordingLedger{}
	}
	pool := postpool.NewPostPool(postpool.PostPoolConfig{})
	t.Cleanup(pool.Stop)
	v, err := verifier.NewVerifier(
		verifier.VerifierConfig{
			Pool:         pool,
			Ledger:       client,
			Principal:    "verifier-1",
			VerifyingKey: vk,
		},
	)
	require.NoError(t, err)
	return v
}

func TestVerifierConfirmsValidSubmission(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping expensive proof test in short mode")
	}
	ccs, pk, vk := proofSetup(t)
	secret := testSecret(0x01)
	tree := buildMembership(t, secret)
	w, err := tree.Witness(0)
	require.NoError(t, err)
	postCommitment := testSecret(0x77)
	nullifier := merkle.NullifierHash(secret, postCommitment)
	proof, err := verifier.BuildProof(ccs, pk, secret, w, tree.Root(), postCommitment)
	require.NoError(t, err)

	client := &recordingLedger{
		orgs: map[ledger.Principal]ledger.OrganizationRecord{
			"org-1": {
				Principal:      "org-1",
				MembershipRoot: tree.Root(),
				Exists:         true,
			},
		},
	}
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	pool := postpool.NewPostPool(postpool.PostPoolConfig{EventBus: bus})
	defer pool.Stop()
	v, err := verifier.NewVerifier(
		verifier.VerifierConfig{
			Pool:         pool,
			Ledger:       client,
			Principal:    "verifier-1",
			VerifyingKey: vk,
		},
	)
	require.NoError(t, err)
	require.NoError(t, v.Start())
	defer v.Stop() //nolint:errcheck

	// A valid submission gets confirmed
	require.NoError(
		t,
		pool.AddSubmission(
			ledger.PostSubmittedEvent{
				Org:            "org-1",
				PostCommitment: postCommitment,
				NullifierHash:  nullifier,
				Proof:          proof,
			},
		),
	)
	// A garbage proof gets rejected
	require.NoError(
		t,
		pool.AddSubmission(
			ledger.PostSubmittedEvent{
				Org:            "org-1",
				PostCommitment: postCommitment,
				NullifierHash:  merkle.NullifierHash(secret, testSecret(0x78)),
				Proof:          []byte("not a proof"),
			},
		),
	)

	deadline := time.After(10 * time.Second)
	for {
		confirmed, rejected := client.counts()
		if confirmed == 1 && rejected == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf(
				"timeout: confirmed=%d rejected=%d",
				confirmed,
				rejected,
			)
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, 0, len(pool.Submissions()))
}
