package bls

import "testing"

func TestSecretKeySetZeroThreshold(t *testing.T) {
	sks, err := NewSecretKeySet(0)
	if err != nil {
		t.Fatalf("NewSecretKeySet: %v", err)
	}
	pks := sks.PublicKeys()

	share := sks.SecretKeyShare(0)
	sig := share.Sign([]byte("hello"))

	combined, err := pks.CombineSignatures(map[int]SignatureShare{
		0: {Index: 0, Signature: *sig},
	})
	if err != nil {
		t.Fatalf("CombineSignatures: %v", err)
	}

	if !pks.PublicKey().Verify(combined, []byte("hello")) {
		t.Fatal("combined signature does not verify under the group public key")
	}
}

func TestSecretKeySetNonZeroThreshold(t *testing.T) {
	const threshold = 2
	const n = 5

	sks, err := NewSecretKeySet(threshold)
	if err != nil {
		t.Fatalf("NewSecretKeySet: %v", err)
	}
	pks := sks.PublicKeys()

	message := []byte("transfer payload")
	shares := make(map[int]SignatureShare, n)
	for i := 0; i < n; i++ {
		share := sks.SecretKeyShare(i)
		shares[i] = SignatureShare{Index: i, Signature: *share.Sign(message)}

		pkShare := pks.PublicKeyShare(i)
		if !pkShare.Verify(share.Sign(message), message) {
			t.Fatalf("share %d signature does not verify under its own public key share", i)
		}
	}

	// Fewer than threshold+1 shares must fail.
	tooFew := map[int]SignatureShare{0: shares[0], 1: shares[1]}
	if _, err := pks.CombineSignatures(tooFew); err == nil {
		t.Fatal("expected CombineSignatures to fail with too few shares")
	}

	// Any threshold+1 subset must recover the same signature.
	subsetA := map[int]SignatureShare{0: shares[0], 1: shares[1], 2: shares[2]}
	subsetB := map[int]SignatureShare{1: shares[1], 3: shares[3], 4: shares[4]}

	sigA, err := pks.CombineSignatures(subsetA)
	if err != nil {
		t.Fatalf("CombineSignatures subsetA: %v", err)
	}
	sigB, err := pks.CombineSignatures(subsetB)
	if err != nil {
		t.Fatalf("CombineSignatures subsetB: %v", err)
	}

	if string(sigA.Bytes()) != string(sigB.Bytes()) {
		t.Fatal("different threshold+1 subsets recovered different signatures")
	}
	if !pks.PublicKey().Verify(sigA, message) {
		t.Fatal("recovered signature does not verify under the group public key")
	}
}

func TestPublicKeySetEqualAndKey(t *testing.T) {
	sks1, _ := NewSecretKeySet(1)
	sks2, _ := NewSecretKeySet(1)

	pks1 := sks1.PublicKeys()
	pks1Again := sks1.PublicKeys()
	pks2 := sks2.PublicKeys()

	if !pks1.Equal(pks1Again) {
		t.Fatal("same secret key set should produce equal public key sets")
	}
	if pks1.Equal(pks2) {
		t.Fatal("distinct secret key sets should not produce equal public key sets")
	}
	if pks1.Key() != pks1Again.Key() {
		t.Fatal("Key() should agree for equal public key sets")
	}
	if pks1.Key() == pks2.Key() {
		t.Fatal("Key() should differ for distinct public key sets")
	}
}
