// Threshold key sets: (t, n) Shamir secret sharing over BLS12-381's scalar
// field, and Lagrange-interpolated combination of signature shares.
//
// A SecretKeySet of degree t holds a random polynomial of degree t in Fr;
// each participant's SecretKeyShare is the polynomial evaluated at x =
// index+1 for a 0-based participant index (evaluating at 0 would leak the
// secret). The PublicKeySet commits to the same polynomial in G2, so any
// party can derive a participant's PublicKeyShare, and the group's own
// aggregate public key, without learning the secret. Combining t+1
// signature shares recovers the full BLS signature via Lagrange
// interpolation at x=0.

package bls

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// SecretKeyShare is one participant's share of a threshold secret key.
type SecretKeyShare struct {
	index int
	PrivateKey
}

// PublicKeyShare is the public counterpart of a SecretKeyShare.
type PublicKeyShare struct {
	index int
	PublicKey
}

// NewSecretKeyShare wraps an already-derived private key as participant
// index's secret key share — used when a share was loaded from storage
// rather than freshly evaluated from a SecretKeySet (see
// pkg/signer.LoadFileGateway).
func NewSecretKeyShare(index int, sk *PrivateKey) *SecretKeyShare {
	return &SecretKeyShare{index: index, PrivateKey: *sk}
}

// Index returns the 0-based participant index of this share (evaluated at
// x = index+1).
func (s *SecretKeyShare) Index() int { return s.index }

// Index returns the 0-based participant index of this share (evaluated at
// x = index+1).
func (s *PublicKeyShare) Index() int { return s.index }

// SignatureShare is a signature produced by a single key share, tagged with
// the index of the participant that produced it.
type SignatureShare struct {
	Index     int
	Signature Signature
}

// SecretKeySet is a (t, n)-threshold polynomial: any t+1 of its shares can
// reconstruct signatures valid under the corresponding PublicKeySet, while
// any t shares reveal nothing about the secret.
type SecretKeySet struct {
	threshold int
	coeffs    []fr.Element // coeffs[0] is the constant term (the secret)
}

// NewSecretKeySet builds a random secret key set of the given threshold
// degree, sampling each coefficient with fr.Element.SetRandom (crypto/rand).
func NewSecretKeySet(threshold int) (*SecretKeySet, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("threshold must be >= 0, got %d", threshold)
	}
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}

	coeffs := make([]fr.Element, threshold+1)
	for i := range coeffs {
		if _, err := coeffs[i].SetRandom(); err != nil {
			return nil, fmt.Errorf("sample coefficient %d: %w", i, err)
		}
	}
	return &SecretKeySet{threshold: threshold, coeffs: coeffs}, nil
}

// Threshold returns t: t+1 shares are required to combine a signature.
func (s *SecretKeySet) Threshold() int { return s.threshold }

// SecretKey returns the set's own secret (the constant term of the
// polynomial). Only ever used locally in tests that need the whole secret,
// e.g. get_multi_genesis-style helpers — production code never assembles
// this value from shares it doesn't already hold.
func (s *SecretKeySet) SecretKey() *PrivateKey {
	return &PrivateKey{scalar: s.coeffs[0]}
}

// SecretKeyShare evaluates the polynomial at x = i+1 for participant index i
// (0-based) to produce that participant's secret share.
func (s *SecretKeySet) SecretKeyShare(i int) *SecretKeyShare {
	x := int64(i + 1) // evaluation points start at 1; 0 would expose the secret
	return &SecretKeyShare{
		index:      i,
		PrivateKey: PrivateKey{scalar: s.evaluate(x)},
	}
}

func (s *SecretKeySet) evaluate(x int64) fr.Element {
	var xElem fr.Element
	xElem.SetInt64(x)

	// Horner's method, highest-degree coefficient first.
	acc := s.coeffs[len(s.coeffs)-1]
	for i := len(s.coeffs) - 2; i >= 0; i-- {
		acc.Mul(&acc, &xElem)
		acc.Add(&acc, &s.coeffs[i])
	}
	return acc
}

// PublicKeys returns the PublicKeySet committing to this SecretKeySet's
// polynomial, i.e. each coefficient lifted to G2.
func (s *SecretKeySet) PublicKeys() *PublicKeySet {
	commits := make([]bls12381.G2Affine, len(s.coeffs))
	for i, c := range s.coeffs {
		var cBig big.Int
		c.BigInt(&cBig)
		commits[i].ScalarMultiplication(&g2Gen, &cBig)
	}
	return &PublicKeySet{threshold: s.threshold, commits: commits}
}

// PublicKeySet is the public commitment to a SecretKeySet's polynomial. It
// is immutable and safe to share freely; it is the "group key" that proofs
// are verified against.
type PublicKeySet struct {
	threshold int
	commits   []bls12381.G2Affine
}

// Threshold returns t: t+1 shares are required to combine a signature.
func (p *PublicKeySet) Threshold() int { return p.threshold }

// PublicKey returns the group's own aggregate public key — the polynomial's
// constant-term commitment, i.e. what a combined signature verifies under.
func (p *PublicKeySet) PublicKey() *PublicKey {
	pk := p.commits[0]
	return &PublicKey{point: pk}
}

// PublicKeyShare derives participant i's public key share by evaluating the
// committed polynomial at x = i+1, without needing any secret material.
func (p *PublicKeySet) PublicKeyShare(i int) *PublicKeyShare {
	x := int64(i + 1)
	var xElem fr.Element
	xElem.SetInt64(x)

	var xBig big.Int
	xElem.BigInt(&xBig)

	var acc bls12381.G2Jac
	acc.FromAffine(&p.commits[len(p.commits)-1])
	for j := len(p.commits) - 2; j >= 0; j-- {
		acc.ScalarMultiplication(&acc, &xBig)
		var term bls12381.G2Jac
		term.FromAffine(&p.commits[j])
		acc.AddAssign(&term)
	}
	var affine bls12381.G2Affine
	affine.FromJacobian(&acc)
	return &PublicKeyShare{index: i, PublicKey: PublicKey{point: affine}}
}

// Commits returns the raw G2 commitment bytes for each polynomial
// coefficient, in degree order, so a PublicKeySet can be persisted or sent
// over the wire without exposing gnark-crypto types to callers.
func (p *PublicKeySet) Commits() [][]byte {
	out := make([][]byte, len(p.commits))
	for i, c := range p.commits {
		b := c.Bytes()
		buf := make([]byte, len(b))
		copy(buf, b[:])
		out[i] = buf
	}
	return out
}

// PublicKeySetFromCommits reconstructs a PublicKeySet from the bytes
// produced by Commits, the inverse operation.
func PublicKeySetFromCommits(threshold int, commits [][]byte) (*PublicKeySet, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}
	if len(commits) != threshold+1 {
		return nil, fmt.Errorf("expected %d commitments for threshold %d, got %d", threshold+1, threshold, len(commits))
	}
	points := make([]bls12381.G2Affine, len(commits))
	for i, c := range commits {
		if _, err := points[i].SetBytes(c); err != nil {
			return nil, fmt.Errorf("decode commitment %d: %w", i, err)
		}
	}
	return &PublicKeySet{threshold: threshold, commits: points}, nil
}

// Equal reports whether two key sets commit to the same polynomial, i.e.
// represent the same replica group.
func (p *PublicKeySet) Equal(other *PublicKeySet) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.threshold != other.threshold || len(p.commits) != len(other.commits) {
		return false
	}
	for i := range p.commits {
		if !p.commits[i].Equal(&other.commits[i]) {
			return false
		}
	}
	return true
}

// Key returns a comparable, order-independent identity for this key set, so
// callers can use PublicKeySet as (or within) a map/set key — mirroring the
// role threshold_crypto::PublicKeySet plays as a HashSet element in the
// original source.
func (p *PublicKeySet) Key() string {
	var buf []byte
	for _, c := range p.commits {
		b := c.Bytes()
		buf = append(buf, b[:]...)
	}
	return string(buf)
}

// CombineSignatures recovers the full threshold signature from a map of
// participant index to that participant's signature share, via Lagrange
// interpolation at x=0. At least Threshold()+1 distinct shares are required;
// ErrCannotAggregate is returned otherwise. The shares themselves are not
// verified: inconsistent shares combine into a signature that fails
// verification.
func (p *PublicKeySet) CombineSignatures(shares map[int]SignatureShare) (*Signature, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}
	if len(shares) < p.threshold+1 {
		return nil, fmt.Errorf("%w: have %d shares, need %d", ErrCannotAggregate, len(shares), p.threshold+1)
	}

	indices := make([]int, 0, len(shares))
	for idx := range shares {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	// Only the first threshold+1 shares (by index) are used; Lagrange
	// interpolation needs exactly t+1 points, extra shares are redundant.
	indices = indices[:p.threshold+1]

	var acc bls12381.G1Jac
	accSet := false
	for _, idx := range indices {
		coeff := lagrangeCoefficientAtZero(idx, indices)
		var coeffBig big.Int
		coeff.BigInt(&coeffBig)

		var term bls12381.G1Jac
		term.FromAffine(&shares[idx].Signature.point)
		term.ScalarMultiplication(&term, &coeffBig)

		if !accSet {
			acc = term
			accSet = true
		} else {
			acc.AddAssign(&term)
		}
	}

	var result bls12381.G1Affine
	result.FromJacobian(&acc)
	return &Signature{point: result}, nil
}

// lagrangeCoefficientAtZero computes the Lagrange basis coefficient for
// evaluation point (index i, x=i+1) at x=0, given the full set of indices
// participating in the interpolation.
func lagrangeCoefficientAtZero(i int, indices []int) fr.Element {
	var xi fr.Element
	xi.SetInt64(int64(i + 1))

	num := fr.One()
	den := fr.One()
	for _, j := range indices {
		if j == i {
			continue
		}
		var xj fr.Element
		xj.SetInt64(int64(j + 1))

		// numerator *= (0 - xj) = -xj
		var negXj fr.Element
		negXj.Neg(&xj)
		num.Mul(&num, &negXj)

		// denominator *= (xi - xj)
		var diff fr.Element
		diff.Sub(&xi, &xj)
		den.Mul(&den, &diff)
	}

	var denInv fr.Element
	denInv.Inverse(&den)
	var coeff fr.Element
	coeff.Mul(&num, &denInv)
	return coeff
}

// ErrCannotAggregate is returned when too few signature shares are supplied
// to CombineSignatures.
var ErrCannotAggregate = errors.New("cannot aggregate: insufficient signature shares")
