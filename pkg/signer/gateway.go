// Package signer implements the replica-side signing role: producing this
// replica's signature shares over validated transfers, and running the
// genesis minting ceremony. It never stores secret material itself — all
// signing goes through a Gateway, mirroring the teacher's pattern of
// keeping secret custody behind a narrow interface (see
// pkg/attestation/strategy for the analogous separation between validation
// logic and key custody).
package signer

import (
	"context"

	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
)

// Gateway is the external threshold-signer contract: one operation that
// returns this replica's signature share over the given canonical bytes.
// Implementations may suspend (e.g. an HSM round-trip, a remote signer
// service) and must surface failure as an error without ever revealing the
// underlying secret share.
type Gateway interface {
	SignWithSecretKeyShare(ctx context.Context, message []byte) (*bls.Signature, error)
}

// LocalGateway is a Gateway backed by an in-process secret key share. It is
// the reference implementation used by tests and by single-process
// deployments; a production deployment would instead implement Gateway
// against an HSM or a remote signer.
type LocalGateway struct {
	share *bls.SecretKeyShare
}

// NewLocalGateway returns a Gateway that signs directly with share.
func NewLocalGateway(share *bls.SecretKeyShare) *LocalGateway {
	return &LocalGateway{share: share}
}

// SignWithSecretKeyShare signs message with the held secret key share.
// LocalGateway signs exactly what it is given and adds no domain tag;
// ReplicaSigner passes plain canonical bytes.
func (g *LocalGateway) SignWithSecretKeyShare(ctx context.Context, message []byte) (*bls.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.share.Sign(message), nil
}
