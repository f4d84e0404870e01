package signer

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
)

// FileGateway is a Gateway backed by a secret key share persisted as a
// hex-encoded file, adapted from the key-file load/save pattern the
// teacher's BLS key manager used for single-key validator identities —
// generalised here to one participant's share of a threshold key.
type FileGateway struct {
	path  string
	index int
	share *bls.SecretKeyShare
}

// LoadFileGateway reads a hex-encoded secret key share from path and wraps
// it at the given participant index.
func LoadFileGateway(path string, index int) (*FileGateway, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key share file: %w", err)
	}
	raw, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode key share hex: %w", err)
	}
	sk, err := bls.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse key share: %w", err)
	}
	return &FileGateway{path: path, index: index, share: bls.NewSecretKeyShare(index, sk)}, nil
}

// SaveSecretKeyShare persists share's bytes to path as hex, creating parent
// directories as needed and restricting permissions to the owner, matching
// the teacher's KeyManager.SaveKey convention.
func SaveSecretKeyShare(path string, share *bls.SecretKeyShare) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key share directory: %w", err)
	}
	keyHex := hex.EncodeToString(share.Bytes())
	if err := os.WriteFile(path, []byte(keyHex), 0o600); err != nil {
		return fmt.Errorf("write key share file: %w", err)
	}
	return nil
}

// SignWithSecretKeyShare signs message with the loaded secret key share.
func (g *FileGateway) SignWithSecretKeyShare(ctx context.Context, message []byte) (*bls.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.share.Sign(message), nil
}

// Index returns the participant index this gateway's share was loaded for.
func (g *FileGateway) Index() int { return g.index }
