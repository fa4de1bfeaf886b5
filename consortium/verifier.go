// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consortium

import (
	"fmt"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
)

var _ Verifier = (*SingleKeyVerifier)(nil)

// SingleKeyVerifier accepts exactly one recoverable signature from a
// fixed key. It is the degenerate Verifier variant used where a single
// attestor stands in for a full consortium.
type SingleKeyVerifier struct {
	Signer ids.ShortID
}

func (v *SingleKeyVerifier) Verify(msgHash []byte, proof []byte) error {
	if len(proof) != secp256k1.SignatureLen {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSignatureLength, len(proof))
	}
	pk, err := secp256k1.RecoverPublicKeyFromHash(msgHash, proof)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if signer := pk.Address(); signer != v.Signer {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, signer)
	}
	return nil
}
