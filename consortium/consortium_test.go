// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consortium

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/teleport/payload"
)

type testPlayer struct {
	key  *secp256k1.PrivateKey
	addr ids.ShortID
}

func newTestPlayers(t *testing.T, n int) []testPlayer {
	t.Helper()

	players := make([]testPlayer, n)
	for i := range players {
		key, err := secp256k1.NewPrivateKey()
		require.NoError(t, err)
		players[i] = testPlayer{
			key:  key,
			addr: key.PublicKey().Address(),
		}
	}
	return players
}

func addrsOf(players []testPlayer) []ids.ShortID {
	addrs := make([]ids.ShortID, len(players))
	for i, p := range players {
		addrs[i] = p.addr
	}
	return addrs
}

// signBundle concatenates one 65-byte signature slot per signer.
func signBundle(t *testing.T, msgHash []byte, signers ...testPlayer) []byte {
	t.Helper()

	var bundle []byte
	for _, s := range signers {
		sig, err := s.key.SignHash(msgHash)
		require.NoError(t, err)
		bundle = append(bundle, sig...)
	}
	return bundle
}

func TestQuorumThreshold(t *testing.T) {
	require := require.New(t)

	for n := MinPlayers; n <= MaxPlayers; n++ {
		q := QuorumThreshold(n)
		require.Greater(3*q, 2*n, "n=%d q=%d", n, q)
		require.LessOrEqual(q, n, "n=%d q=%d", n, q)
	}

	// Spot checks: ceil(2n/3), plus one when n is divisible by 3.
	require.Equal(3, QuorumThreshold(4))
	require.Equal(4, QuorumThreshold(5))
	require.Equal(5, QuorumThreshold(6))
	require.Equal(5, QuorumThreshold(7))
}

func TestNewBounds(t *testing.T) {
	require := require.New(t)

	logger := log.NewNoOpLogger()

	_, err := New(logger, make([]ids.ShortID, MinPlayers-1))
	require.ErrorIs(err, ErrInvalidPlayerSet)

	dup := ids.GenerateTestShortID()
	_, err = New(logger, []ids.ShortID{dup, dup, ids.GenerateTestShortID(), ids.GenerateTestShortID()})
	require.ErrorIs(err, ErrInvalidPlayerSet)

	players := newTestPlayers(t, MinPlayers)
	c, err := New(logger, addrsOf(players))
	require.NoError(err)
	require.Equal(QuorumThreshold(MinPlayers), c.Threshold())
}

func TestVerify(t *testing.T) {
	players := newTestPlayers(t, 5) // threshold 4
	msgHash := hash.ComputeHash256([]byte("attest me"))

	stranger := newTestPlayers(t, 1)[0]

	tests := map[string]struct {
		bundle func(*testing.T) []byte
		err    error
	}{
		"quorum": {
			bundle: func(t *testing.T) []byte {
				return signBundle(t, msgHash, players[:4]...)
			},
		},
		"all players": {
			bundle: func(t *testing.T) []byte {
				return signBundle(t, msgHash, players...)
			},
		},
		"empty bundle": {
			bundle: func(*testing.T) []byte {
				return nil
			},
			err: ErrInvalidSignatureLength,
		},
		"ragged bundle": {
			bundle: func(t *testing.T) []byte {
				return signBundle(t, msgHash, players[:4]...)[:secp256k1.SignatureLen*2+7]
			},
			err: ErrInvalidSignatureLength,
		},
		"below threshold all valid": {
			bundle: func(t *testing.T) []byte {
				return signBundle(t, msgHash, players[:3]...)
			},
			err: ErrInsufficientSignatures,
		},
		"duplicate signer": {
			bundle: func(t *testing.T) []byte {
				return signBundle(t, msgHash, players[0], players[1], players[1], players[2])
			},
			err: ErrDuplicatedSignature,
		},
		"unknown signer": {
			bundle: func(t *testing.T) []byte {
				return signBundle(t, msgHash, players[0], players[1], stranger, players[2])
			},
			err: ErrPlayerNotFound,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			c, err := New(log.NewNoOpLogger(), addrsOf(players))
			require.NoError(err)

			err = c.Verify(msgHash, test.bundle(t))
			require.ErrorIs(err, test.err)
		})
	}
}

func TestVerifyWrongMessage(t *testing.T) {
	require := require.New(t)

	players := newTestPlayers(t, 4)
	c, err := New(log.NewNoOpLogger(), addrsOf(players))
	require.NoError(err)

	signedHash := hash.ComputeHash256([]byte("signed"))
	otherHash := hash.ComputeHash256([]byte("verified"))
	bundle := signBundle(t, signedHash, players[:3]...)

	// Signatures over a different hash recover to unrelated addresses.
	require.Error(c.Verify(otherHash, bundle))
}

// changeProof builds a consortium-signed ValidatorSetUpdate for [player]
// and a quorum signature bundle over its hash.
func changeProof(t *testing.T, op payload.SetOp, player ids.ShortID, seq uint64, signers []testPlayer) ([]byte, []byte) {
	t.Helper()

	update := &payload.ValidatorSetUpdate{
		Op:     op,
		Player: player,
		Seq:    seq,
	}
	data := update.Bytes()
	return data, signBundle(t, hash.ComputeHash256(data), signers...)
}

func TestMembershipRoundTrip(t *testing.T) {
	require := require.New(t)

	players := newTestPlayers(t, 4)
	c, err := New(log.NewNoOpLogger(), addrsOf(players))
	require.NoError(err)

	wantPlayers := c.Players()
	wantThreshold := c.Threshold()

	joiner := newTestPlayers(t, 1)[0]

	data, proof := changeProof(t, payload.SetOpAdd, joiner.addr, 1, players[:3])
	require.NoError(c.AddPlayer(joiner.addr, data, proof))
	require.True(c.IsPlayer(joiner.addr))
	require.Equal(QuorumThreshold(5), c.Threshold())

	// The new player's signature now counts toward quorum.
	msgHash := hash.ComputeHash256([]byte("post-join"))
	require.NoError(c.Verify(msgHash, signBundle(t, msgHash, players[0], players[1], players[2], joiner)))

	data, proof = changeProof(t, payload.SetOpRemove, joiner.addr, 2, players[:4])
	require.NoError(c.RemovePlayer(joiner.addr, data, proof))

	require.Equal(wantPlayers, c.Players())
	require.Equal(wantThreshold, c.Threshold())
	require.False(c.IsPlayer(joiner.addr))
}

func TestMembershipChangeRejections(t *testing.T) {
	require := require.New(t)

	players := newTestPlayers(t, 4)
	c, err := New(log.NewNoOpLogger(), addrsOf(players))
	require.NoError(err)

	joiner := newTestPlayers(t, 1)[0]

	// Sub-quorum proof.
	data, proof := changeProof(t, payload.SetOpAdd, joiner.addr, 1, players[:2])
	err = c.AddPlayer(joiner.addr, data, proof)
	require.ErrorIs(err, ErrInsufficientSignatures)
	require.False(c.IsPlayer(joiner.addr))

	// Proof attests a different player.
	data, proof = changeProof(t, payload.SetOpAdd, ids.GenerateTestShortID(), 1, players[:3])
	err = c.AddPlayer(joiner.addr, data, proof)
	require.ErrorIs(err, ErrProofMismatch)

	// Proof attests the wrong operation.
	data, proof = changeProof(t, payload.SetOpRemove, joiner.addr, 1, players[:3])
	err = c.AddPlayer(joiner.addr, data, proof)
	require.ErrorIs(err, ErrProofMismatch)

	// Adding an existing player.
	data, proof = changeProof(t, payload.SetOpAdd, players[0].addr, 2, players[:3])
	err = c.AddPlayer(players[0].addr, data, proof)
	require.ErrorIs(err, ErrPlayerAlreadyExists)

	// Removing below the minimum.
	data, proof = changeProof(t, payload.SetOpRemove, players[3].addr, 3, players[:3])
	err = c.RemovePlayer(players[3].addr, data, proof)
	require.ErrorIs(err, ErrCannotRemovePlayer)

	// Removing a non-player.
	data, proof = changeProof(t, payload.SetOpRemove, joiner.addr, 4, players[:3])
	err = c.RemovePlayer(joiner.addr, data, proof)
	require.ErrorIs(err, ErrPlayerNotFound)
}

func TestSingleKeyVerifier(t *testing.T) {
	require := require.New(t)

	signer := newTestPlayers(t, 1)[0]
	v := &SingleKeyVerifier{Signer: signer.addr}

	msgHash := hash.ComputeHash256([]byte("solo"))
	sig := signBundle(t, msgHash, signer)
	require.NoError(v.Verify(msgHash, sig))

	// Two slots are rejected even if the first is valid.
	err := v.Verify(msgHash, append(sig, sig...))
	require.ErrorIs(err, ErrInvalidSignatureLength)

	other := newTestPlayers(t, 1)[0]
	err = v.Verify(msgHash, signBundle(t, msgHash, other))
	require.ErrorIs(err, ErrPlayerNotFound)
}
