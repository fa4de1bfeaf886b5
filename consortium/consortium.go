// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consortium tracks the rotating set of validating players and
// verifies that a message hash carries a quorum of their signatures.
// Membership changes are self-amending: they are only accepted with a
// proof that itself passes the consortium's own verification.
package consortium

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/teleport/payload"
)

const (
	// MinPlayers is the smallest player set that still tolerates one
	// Byzantine player.
	MinPlayers = 4
	// MaxPlayers bounds the player arena.
	MaxPlayers = 6423
)

var (
	_ Verifier = (*Consortium)(nil)

	ErrInvalidPlayerSet       = errors.New("invalid player set")
	ErrInvalidSignatureLength = errors.New("signature bundle length is not a multiple of the slot size")
	ErrInvalidSignature       = errors.New("signature is invalid")
	ErrPlayerNotFound         = errors.New("player not found")
	ErrDuplicatedSignature    = errors.New("duplicated signature")
	ErrInsufficientSignatures = errors.New("insufficient signatures")
	ErrTooManyPlayers         = errors.New("too many players")
	ErrPlayerAlreadyExists    = errors.New("player already exists")
	ErrCannotRemovePlayer     = errors.New("cannot remove player")
	ErrProofMismatch          = errors.New("proof does not match requested change")
)

// Verifier checks that [proof] attests to [msgHash]. Implementations are
// the threshold-multisig Consortium and the SingleKeyVerifier.
type Verifier interface {
	Verify(msgHash []byte, proof []byte) error
}

// QuorumThreshold returns the minimum number of distinct valid signers
// required for a player set of size [n]. The result always exceeds 2n/3,
// tolerating floor((n-1)/3) Byzantine players.
func QuorumThreshold(n int) int {
	return (2*n)/3 + 1
}

// Consortium is the current player set and its quorum threshold. Players
// live in an insertion-ordered arena with a parallel index for O(1)
// lookup and swap-removal; both are updated together under the lock, and
// the threshold is recomputed atomically with every mutation.
type Consortium struct {
	log log.Logger

	lock      sync.RWMutex
	players   []ids.ShortID
	index     map[ids.ShortID]int
	threshold int
}

// New constructs a Consortium over [players], which must be duplicate
// free and within [MinPlayers, MaxPlayers].
func New(logger log.Logger, players []ids.ShortID) (*Consortium, error) {
	if len(players) < MinPlayers || len(players) > MaxPlayers {
		return nil, fmt.Errorf("%w: %d players, need [%d, %d]",
			ErrInvalidPlayerSet, len(players), MinPlayers, MaxPlayers)
	}

	c := &Consortium{
		log:     logger,
		players: make([]ids.ShortID, len(players)),
		index:   make(map[ids.ShortID]int, len(players)),
	}
	for i, player := range players {
		if _, ok := c.index[player]; ok {
			return nil, fmt.Errorf("%w: duplicate player %s", ErrInvalidPlayerSet, player)
		}
		c.players[i] = player
		c.index[player] = i
	}
	c.threshold = QuorumThreshold(len(c.players))
	return c, nil
}

// Verify checks that [proof], a concatenation of 65-byte recoverable
// signature slots in arbitrary order, carries at least a quorum of
// distinct current-player signatures over [msgHash]. Validation is
// open-ended: the caller supplies exactly the signatures it has, and
// verification succeeds as soon as the quorum is reached.
func (c *Consortium) Verify(msgHash []byte, proof []byte) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.verify(msgHash, proof)
}

func (c *Consortium) verify(msgHash []byte, proof []byte) error {
	if len(proof) == 0 || len(proof)%secp256k1.SignatureLen != 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSignatureLength, len(proof))
	}

	signers := set.NewSet[ids.ShortID](c.threshold)
	for off := 0; off < len(proof); off += secp256k1.SignatureLen {
		sig := proof[off : off+secp256k1.SignatureLen]
		pk, err := secp256k1.RecoverPublicKeyFromHash(msgHash, sig)
		if err != nil {
			return fmt.Errorf("%w: slot %d: %w", ErrInvalidSignature, off/secp256k1.SignatureLen, err)
		}
		signer := pk.Address()
		if _, ok := c.index[signer]; !ok {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, signer)
		}
		if signers.Contains(signer) {
			return fmt.Errorf("%w: %s", ErrDuplicatedSignature, signer)
		}
		signers.Add(signer)
		if signers.Len() >= c.threshold {
			return nil
		}
	}
	return fmt.Errorf("%w: %d of %d", ErrInsufficientSignatures, signers.Len(), c.threshold)
}

// AddPlayer admits [player] into the set. [proof] must pass Verify
// against the hash of [data], and [data] must parse as a
// payload.ValidatorSetUpdate adding [player]. The mutation and the
// threshold recompute are atomic; the change is effective immediately.
func (c *Consortium) AddPlayer(player ids.ShortID, data []byte, proof []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.verifyChange(payload.SetOpAdd, player, data, proof); err != nil {
		return err
	}
	if len(c.players) >= MaxPlayers {
		return fmt.Errorf("%w: at cap of %d", ErrTooManyPlayers, MaxPlayers)
	}
	if _, ok := c.index[player]; ok {
		return fmt.Errorf("%w: %s", ErrPlayerAlreadyExists, player)
	}

	c.index[player] = len(c.players)
	c.players = append(c.players, player)
	c.threshold = QuorumThreshold(len(c.players))

	c.log.Info("player added",
		log.Stringer("player", player),
		log.Int("players", len(c.players)),
		log.Int("threshold", c.threshold),
	)
	return nil
}

// RemovePlayer evicts [player] from the set under the same proof
// discipline as AddPlayer. Removal is by swap with the last slot.
func (c *Consortium) RemovePlayer(player ids.ShortID, data []byte, proof []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.verifyChange(payload.SetOpRemove, player, data, proof); err != nil {
		return err
	}
	i, ok := c.index[player]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, player)
	}
	if len(c.players) <= MinPlayers {
		return fmt.Errorf("%w: %d players is the minimum", ErrCannotRemovePlayer, MinPlayers)
	}

	last := len(c.players) - 1
	c.players[i] = c.players[last]
	c.index[c.players[i]] = i
	c.players = c.players[:last]
	delete(c.index, player)
	c.threshold = QuorumThreshold(len(c.players))

	c.log.Info("player removed",
		log.Stringer("player", player),
		log.Int("players", len(c.players)),
		log.Int("threshold", c.threshold),
	)
	return nil
}

// verifyChange checks the membership-change proof against the current
// set before any mutation, so no window exists where the set and the
// threshold disagree.
func (c *Consortium) verifyChange(op payload.SetOp, player ids.ShortID, data []byte, proof []byte) error {
	if err := c.verify(hash.ComputeHash256(data), proof); err != nil {
		return err
	}
	update, err := payload.ParseValidatorSetUpdate(data)
	if err != nil {
		return err
	}
	if update.Op != op || update.Player != player {
		return fmt.Errorf("%w: attested op %d player %s", ErrProofMismatch, update.Op, update.Player)
	}
	return nil
}

// Threshold returns the current quorum threshold.
func (c *Consortium) Threshold() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.threshold
}

// Players returns a copy of the player arena in iteration order.
func (c *Consortium) Players() []ids.ShortID {
	c.lock.RLock()
	defer c.lock.RUnlock()

	players := make([]ids.ShortID, len(c.players))
	copy(players, c.players)
	return players
}

// IsPlayer reports whether [player] is in the current set.
func (c *Consortium) IsPlayer(player ids.ShortID) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()

	_, ok := c.index[player]
	return ok
}
