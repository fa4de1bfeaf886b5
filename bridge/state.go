// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
)

var (
	depositPrefix = []byte("deposit")

	nonceKey = []byte("nonce")
)

// depositRecord is the permanent replay-protection entry for one
// payload, keyed by the payload hash. Records are created lazily on the
// first confirmation or notarization touch and never deleted. Once
// Withdrawn is set the record is terminal and must never change again.
type depositRecord struct {
	Payload          []byte `serialize:"true"`
	AdapterConfirmed bool   `serialize:"true"`
	Notarized        bool   `serialize:"true"`
	Withdrawn        bool   `serialize:"true"`
}

// DepositStatus is the externally visible view of a deposit record.
type DepositStatus struct {
	AdapterConfirmed bool `json:"adapterConfirmed"`
	Notarized        bool `json:"notarized"`
	Withdrawn        bool `json:"withdrawn"`
}

// state is the bridge's persisted storage: the deposit ledger and the
// payload sequence nonce. Writes are staged on a versiondb and only
// reach the backing database on Commit, so every bridge operation lands
// as a single atomic batch or not at all.
type state struct {
	vdb      *versiondb.Database
	deposits database.Database

	nonce uint64
}

func newState(db database.Database) (*state, error) {
	vdb := versiondb.New(db)
	s := &state{
		vdb:      vdb,
		deposits: prefixdb.New(depositPrefix, vdb),
	}

	nonce, err := database.GetUInt64(vdb, nonceKey)
	switch {
	case err == nil:
		s.nonce = nonce
	case errors.Is(err, database.ErrNotFound):
		s.nonce = 0
	default:
		return nil, fmt.Errorf("failed to load sequence nonce: %w", err)
	}
	return s, nil
}

// NextNonce stages and returns the next payload sequence nonce
// (post-increment: the returned value is used, the successor is
// stored). Durable only after Commit.
func (s *state) NextNonce() (uint64, error) {
	nonce := s.nonce
	if err := database.PutUInt64(s.vdb, nonceKey, nonce+1); err != nil {
		return 0, fmt.Errorf("failed to stage sequence nonce: %w", err)
	}
	s.nonce = nonce + 1
	return nonce, nil
}

// Commit flushes all staged writes to the backing database atomically.
func (s *state) Commit() error {
	return s.vdb.Commit()
}

// Abort discards staged writes that were never committed.
func (s *state) Abort() {
	s.vdb.Abort()
}

// GetDeposit returns the record for [payloadHash], or a fresh record
// holding [payloadBytes] if none exists yet.
func (s *state) GetDeposit(payloadHash ids.ID, payloadBytes []byte) (*depositRecord, error) {
	b, err := s.deposits.Get(payloadHash[:])
	if errors.Is(err, database.ErrNotFound) {
		return &depositRecord{Payload: payloadBytes}, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &depositRecord{}
	if _, err := c.Unmarshal(b, rec); err != nil {
		return nil, fmt.Errorf("failed to parse deposit record %s: %w", payloadHash, err)
	}
	return rec, nil
}

// HasDeposit reports whether a record exists for [payloadHash].
func (s *state) HasDeposit(payloadHash ids.ID) (bool, error) {
	return s.deposits.Has(payloadHash[:])
}

// PutDeposit stages [rec] under [payloadHash]. Durable only after
// Commit.
func (s *state) PutDeposit(payloadHash ids.ID, rec *depositRecord) error {
	b, err := c.Marshal(codecVersion, rec)
	if err != nil {
		return err
	}
	return s.deposits.Put(payloadHash[:], b)
}
