// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload implements the canonical byte form of cross-chain
// messages. Every message is a 4-byte action selector followed by
// big-endian fixed-width fields; account identifiers are left-zero-padded
// to 32 bytes. Every message carries a sequence nonce so that two
// otherwise identical intents never hash to the same payload.
package payload

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"
	"github.com/luxfi/utils/wrappers"
)

const (
	// SelectorLen is the number of bytes in an action selector.
	SelectorLen = 4

	idLen      = 32
	addrLen    = 32
	shortIDLen = 20

	feeApprovalLen        = SelectorLen + addrLen + 3*wrappers.LongLen
	mintFromDepositLen    = SelectorLen + idLen + addrLen + 2*wrappers.LongLen
	transferLen           = SelectorLen + 4*idLen + addrLen + 2*wrappers.LongLen
	validatorSetUpdateLen = SelectorLen + wrappers.ByteLen + addrLen + wrappers.LongLen
)

// Selector identifies the action a payload encodes.
type Selector [SelectorLen]byte

// Action selectors are the first four bytes of the sha256 of the action
// signature string, mirroring how the remote contracts derive them.
var (
	FeeApprovalSelector        = newSelector("feeApproval(address,uint64,uint64,uint64)")
	MintFromDepositSelector    = newSelector("mintFromDeposit(bytes32,address,uint64,uint64)")
	TransferSelector           = newSelector("transfer(bytes32,bytes32,bytes32,bytes32,address,uint64,uint64)")
	ValidatorSetUpdateSelector = newSelector("validatorSetUpdate(uint8,address,uint64)")
)

var (
	ErrUnknownAction = errors.New("unknown action selector")
	ErrWrongAction   = errors.New("wrong action selector")
	ErrMalformed     = errors.New("malformed payload")
	ErrUnknownSetOp  = errors.New("unknown validator set operation")
)

func newSelector(sig string) Selector {
	var s Selector
	copy(s[:], hash.ComputeHash256([]byte(sig)))
	return s
}

// Payload is one typed cross-chain message.
type Payload interface {
	// Selector returns the action selector this payload is tagged with.
	Selector() Selector
	// Nonce returns the sequence nonce embedded in the payload.
	Nonce() uint64
	// Bytes returns the canonical byte form of the payload.
	Bytes() []byte
}

// Hash returns the identity of a payload: the sha256 of its canonical
// byte form.
func Hash(payloadBytes []byte) ids.ID {
	return hash.ComputeHash256Array(payloadBytes)
}

// Parse decodes any known payload type, dispatching on the selector.
func Parse(b []byte) (Payload, error) {
	if len(b) < SelectorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	var sel Selector
	copy(sel[:], b)
	switch sel {
	case FeeApprovalSelector:
		return ParseFeeApproval(b)
	case MintFromDepositSelector:
		return ParseMintFromDeposit(b)
	case TransferSelector:
		return ParseTransfer(b)
	case ValidatorSetUpdateSelector:
		return ParseValidatorSetUpdate(b)
	default:
		return nil, fmt.Errorf("%w: %x", ErrUnknownAction, sel)
	}
}

// FeeApproval authorizes a spender to take a commission, with an expiry.
type FeeApproval struct {
	Spender  ids.ShortID
	Amount   uint64
	Deadline uint64
	Seq      uint64
}

func (*FeeApproval) Selector() Selector {
	return FeeApprovalSelector
}

func (f *FeeApproval) Nonce() uint64 {
	return f.Seq
}

func (f *FeeApproval) Bytes() []byte {
	p := wrappers.Packer{MaxSize: feeApprovalLen}
	p.PackFixedBytes(FeeApprovalSelector[:])
	packAddr(&p, f.Spender)
	p.PackLong(f.Amount)
	p.PackLong(f.Deadline)
	p.PackLong(f.Seq)
	return p.Bytes
}

// ParseFeeApproval decodes a FeeApproval, rejecting truncated,
// oversized, or mistagged buffers.
func ParseFeeApproval(b []byte) (*FeeApproval, error) {
	p, err := unpackerFor(b, FeeApprovalSelector, feeApprovalLen)
	if err != nil {
		return nil, err
	}
	f := &FeeApproval{
		Spender:  unpackAddr(p),
		Amount:   p.UnpackLong(),
		Deadline: p.UnpackLong(),
		Seq:      p.UnpackLong(),
	}
	if p.Errored() {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, p.Err)
	}
	return f, nil
}

// MintFromDeposit reports an externally observed deposit (e.g. a BTC
// transaction) that entitles the recipient to a mint.
type MintFromDeposit struct {
	DepositTxID ids.ID
	Recipient   ids.ShortID
	Amount      uint64
	Seq         uint64
}

func (*MintFromDeposit) Selector() Selector {
	return MintFromDepositSelector
}

func (m *MintFromDeposit) Nonce() uint64 {
	return m.Seq
}

func (m *MintFromDeposit) Bytes() []byte {
	p := wrappers.Packer{MaxSize: mintFromDepositLen}
	p.PackFixedBytes(MintFromDepositSelector[:])
	p.PackFixedBytes(m.DepositTxID[:])
	packAddr(&p, m.Recipient)
	p.PackLong(m.Amount)
	p.PackLong(m.Seq)
	return p.Bytes
}

// ParseMintFromDeposit decodes a MintFromDeposit message.
func ParseMintFromDeposit(b []byte) (*MintFromDeposit, error) {
	p, err := unpackerFor(b, MintFromDepositSelector, mintFromDepositLen)
	if err != nil {
		return nil, err
	}
	m := &MintFromDeposit{
		DepositTxID: unpackID(p),
		Recipient:   unpackAddr(p),
		Amount:      p.UnpackLong(),
		Seq:         p.UnpackLong(),
	}
	if p.Errored() {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, p.Err)
	}
	return m, nil
}

// Transfer is one cross-chain bridge intent: the deposit side emits it
// and the withdraw side applies it.
type Transfer struct {
	SourceChain    ids.ID
	SourceContract ids.ID
	DestChain      ids.ID
	DestContract   ids.ID
	Recipient      ids.ShortID
	Amount         uint64
	Seq            uint64
}

func (*Transfer) Selector() Selector {
	return TransferSelector
}

func (t *Transfer) Nonce() uint64 {
	return t.Seq
}

func (t *Transfer) Bytes() []byte {
	p := wrappers.Packer{MaxSize: transferLen}
	p.PackFixedBytes(TransferSelector[:])
	p.PackFixedBytes(t.SourceChain[:])
	p.PackFixedBytes(t.SourceContract[:])
	p.PackFixedBytes(t.DestChain[:])
	p.PackFixedBytes(t.DestContract[:])
	packAddr(&p, t.Recipient)
	p.PackLong(t.Amount)
	p.PackLong(t.Seq)
	return p.Bytes
}

// ParseTransfer decodes a Transfer message.
func ParseTransfer(b []byte) (*Transfer, error) {
	p, err := unpackerFor(b, TransferSelector, transferLen)
	if err != nil {
		return nil, err
	}
	t := &Transfer{
		SourceChain:    unpackID(p),
		SourceContract: unpackID(p),
		DestChain:      unpackID(p),
		DestContract:   unpackID(p),
		Recipient:      unpackAddr(p),
		Amount:         p.UnpackLong(),
		Seq:            p.UnpackLong(),
	}
	if p.Errored() {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, p.Err)
	}
	return t, nil
}

// SetOp is a validator set mutation kind.
type SetOp byte

const (
	SetOpAdd SetOp = iota + 1
	SetOpRemove
)

// ValidatorSetUpdate is the proof body for a consortium membership
// change; the consortium verifies the accompanying signature bundle
// against the hash of these bytes.
type ValidatorSetUpdate struct {
	Op     SetOp
	Player ids.ShortID
	Seq    uint64
}

func (*ValidatorSetUpdate) Selector() Selector {
	return ValidatorSetUpdateSelector
}

func (u *ValidatorSetUpdate) Nonce() uint64 {
	return u.Seq
}

func (u *ValidatorSetUpdate) Bytes() []byte {
	p := wrappers.Packer{MaxSize: validatorSetUpdateLen}
	p.PackFixedBytes(ValidatorSetUpdateSelector[:])
	p.PackByte(byte(u.Op))
	packAddr(&p, u.Player)
	p.PackLong(u.Seq)
	return p.Bytes
}

// ParseValidatorSetUpdate decodes a ValidatorSetUpdate message.
func ParseValidatorSetUpdate(b []byte) (*ValidatorSetUpdate, error) {
	p, err := unpackerFor(b, ValidatorSetUpdateSelector, validatorSetUpdateLen)
	if err != nil {
		return nil, err
	}
	u := &ValidatorSetUpdate{
		Op:     SetOp(p.UnpackByte()),
		Player: unpackAddr(p),
		Seq:    p.UnpackLong(),
	}
	if p.Errored() {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, p.Err)
	}
	if u.Op != SetOpAdd && u.Op != SetOpRemove {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSetOp, u.Op)
	}
	return u, nil
}

// unpackerFor validates the selector and exact length of [b] and returns
// a packer positioned after the selector.
func unpackerFor(b []byte, want Selector, wantLen int) (*wrappers.Packer, error) {
	if len(b) != wantLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformed, wantLen, len(b))
	}
	if !bytes.Equal(b[:SelectorLen], want[:]) {
		return nil, fmt.Errorf("%w: expected %x, got %x", ErrWrongAction, want, b[:SelectorLen])
	}
	return &wrappers.Packer{
		Bytes:   b,
		Offset:  SelectorLen,
		MaxSize: wantLen,
	}, nil
}

func packAddr(p *wrappers.Packer, addr ids.ShortID) {
	var padded [addrLen]byte
	copy(padded[addrLen-shortIDLen:], addr[:])
	p.PackFixedBytes(padded[:])
}

func unpackAddr(p *wrappers.Packer) ids.ShortID {
	var addr ids.ShortID
	b := p.UnpackFixedBytes(addrLen)
	if len(b) == addrLen {
		copy(addr[:], b[addrLen-shortIDLen:])
	}
	return addr
}

func unpackID(p *wrappers.Packer) ids.ID {
	var id ids.ID
	b := p.UnpackFixedBytes(idLen)
	if len(b) == idLen {
		copy(id[:], b)
	}
	return id
}
