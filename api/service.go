// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the bridge over JSON-RPC.
package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json"
	"github.com/luxfi/ids"

	"github.com/luxfi/teleport/bridge"
	"github.com/luxfi/teleport/consortium"
	"github.com/luxfi/teleport/payload"
)

var errNoConsortium = errors.New("no consortium configured")

// Service provides the teleport JSON-RPC endpoints.
type Service struct {
	bridge  *bridge.Bridge
	players *consortium.Consortium
}

// NewService returns a service backed by [b]. [players] may be nil when
// membership is managed elsewhere.
func NewService(b *bridge.Bridge, players *consortium.Consortium) *Service {
	return &Service{
		bridge:  b,
		players: players,
	}
}

// NewServer returns an http.Handler serving [service] under the
// "teleport" namespace.
func NewServer(service *Service) (*rpc.Server, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	server.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	return server, server.RegisterService(service, "teleport")
}

// DepositArgs are the arguments for teleport.deposit
type DepositArgs struct {
	From      string `json:"from"`
	DestChain string `json:"destChain"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// DepositReply is the reply for teleport.deposit
type DepositReply struct {
	NetAmount   uint64 `json:"netAmount"`
	Payload     string `json:"payload"`
	PayloadHash string `json:"payloadHash"`
}

// Deposit initiates an outbound transfer and returns the payload the
// destination chain must be shown.
func (s *Service) Deposit(_ *http.Request, args *DepositArgs, reply *DepositReply) error {
	from, err := parseAddress(args.From)
	if err != nil {
		return err
	}
	destChain, err := ids.FromString(args.DestChain)
	if err != nil {
		return err
	}
	recipient, err := parseAddress(args.Recipient)
	if err != nil {
		return err
	}

	net, payloadBytes, err := s.bridge.Deposit(from, destChain, recipient, args.Amount)
	if err != nil {
		return err
	}

	reply.NetAmount = net
	reply.Payload = "0x" + hex.EncodeToString(payloadBytes)
	reply.PayloadHash = payload.Hash(payloadBytes).String()
	return nil
}

// WithdrawArgs are the arguments for teleport.withdraw
type WithdrawArgs struct {
	Payload string `json:"payload"`
}

// WithdrawReply is the reply for teleport.withdraw
type WithdrawReply struct {
	PayloadHash string `json:"payloadHash"`
}

// Withdraw applies a confirmed payload on this chain.
func (s *Service) Withdraw(_ *http.Request, args *WithdrawArgs, reply *WithdrawReply) error {
	payloadBytes, err := parseHex(args.Payload)
	if err != nil {
		return err
	}
	if err := s.bridge.Withdraw(payloadBytes); err != nil {
		return err
	}
	reply.PayloadHash = payload.Hash(payloadBytes).String()
	return nil
}

// NotarizeArgs are the arguments for teleport.notarize
type NotarizeArgs struct {
	Payload string `json:"payload"`
	Proof   string `json:"proof"`
}

// NotarizeReply is the reply for teleport.notarize
type NotarizeReply struct {
	PayloadHash string `json:"payloadHash"`
}

// Notarize submits a consortium proof for a payload.
func (s *Service) Notarize(_ *http.Request, args *NotarizeArgs, reply *NotarizeReply) error {
	payloadBytes, err := parseHex(args.Payload)
	if err != nil {
		return err
	}
	proof, err := parseHex(args.Proof)
	if err != nil {
		return err
	}
	if err := s.bridge.AuthNotary(payloadBytes, proof); err != nil {
		return err
	}
	reply.PayloadHash = payload.Hash(payloadBytes).String()
	return nil
}

// StatusArgs are the arguments for teleport.status
type StatusArgs struct {
	PayloadHash string `json:"payloadHash"`
}

// StatusReply is the reply for teleport.status
type StatusReply struct {
	AdapterConfirmed bool `json:"adapterConfirmed"`
	Notarized        bool `json:"notarized"`
	Withdrawn        bool `json:"withdrawn"`
}

// Status reports the confirmation state of a payload.
func (s *Service) Status(_ *http.Request, args *StatusArgs, reply *StatusReply) error {
	payloadHash, err := ids.FromString(args.PayloadHash)
	if err != nil {
		return err
	}
	status, err := s.bridge.Status(payloadHash)
	if err != nil {
		return err
	}
	reply.AdapterConfirmed = status.AdapterConfirmed
	reply.Notarized = status.Notarized
	reply.Withdrawn = status.Withdrawn
	return nil
}

// QuoteFeeArgs are the arguments for teleport.quoteFee
type QuoteFeeArgs struct {
	DestChain string `json:"destChain"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// QuoteFeeReply is the reply for teleport.quoteFee
type QuoteFeeReply struct {
	Fee uint64 `json:"fee"`
}

// QuoteFee estimates the total cost of a deposit.
func (s *Service) QuoteFee(_ *http.Request, args *QuoteFeeArgs, reply *QuoteFeeReply) error {
	destChain, err := ids.FromString(args.DestChain)
	if err != nil {
		return err
	}
	recipient, err := parseAddress(args.Recipient)
	if err != nil {
		return err
	}
	fee, err := s.bridge.QuoteFee(destChain, recipient, args.Amount)
	if err != nil {
		return err
	}
	reply.Fee = fee
	return nil
}

// ConsortiumArgs are the arguments for teleport.consortium (empty)
type ConsortiumArgs struct{}

// ConsortiumReply is the reply for teleport.consortium
type ConsortiumReply struct {
	Players   []string `json:"players"`
	Threshold int      `json:"threshold"`
}

// Consortium returns the current player set and signing threshold.
func (s *Service) Consortium(_ *http.Request, _ *ConsortiumArgs, reply *ConsortiumReply) error {
	if s.players == nil {
		return errNoConsortium
	}

	players := s.players.Players()
	reply.Players = make([]string, len(players))
	for i, player := range players {
		reply.Players[i] = "0x" + hex.EncodeToString(player[:])
	}
	reply.Threshold = s.players.Threshold()
	return nil
}

func parseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func parseAddress(s string) (ids.ShortID, error) {
	b, err := parseHex(s)
	if err != nil {
		return ids.ShortEmpty, err
	}
	return ids.ToShortID(b)
}
