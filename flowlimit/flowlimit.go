// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package flowlimit bounds net value flow per remote chain. Each
// (chain, direction) pair tracks an in-flight amount that decays
// linearly back to zero over a configured window, and consuming capacity
// in one direction credits the opposite direction by the same amount, so
// the limiter models net exposure rather than gross volume.
package flowlimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/timer/mockable"
)

// Direction distinguishes flow toward a remote chain from flow received
// from it.
type Direction uint8

const (
	Outbound Direction = iota
	Inbound

	numDirections = 2
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return fmt.Sprintf("direction(%d)", d)
	}
}

// Opposite returns the other direction for the same chain.
func (d Direction) Opposite() Direction {
	return 1 - d
}

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrUnknownChain      = errors.New("no rate limit configured for chain")
)

type flow struct {
	amountInFlight uint64
	lastUpdated    time.Time
	limit          uint64
	window         time.Duration
}

// decay folds the linear refill accrued since lastUpdated into
// amountInFlight and stamps [now].
func (f *flow) decay(now time.Time) {
	elapsed := now.Sub(f.lastUpdated)
	f.lastUpdated = now

	switch {
	case elapsed <= 0:
		return
	case f.window <= 0 || elapsed >= f.window:
		f.amountInFlight = 0
	default:
		if f.limit != 0 && uint64(elapsed) > math.MaxUint64/f.limit {
			// limit*elapsed overflows only when the refill over the
			// window dwarfs any representable in-flight amount.
			f.amountInFlight = 0
			return
		}
		decayed := f.limit * uint64(elapsed) / uint64(f.window)
		if decayed >= f.amountInFlight {
			f.amountInFlight = 0
		} else {
			f.amountInFlight -= decayed
		}
	}
}

func (f *flow) available() uint64 {
	if f.amountInFlight >= f.limit {
		return 0
	}
	return f.limit - f.amountInFlight
}

// Limiter tracks decaying bidirectional flow limits keyed by remote
// chain.
type Limiter struct {
	clk *mockable.Clock

	lock   sync.Mutex
	chains map[ids.ID]*[numDirections]flow
}

// New returns a Limiter reading time from [clk].
func New(clk *mockable.Clock) *Limiter {
	return &Limiter{
		clk:    clk,
		chains: make(map[ids.ID]*[numDirections]flow),
	}
}

// SetLimit configures [limit] refilling over [window] for one direction
// of [chainID]. An existing flow is checkpointed at the old decay rate
// first, so the new rate is not applied retroactively; the accrued
// in-flight amount carries over.
func (l *Limiter) SetLimit(chainID ids.ID, dir Direction, limit uint64, window time.Duration) {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.clk.Time()
	flows, ok := l.chains[chainID]
	if !ok {
		flows = &[numDirections]flow{}
		flows[Outbound].lastUpdated = now
		flows[Inbound].lastUpdated = now
		l.chains[chainID] = flows
	}

	f := &flows[dir]
	f.decay(now)
	f.limit = limit
	f.window = window
}

// Consume debits [amount] of capacity in [dir] for [chainID] and credits
// the opposite direction by the same amount. On ErrRateLimitExceeded no
// state is mutated.
func (l *Limiter) Consume(chainID ids.ID, dir Direction, amount uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	flows, ok := l.chains[chainID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
	}

	now := l.clk.Time()
	f := &flows[dir]

	scratch := *f
	scratch.decay(now)
	if amount > scratch.available() {
		return fmt.Errorf("%w: %s %s: %d > %d available",
			ErrRateLimitExceeded, chainID, dir, amount, scratch.available())
	}
	scratch.amountInFlight += amount
	*f = scratch

	// Outbound flow frees future inbound capacity and vice versa.
	opp := &flows[dir.Opposite()]
	opp.decay(now)
	if amount >= opp.amountInFlight {
		opp.amountInFlight = 0
	} else {
		opp.amountInFlight -= amount
	}
	return nil
}

// Available reports the capacity currently consumable in [dir] for
// [chainID] without mutating state. An unconfigured chain has no
// capacity.
func (l *Limiter) Available(chainID ids.ID, dir Direction) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	flows, ok := l.chains[chainID]
	if !ok {
		return 0
	}
	scratch := flows[dir]
	scratch.decay(l.clk.Time())
	return scratch.available()
}
