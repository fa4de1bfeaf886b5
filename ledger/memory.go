// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/ids"
	safemath "github.com/luxfi/math"
)

var (
	_ Ledger            = (*InMemory)(nil)
	_ AttestationLedger = (*InMemory)(nil)

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPaused            = errors.New("ledger is paused")
)

// InMemory is a map-backed Ledger used by tests and local runs. It also
// implements AttestationLedger so a single instance can stand in for
// both collaborators. Pause freezes supply-changing operations the way
// a circuit-broken asset contract would.
type InMemory struct {
	lock     sync.Mutex
	balances map[ids.ShortID]uint64
	supply   uint64
	paused   bool

	reports map[ids.ID][]ids.ID
}

// NewInMemory returns an empty ledger. Use Mint to fund accounts.
func NewInMemory() *InMemory {
	return &InMemory{
		balances: make(map[ids.ShortID]uint64),
		reports:  make(map[ids.ID][]ids.ID),
	}
}

func (l *InMemory) Balance(addr ids.ShortID) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.balances[addr]
}

func (l *InMemory) Transfer(from ids.ShortID, to ids.ShortID, amount uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *InMemory) Mint(to ids.ShortID, amount uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.paused {
		return ErrPaused
	}
	newSupply, err := safemath.Add64(l.supply, amount)
	if err != nil {
		return err
	}
	l.supply = newSupply
	l.balances[to] += amount
	return nil
}

func (l *InMemory) Burn(from ids.ShortID, amount uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.paused {
		return ErrPaused
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.supply -= amount
	return nil
}

func (l *InMemory) TotalSupply() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.supply
}

// Pause rejects mints and burns until Resume.
func (l *InMemory) Pause() {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.paused = true
}

// Resume lifts a Pause.
func (l *InMemory) Resume() {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.paused = false
}

// ReportDeposits implements AttestationLedger. Re-reported hashes under
// the same report are not double counted.
func (l *InMemory) ReportDeposits(reportID ids.ID, payloadHashes []ids.ID) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	known := make(map[ids.ID]struct{}, len(l.reports[reportID]))
	for _, h := range l.reports[reportID] {
		known[h] = struct{}{}
	}

	added := 0
	for _, h := range payloadHashes {
		if _, ok := known[h]; ok {
			continue
		}
		known[h] = struct{}{}
		l.reports[reportID] = append(l.reports[reportID], h)
		added++
	}
	return added, nil
}

// Reported returns the payload hashes recorded under [reportID].
func (l *InMemory) Reported(reportID ids.ID) []ids.ID {
	l.lock.Lock()
	defer l.lock.Unlock()

	out := make([]ids.ID, len(l.reports[reportID]))
	copy(out, l.reports[reportID])
	return out
}
