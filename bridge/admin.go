// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/teleport/consortium"
	"github.com/luxfi/teleport/flowlimit"
)

// onlyOwner gates the admin surface. Must be called with the guard
// held.
func (b *Bridge) onlyOwner(caller ids.ShortID) error {
	if !b.initialized {
		return ErrNotInitialized
	}
	if caller != b.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}
	return nil
}

// AddDestination registers [chainID] as a reachable destination. The
// remote contract is fixed for the lifetime of the destination. A
// destination with no adapter always requires consortium notarization;
// there is no trustless confirmation path without one.
func (b *Bridge) AddDestination(caller ids.ShortID, chainID ids.ID, dest Destination) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	if _, ok := b.destinations[chainID]; ok {
		return fmt.Errorf("%w: %s", ErrDestinationExists, chainID)
	}
	if dest.RemoteContract == ids.Empty {
		return fmt.Errorf("%w: remote contract", ErrZeroAddress)
	}
	if dest.RelativeFeeBps >= feeDenominator {
		return fmt.Errorf("%w: %d bps", ErrCommissionTooHigh, dest.RelativeFeeBps)
	}
	if dest.AbsoluteFee > b.maxAbsFee {
		return fmt.Errorf("%w: absolute fee %d > %d", ErrCommissionTooHigh, dest.AbsoluteFee, b.maxAbsFee)
	}
	if dest.Adapter == nil {
		dest.RequireConsortium = true
	}

	b.destinations[chainID] = &dest
	b.metrics.adminChanges.Inc()
	b.log.Info("destination added",
		log.Stringer("chainID", chainID),
		log.Stringer("remoteContract", dest.RemoteContract),
		log.Uint64("relativeFeeBps", dest.RelativeFeeBps),
		log.Uint64("absoluteFee", dest.AbsoluteFee),
		log.Bool("hasAdapter", dest.Adapter != nil),
		log.Bool("requireConsortium", dest.RequireConsortium),
	)
	return nil
}

// RemoveDestination deregisters [chainID]. Pending payloads from that
// chain become unwithdrawable until it is re-added with the same remote
// contract.
func (b *Bridge) RemoveDestination(caller ids.ShortID, chainID ids.ID) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	if _, ok := b.destinations[chainID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, chainID)
	}

	delete(b.destinations, chainID)
	b.metrics.adminChanges.Inc()
	b.log.Info("destination removed",
		log.Stringer("chainID", chainID),
	)
	return nil
}

// SetCommission updates the fee schedule for [chainID].
func (b *Bridge) SetCommission(caller ids.ShortID, chainID ids.ID, relativeFeeBps uint64, absoluteFee uint64) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	dest, ok := b.destinations[chainID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, chainID)
	}
	if relativeFeeBps >= feeDenominator {
		return fmt.Errorf("%w: %d bps", ErrCommissionTooHigh, relativeFeeBps)
	}
	if absoluteFee > b.maxAbsFee {
		return fmt.Errorf("%w: absolute fee %d > %d", ErrCommissionTooHigh, absoluteFee, b.maxAbsFee)
	}

	dest.RelativeFeeBps = relativeFeeBps
	dest.AbsoluteFee = absoluteFee
	b.metrics.adminChanges.Inc()
	b.log.Info("commission updated",
		log.Stringer("chainID", chainID),
		log.Uint64("relativeFeeBps", relativeFeeBps),
		log.Uint64("absoluteFee", absoluteFee),
	)
	return nil
}

// SetAdapter swaps the adapter for [chainID]. Setting a nil adapter
// forces consortium notarization for that destination.
func (b *Bridge) SetAdapter(caller ids.ShortID, chainID ids.ID, adapter Adapter) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	dest, ok := b.destinations[chainID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, chainID)
	}

	dest.Adapter = adapter
	if adapter == nil {
		dest.RequireConsortium = true
	}
	b.metrics.adminChanges.Inc()
	b.log.Info("adapter updated",
		log.Stringer("chainID", chainID),
		log.Bool("hasAdapter", adapter != nil),
	)
	return nil
}

// SetRequireConsortium toggles the notarization requirement for
// [chainID]. It cannot be disabled while the destination has no
// adapter.
func (b *Bridge) SetRequireConsortium(caller ids.ShortID, chainID ids.ID, require bool) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	dest, ok := b.destinations[chainID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, chainID)
	}
	if !require && dest.Adapter == nil {
		return fmt.Errorf("%w: destination %s has no adapter", ErrUnknownAdapter, chainID)
	}

	dest.RequireConsortium = require
	b.metrics.adminChanges.Inc()
	b.log.Info("consortium requirement updated",
		log.Stringer("chainID", chainID),
		log.Bool("requireConsortium", require),
	)
	return nil
}

// SetVerifier replaces the notarization verifier.
func (b *Bridge) SetVerifier(caller ids.ShortID, verifier consortium.Verifier) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	if verifier == nil {
		return fmt.Errorf("%w: verifier", ErrZeroAddress)
	}

	b.verifier = verifier
	b.metrics.adminChanges.Inc()
	b.log.Info("verifier updated")
	return nil
}

// SetRateLimit reconfigures one flow limit. In-flight amounts are
// decayed to the call time and carried over.
func (b *Bridge) SetRateLimit(caller ids.ShortID, chainID ids.ID, dir flowlimit.Direction, limit uint64, window time.Duration) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}

	b.limiter.SetLimit(chainID, dir, limit, window)
	b.metrics.adminChanges.Inc()
	b.log.Info("rate limit updated",
		log.Stringer("chainID", chainID),
		log.Stringer("direction", dir),
		log.Uint64("limit", limit),
	)
	return nil
}

// SetRateLimits applies [limits] as a batch.
func (b *Bridge) SetRateLimits(caller ids.ShortID, limits []RateLimit) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}

	for _, rl := range limits {
		b.limiter.SetLimit(rl.Chain, rl.Direction, rl.Limit, rl.Window)
	}
	b.metrics.adminChanges.Inc()
	b.log.Info("rate limits updated",
		log.Int("count", len(limits)),
	)
	return nil
}

// SetTreasury redirects future commissions to [treasury].
func (b *Bridge) SetTreasury(caller ids.ShortID, treasury ids.ShortID) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	if treasury == ids.ShortEmpty {
		return fmt.Errorf("%w: treasury", ErrZeroAddress)
	}

	b.treasury = treasury
	b.metrics.adminChanges.Inc()
	b.log.Info("treasury updated",
		log.Stringer("treasury", treasury),
	)
	return nil
}

// TransferOwnership hands the admin surface to [newOwner].
func (b *Bridge) TransferOwnership(caller ids.ShortID, newOwner ids.ShortID) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if err := b.onlyOwner(caller); err != nil {
		return err
	}
	if newOwner == ids.ShortEmpty {
		return fmt.Errorf("%w: new owner", ErrZeroAddress)
	}

	b.owner = newOwner
	b.metrics.adminChanges.Inc()
	b.log.Info("ownership transferred",
		log.Stringer("owner", newOwner),
	)
	return nil
}

// GetDestination returns a copy of the configuration for [chainID].
func (b *Bridge) GetDestination(chainID ids.ID) (Destination, error) {
	if err := b.guard.enter(); err != nil {
		return Destination{}, err
	}
	defer b.guard.exit()

	dest, ok := b.destinations[chainID]
	if !ok {
		return Destination{}, fmt.Errorf("%w: %s", ErrUnknownDestination, chainID)
	}
	return *dest, nil
}
