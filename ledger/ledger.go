// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger declares the asset-ledger capabilities the bridge
// consumes. Balance accounting, transfer/approve semantics, and
// permit-style signatures live behind these interfaces; the bridge only
// moves fees, burns on deposit, and mints on withdraw.
package ledger

import (
	"github.com/luxfi/ids"
)

// Ledger is the fungible-asset ledger on one chain.
type Ledger interface {
	// Balance returns the spendable balance of [addr].
	Balance(addr ids.ShortID) uint64
	// Transfer moves [amount] from [from] to [to].
	Transfer(from ids.ShortID, to ids.ShortID, amount uint64) error
	// Mint creates [amount] new units owned by [to].
	Mint(to ids.ShortID, amount uint64) error
	// Burn destroys [amount] units owned by [from].
	Burn(from ids.ShortID, amount uint64) error
	// TotalSupply returns the circulating supply on this chain.
	TotalSupply() uint64
}

// AttestationLedger is a secondary deposit-reporting validator. An asset
// ledger may refuse a mint until the corresponding payload hashes have
// been reported here; that gate is orthogonal to the bridge's own
// replay protection.
type AttestationLedger interface {
	// ReportDeposits records the given payload hashes under [reportID]
	// and returns how many were newly recorded.
	ReportDeposits(reportID ids.ID, payloadHashes []ids.ID) (int, error)
}
