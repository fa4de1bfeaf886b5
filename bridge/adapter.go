// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/luxfi/ids"
)

// Adapter is an optional per-destination transport capability. The
// bridge hands it the net amount and the canonical payload bytes on
// deposit; the adapter is responsible for cross-chain delivery and is
// expected to eventually invoke ReceivePayload on the destination
// bridge with the same payload bytes. An adapter may charge its own
// native-currency fee, quoted by GetFee.
type Adapter interface {
	// GetFee quotes the adapter's delivery fee for the given transfer.
	GetFee(destChain ids.ID, remoteContract ids.ID, to ids.ShortID, amount uint64, payloadBytes []byte) (uint64, error)

	// Deposit hands custody of [amount] from [from] to the adapter for
	// delivery to [to] on [destChain].
	Deposit(from ids.ShortID, destChain ids.ID, remoteContract ids.ID, to ids.ShortID, amount uint64, payloadBytes []byte) error
}
