// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/teleport/flowlimit"
)

// RateLimit is one flow-limit assignment for a remote chain.
type RateLimit struct {
	Chain     ids.ID              `json:"chainID"`
	Direction flowlimit.Direction `json:"direction"`
	Limit     uint64              `json:"limit"`
	Window    time.Duration       `json:"window"`
}

// Config is the one-time initialization payload for a Bridge.
type Config struct {
	// Owner may perform administrative operations.
	Owner ids.ShortID `json:"owner"`
	// Treasury receives deposit commissions.
	Treasury ids.ShortID `json:"treasury"`
	// MaxAbsoluteFee caps the absolute component of any destination's
	// commission. Zero forbids absolute fees entirely.
	MaxAbsoluteFee uint64 `json:"maxAbsoluteFee"`
	// RateLimits bootstraps the flow limiter.
	RateLimits []RateLimit `json:"rateLimits"`
}

// ParseConfig decodes a JSON Config.
func ParseConfig(b []byte) (Config, error) {
	cfg := Config{}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse bridge config: %w", err)
	}
	return cfg, nil
}

// Destination is the per-remote-chain configuration. The remote
// contract identity is immutable once set; fees and the adapter may be
// changed by the owner.
type Destination struct {
	// RemoteContract is the bridge contract on the remote chain.
	RemoteContract ids.ID
	// RelativeFeeBps is the commission in basis points of the deposited
	// amount.
	RelativeFeeBps uint64
	// AbsoluteFee is the flat commission added on top.
	AbsoluteFee uint64
	// Adapter is the optional transport for this destination.
	Adapter Adapter
	// RequireConsortium gates withdrawals on consortium notarization.
	// It is forced on when no adapter is configured, since a
	// destination with neither gate would mint on bare payload bytes.
	RequireConsortium bool
}
