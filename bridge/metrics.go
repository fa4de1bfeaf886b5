// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/luxfi/metric"
)

type metrics struct {
	deposits         metric.Counter
	payloadsReceived metric.Counter
	notarizations    metric.Counter
	withdrawals      metric.Counter
	adminChanges     metric.Counter
}

func newMetrics(registerer metric.Registerer) (*metrics, error) {
	m := &metrics{
		deposits: metric.NewCounter(metric.CounterOpts{
			Name: "deposits",
			Help: "Total number of accepted deposits",
		}),
		payloadsReceived: metric.NewCounter(metric.CounterOpts{
			Name: "payloads_received",
			Help: "Total number of adapter-confirmed payloads",
		}),
		notarizations: metric.NewCounter(metric.CounterOpts{
			Name: "notarizations",
			Help: "Total number of consortium-notarized payloads",
		}),
		withdrawals: metric.NewCounter(metric.CounterOpts{
			Name: "withdrawals",
			Help: "Total number of completed withdrawals",
		}),
		adminChanges: metric.NewCounter(metric.CounterOpts{
			Name: "admin_changes",
			Help: "Total number of accepted administrative changes",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, collector := range []metric.Counter{
		m.deposits,
		m.payloadsReceived,
		m.notarizations,
		m.withdrawals,
		m.adminChanges,
	} {
		if err := registerer.Register(metric.AsCollector(collector)); err != nil {
			return nil, err
		}
	}
	return m, nil
}
