// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics exposes the node's Prometheus collectors: a small
// set of gauges polled from the discovery engine and state controller,
// and counters updated at the points in internal/transfer where bytes
// actually cross the wire.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricKnownPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "landrop",
		Name:      "known_peers",
		Help:      "Number of peers currently in the peer table",
	})
	metricActiveSearches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "landrop",
		Name:      "active_searches",
		Help:      "Number of in-flight search sessions",
	})
	metricFilesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "landrop",
		Name:      "files",
		Help:      "Number of tracked files, by status",
	}, []string{"status"})

	metricBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "landrop",
		Subsystem: "transfer",
		Name:      "bytes_sent_total",
		Help:      "Total bytes streamed to remote consumers",
	})
	metricBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "landrop",
		Subsystem: "transfer",
		Name:      "bytes_received_total",
		Help:      "Total bytes written from remote providers",
	})
	metricTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "landrop",
		Subsystem: "transfer",
		Name:      "transfers_total",
		Help:      "Total completed transfers, by outcome",
	}, []string{"outcome"})
)

// BytesSent records n bytes streamed out by the transfer server.
func BytesSent(n int) {
	metricBytesSent.Add(float64(n))
}

// BytesReceived records n bytes written by the transfer client.
func BytesReceived(n int) {
	metricBytesReceived.Add(float64(n))
}

// TransferCompleted records the outcome of one finished transfer.
func TransferCompleted(outcome string) {
	metricTransfersTotal.WithLabelValues(outcome).Inc()
}

// Source is the subset of the state controller's and discovery
// engine's contract the poller needs: it is an interface so this
// package doesn't import internal/filestate.
type Source interface {
	PeerCount() int
	ActiveSearchCount() int
	FileStatusCounts() map[string]int
}

// Poller is a suture.Service that samples Source on an interval and
// updates the gauges above; counters are updated directly as events
// happen, the byte counters by the transfer package and the
// transfers counter by the state controller.
type Poller struct {
	src      Source
	interval time.Duration
}

func NewPoller(src Source, interval time.Duration) *Poller {
	return &Poller{src: src, interval: interval}
}

func (p *Poller) String() string {
	return "metrics.Poller"
}

func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sample()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sample()
		}
	}
}

func (p *Poller) sample() {
	metricKnownPeers.Set(float64(p.src.PeerCount()))
	metricActiveSearches.Set(float64(p.src.ActiveSearchCount()))
	for status, count := range p.src.FileStatusCounts() {
		metricFilesByStatus.WithLabelValues(status).Set(float64(count))
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
