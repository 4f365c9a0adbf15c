// Copyright 2026 The Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry is C8's observability half: process-wide Prometheus
// counters plus a periodic structured-log exporter, grounded on the
// teacher's internal/ratelimiter/telemetry/churn package (Config struct,
// Enable/no-op-when-disabled gating, prometheus.MustRegister in init, a
// standalone /metrics endpoint, and a ticker-driven log loop). Repointed
// here at bandit/fold KPIs — selections by strategy, fallback rate, fold
// lag — instead of churn's write-reduction estimate.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"abtest/pkg/bandit"
)

// Config controls the telemetry module. When Enabled is false every public
// function is a no-op, matching the teacher's "safe to call from hot paths"
// contract for churn.Config.
type Config struct {
	Enabled     bool
	MetricsAddr string        // non-empty starts a standalone /metrics server
	LogInterval time.Duration // 0 disables the periodic log exporter
}

var (
	modMu      sync.Mutex
	modEnabled bool
	exporterCancel context.CancelFunc

	selectionsByStrategy = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abtest_selections_total",
		Help: "Variant selections made by assignsvc, by bandit strategy.",
	}, []string{"strategy"})
	fallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "abtest_fallback_total",
		Help: "Invocations served via the Fallback path (unreadable endpoint or manual override).",
	})
	invocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "abtest_invocations_total",
		Help: "Total invocations handled by assignsvc, across all dispositions.",
	})
	foldLagSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "abtest_fold_lag_seconds",
		Help: "Age, in seconds, of the most recently applied batch artifact at apply time.",
	})
)

func init() {
	prometheus.MustRegister(selectionsByStrategy, fallbackTotal, invocationsTotal, foldLagSeconds)
}

// Enable configures the module. Safe to call multiple times; a later call
// replaces the prior configuration and restarts the exporter loop.
func Enable(cfg Config) {
	modMu.Lock()
	defer modMu.Unlock()

	modEnabled = cfg.Enabled
	if exporterCancel != nil {
		exporterCancel()
		exporterCancel = nil
	}
	if cfg.Enabled && cfg.LogInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		exporterCancel = cancel
		go exporterLoop(ctx, cfg.LogInterval)
	}
	if cfg.Enabled && cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether the telemetry module is active.
func Enabled() bool {
	modMu.Lock()
	defer modMu.Unlock()
	return modEnabled
}

// ObserveSelection records one variant selection made under strategy.
func ObserveSelection(strategy bandit.Strategy) {
	if !Enabled() {
		return
	}
	selectionsByStrategy.WithLabelValues(string(strategy)).Inc()
}

// ObserveInvocation records one invocation, of any disposition.
func ObserveInvocation() {
	if !Enabled() {
		return
	}
	invocationsTotal.Inc()
}

// ObserveFallback records one invocation served via the Fallback path.
func ObserveFallback() {
	if !Enabled() {
		return
	}
	fallbackTotal.Inc()
}

// ObserveFoldLag records the age of a batch artifact at the moment it was
// applied by C5, so operators can see how far behind the async pipeline has
// fallen.
func ObserveFoldLag(age time.Duration) {
	if !Enabled() {
		return
	}
	foldLagSeconds.Set(age.Seconds())
}

// Handler returns the promhttp handler for mounting /metrics on an existing
// mux, for deployments that run one HTTP server rather than the teacher's
// standalone metrics port.
func Handler() http.Handler {
	return promhttp.Handler()
}

// startMetricsEndpoint exposes /metrics on addr in a background goroutine,
// for deployments that want telemetry on its own port (the teacher's
// startMetricsEndpoint shape).
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

// exporterLoop periodically logs a structured summary of the counters,
// generalizing the teacher's churn.exporterLoop (ticker + stop channel)
// from a rendered terminal summary to one slog line per tick.
func exporterLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			slog.Info("abtest telemetry snapshot",
				"invocations_total", counterValue(invocationsTotal),
				"fallback_total", counterValue(fallbackTotal),
				"fold_lag_seconds", gaugeValue(foldLagSeconds),
			)
		case <-ctx.Done():
			return
		}
	}
}

// counterValue reads a Counter's current value via its Write method, the
// supported way to inspect a metric outside of a scrape (prometheus.Counter
// exposes no direct getter).
func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
