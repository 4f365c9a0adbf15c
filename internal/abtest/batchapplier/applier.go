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

// Package batchapplier implements C5: it is notified when a batch artifact
// is available, reads a gzip-compressed NDJSON sequence of events, groups
// them by (endpoint, variant), and folds the result into C3 (spec.md §4.5).
package batchapplier

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"abtest/internal/abtest/events"
	"abtest/internal/abtest/metricsstore"
	"abtest/internal/abtest/telemetry"
)

// Applier drains batch artifacts into a metrics store. Its background loop
// shape is grounded on the teacher's core.Worker: a stop channel, a
// WaitGroup, and a final drain on Stop instead of a silent goroutine leak.
// Unlike the teacher's time-driven commitLoop, C5 is notification-driven
// (spec.md §4.5): it reacts to a channel of artifact paths rather than a
// periodic scan of in-memory state.
type Applier struct {
	store metricsstore.Store

	invocationsApplied *prometheus.CounterVec
	conversionsApplied *prometheus.CounterVec
	rewardApplied      *prometheus.CounterVec
	artifactErrors     prometheus.Counter

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

// NewApplier returns an Applier backed by store, registering its counters
// against reg (pass prometheus.DefaultRegisterer for the global registry,
// or a fresh prometheus.NewRegistry() in tests).
func NewApplier(store metricsstore.Store, reg prometheus.Registerer) *Applier {
	a := &Applier{
		store:    store,
		stopChan: make(chan struct{}),
		invocationsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abtest_invocations_applied_total",
			Help: "Invocation events folded into the metrics store, by endpoint and variant.",
		}, []string{"endpoint_name", "variant_name"}),
		conversionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abtest_conversions_applied_total",
			Help: "Conversion events folded into the metrics store, by endpoint and variant.",
		}, []string{"endpoint_name", "variant_name"}),
		rewardApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abtest_reward_applied_total",
			Help: "Reward folded into the metrics store, by endpoint and variant.",
		}, []string{"endpoint_name", "variant_name"}),
		artifactErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abtest_batch_artifact_errors_total",
			Help: "Batch artifacts that failed to fold and were left for retry by the enclosing trigger.",
		}),
	}
	reg.MustRegister(a.invocationsApplied, a.conversionsApplied, a.rewardApplied, a.artifactErrors)
	return a
}

// ApplyArtifact reads a gzip-compressed NDJSON stream from r, skips
// malformed or invalid lines, and folds the remaining events as one grouped
// batch. A store failure fails the whole artifact so the caller can retry
// it (spec.md §4.5: "on store failure the whole batch fails").
func (a *Applier) ApplyArtifact(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip artifact: %w", err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var valid []events.Event
	for scanner.Scan() {
		e, err := events.DecodeLine(scanner.Bytes())
		if err != nil {
			// Malformed line: skip it and keep going (spec.md §4.5).
			continue
		}
		if err := e.Validate(); err != nil {
			continue
		}
		valid = append(valid, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan gzip artifact: %w", err)
	}
	if len(valid) == 0 {
		return nil
	}

	deltas := metricsstore.DeltasFromEvents(valid)
	if err := a.store.Fold(deltas, time.Now()); err != nil {
		return fmt.Errorf("fold batch: %w", err)
	}

	for _, d := range deltas {
		if d.DeltaInvocation != 0 {
			a.invocationsApplied.WithLabelValues(d.EndpointName, d.VariantName).Add(float64(d.DeltaInvocation))
		}
		if d.DeltaConversion != 0 {
			a.conversionsApplied.WithLabelValues(d.EndpointName, d.VariantName).Add(float64(d.DeltaConversion))
		}
		if d.DeltaReward != 0 {
			a.rewardApplied.WithLabelValues(d.EndpointName, d.VariantName).Add(d.DeltaReward)
		}
	}
	return nil
}

// ApplyArtifactFile opens path and applies it via ApplyArtifact. The
// artifact's modification time stands in for its production time, so
// ObserveFoldLag reports how far the async pipeline has fallen behind.
func (a *Applier) ApplyArtifactFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer f.Close()

	if info, statErr := f.Stat(); statErr == nil {
		telemetry.ObserveFoldLag(time.Since(info.ModTime()))
	}
	return a.ApplyArtifact(f)
}

// Start launches the background drain loop, which applies each artifact
// path received on notify until Stop is called.
func (a *Applier) Start(notify <-chan string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case path, ok := <-notify:
				if !ok {
					return
				}
				a.applyAndLog(path)
			case <-a.stopChan:
				a.drainPending(notify)
				return
			}
		}
	}()
}

// Stop signals the drain loop to apply whatever is already queued on notify
// and return, then blocks until it has.
func (a *Applier) Stop() {
	if !a.stopped.CompareAndSwap(false, true) {
		return
	}
	close(a.stopChan)
	a.wg.Wait()
}

func (a *Applier) drainPending(notify <-chan string) {
	for {
		select {
		case path, ok := <-notify:
			if !ok {
				return
			}
			a.applyAndLog(path)
		default:
			return
		}
	}
}

func (a *Applier) applyAndLog(path string) {
	if err := a.ApplyArtifactFile(path); err != nil {
		a.artifactErrors.Inc()
		fmt.Printf("ERROR: failed to apply batch artifact %s: %v\n", path, err)
	}
}
