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

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"abtest/pkg/bandit"
)

func TestObserve_NoOpWhenDisabled(t *testing.T) {
	Enable(Config{Enabled: false})
	before := testutil.ToFloat64(invocationsTotal)
	ObserveInvocation()
	ObserveFallback()
	ObserveSelection(bandit.UCB1)
	after := testutil.ToFloat64(invocationsTotal)
	if after != before {
		t.Fatalf("invocationsTotal changed while disabled: before=%v after=%v", before, after)
	}
}

func TestObserve_RecordsWhenEnabled(t *testing.T) {
	Enable(Config{Enabled: true})
	t.Cleanup(func() { Enable(Config{Enabled: false}) })

	beforeInv := testutil.ToFloat64(invocationsTotal)
	beforeFallback := testutil.ToFloat64(fallbackTotal)
	beforeSel := testutil.ToFloat64(selectionsByStrategy.WithLabelValues(string(bandit.EpsilonGreedy)))

	ObserveInvocation()
	ObserveFallback()
	ObserveSelection(bandit.EpsilonGreedy)

	if got := testutil.ToFloat64(invocationsTotal) - beforeInv; got != 1 {
		t.Fatalf("invocationsTotal delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(fallbackTotal) - beforeFallback; got != 1 {
		t.Fatalf("fallbackTotal delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(selectionsByStrategy.WithLabelValues(string(bandit.EpsilonGreedy))) - beforeSel; got != 1 {
		t.Fatalf("selectionsByStrategy delta = %v, want 1", got)
	}
}

func TestObserveFoldLag_SetsGauge(t *testing.T) {
	Enable(Config{Enabled: true})
	t.Cleanup(func() { Enable(Config{Enabled: false}) })

	ObserveFoldLag(42 * time.Second)
	if got := testutil.ToFloat64(foldLagSeconds); got != 42 {
		t.Fatalf("foldLagSeconds = %v, want 42", got)
	}
}

func TestCounterValueAndGaugeValue(t *testing.T) {
	Enable(Config{Enabled: true})
	t.Cleanup(func() { Enable(Config{Enabled: false}) })

	ObserveFoldLag(7 * time.Second)
	if got := gaugeValue(foldLagSeconds); got != 7 {
		t.Fatalf("gaugeValue = %v, want 7", got)
	}
	before := counterValue(invocationsTotal)
	ObserveInvocation()
	if got := counterValue(invocationsTotal) - before; got != 1 {
		t.Fatalf("counterValue delta = %v, want 1", got)
	}
}

func TestExporterLoop_StartStop(t *testing.T) {
	Enable(Config{Enabled: true, LogInterval: 5 * time.Millisecond})
	time.Sleep(15 * time.Millisecond)
	Enable(Config{Enabled: false}) // must stop the loop without panicking
}
