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

package metricsstore

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"abtest/pkg/bandit"
)

// variantCounters holds one variant's mutable state behind atomics, the
// same technique the teacher's VSA accumulator uses for its single
// scalar/vector pair, generalized here to three named counters. RewardSum
// is a float64 accumulated via a compare-and-swap loop over its bit
// pattern, since sync/atomic has no native float add.
type variantCounters struct {
	name            string
	initialWeight   float64
	invocationCount atomic.Int64
	conversionCount atomic.Int64
	rewardSumBits   atomic.Uint64
}

func newVariantCounters(name string, weight float64) *variantCounters {
	vc := &variantCounters{name: name, initialWeight: weight}
	vc.rewardSumBits.Store(math.Float64bits(0))
	return vc
}

func (vc *variantCounters) addReward(delta float64) {
	if delta == 0 {
		return
	}
	for {
		old := vc.rewardSumBits.Load()
		newVal := math.Float64frombits(old) + delta
		if vc.rewardSumBits.CompareAndSwap(old, math.Float64bits(newVal)) {
			return
		}
	}
}

func (vc *variantCounters) snapshot() Variant {
	return Variant{
		Name:            vc.name,
		InitialWeight:   vc.initialWeight,
		InvocationCount: vc.invocationCount.Load(),
		ConversionCount: vc.conversionCount.Load(),
		RewardSum:       math.Float64frombits(vc.rewardSumBits.Load()),
	}
}

// record is the in-memory mutable shape behind one EndpointRecord
// projection. Guarded by MemoryStore.mu for roster/strategy fields;
// counters within are independently atomic; Fold holds MemoryStore.mu only
// briefly per delta, to stamp updatedAt.
type record struct {
	strategy     bandit.Strategy
	epsilon      float64
	warmup       int64
	variantNames []string
	variants     map[string]*variantCounters
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// MemoryStore is the default, dependency-free Store implementation, used in
// tests and single-process deployments. It is grounded on the teacher's
// core.Store (sync.Map-guarded concurrent map), adapted from a flat
// key->VSA map to endpoint->record->variant nesting.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewMemoryStore returns an empty in-memory metrics store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record)}
}

func (s *MemoryStore) Register(endpointName string, variantNames []string, initialWeights map[string]float64, strategy bandit.Strategy, epsilon float64, warmup int64, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.records[endpointName]

	variants := make(map[string]*variantCounters, len(variantNames))
	for _, name := range variantNames {
		variants[name] = newVariantCounters(name, initialWeights[name])
	}

	s.records[endpointName] = &record{
		strategy:     strategy,
		epsilon:      epsilon,
		warmup:       warmup,
		variantNames: append([]string(nil), variantNames...),
		variants:     variants,
		createdAt:    ts,
		updatedAt:    ts,
	}
	return existed, nil
}

func (s *MemoryStore) SoftDelete(endpointName string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[endpointName]
	if !ok {
		return ErrEndpointUnknown
	}
	if r.deletedAt == nil {
		deletedAt := ts
		r.deletedAt = &deletedAt
	}
	r.updatedAt = ts
	return nil
}

func (s *MemoryStore) Read(endpointName string) (EndpointRecord, error) {
	s.mu.RLock()
	r, ok := s.records[endpointName]
	s.mu.RUnlock()
	if !ok {
		return EndpointRecord{}, ErrEndpointUnknown
	}

	out := EndpointRecord{
		EndpointName: endpointName,
		Strategy:     r.strategy,
		Epsilon:      r.epsilon,
		Warmup:       r.warmup,
		VariantNames: append([]string(nil), r.variantNames...),
		Variants:     make(map[string]Variant, len(r.variants)),
		CreatedAt:    r.createdAt,
		UpdatedAt:    r.updatedAt,
		DeletedAt:    r.deletedAt,
	}
	for name, vc := range r.variants {
		out.Variants[name] = vc.snapshot()
	}
	return out, nil
}

func (s *MemoryStore) Fold(deltas []FoldDelta, ts time.Time) error {
	for _, d := range deltas {
		s.mu.RLock()
		r, ok := s.records[d.EndpointName]
		s.mu.RUnlock()
		if !ok {
			// Events referencing an endpoint that was never registered (or
			// whose registration was lost) are dropped rather than failing
			// the whole batch; spec.md §4.3 only requires unknown *event
			// types* to fail, not unknown endpoints mid-fold.
			continue
		}

		s.mu.RLock()
		vc, ok := r.variants[d.VariantName]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		if d.DeltaInvocation != 0 {
			vc.invocationCount.Add(d.DeltaInvocation)
		}
		if d.DeltaConversion != 0 {
			vc.conversionCount.Add(d.DeltaConversion)
		}
		vc.addReward(d.DeltaReward)

		s.mu.Lock()
		r.updatedAt = ts
		s.mu.Unlock()
	}
	return nil
}
