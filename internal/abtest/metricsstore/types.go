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

// Package metricsstore implements C3: the per-endpoint record of strategy
// parameters and per-variant counters (spec.md §4.3). It exclusively owns
// EndpointRecord counter mutation — callers never touch a Variant's
// counters directly, only through Register/SoftDelete/Fold.
package metricsstore

import (
	"errors"
	"sort"
	"strings"
	"time"

	"abtest/internal/abtest/events"
	"abtest/pkg/bandit"
)

var (
	ErrEndpointUnknown      = errors.New("metricsstore: endpoint unknown")
	ErrUnsupportedEventType = events.ErrUnsupportedEventType
)

// Variant is the read-side projection of one variant's state. Stores keep
// their own mutable representation internally; Read() always returns a
// snapshot copy so callers can't bypass the store's atomicity.
type Variant struct {
	Name              string
	InitialWeight     float64
	InvocationCount   int64
	ConversionCount   int64
	RewardSum         float64
}

// Stat projects a Variant into the shape pkg/bandit selectors consume.
func (v Variant) Stat() bandit.VariantStat {
	return bandit.VariantStat{
		Name:            v.Name,
		Weight:          v.InitialWeight,
		InvocationCount: v.InvocationCount,
		RewardSum:       v.RewardSum,
	}
}

// EndpointRecord is the read-side projection of one endpoint's full state:
// its strategy parameters, ordered variant roster, and per-variant counters.
type EndpointRecord struct {
	EndpointName string
	Strategy     bandit.Strategy
	Epsilon      float64
	Warmup       int64
	VariantNames []string
	Variants     map[string]Variant
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// FoldDelta is one group's worth of per-variant counter deltas, computed by
// the caller (C5's batch applier) from a batch of events grouped by
// (endpoint_name, variant_name).
//
// CommitID identifies the exact set of underlying events this delta was
// folded from (DeltasFromEvents derives it deterministically). A durable
// Store uses it to make a retried Fold of the same batch a no-op instead of
// double-counting; it is the per-delta analogue of the teacher's
// commit_id-keyed applied_commits guard. Hand-built deltas that leave it
// empty apply unconditionally, same as before this field existed.
type FoldDelta struct {
	EndpointName    string
	VariantName     string
	DeltaInvocation int64
	DeltaConversion int64
	DeltaReward     float64
	CommitID        string
}

// Store is C3's operation set (spec.md §4.3).
type Store interface {
	// Register is an unconditional full-record write. It returns existed=true
	// when a prior record was overwritten (used by C7 to choose 200 vs 201).
	Register(endpointName string, variantNames []string, initialWeights map[string]float64, strategy bandit.Strategy, epsilon float64, warmup int64, ts time.Time) (existed bool, err error)

	// SoftDelete sets deleted_at on the record. The record and its counters
	// are retained; Fold still applies to a soft-deleted record.
	SoftDelete(endpointName string, ts time.Time) error

	// Read returns the full projection for endpointName. Missing records
	// return ErrEndpointUnknown.
	Read(endpointName string) (EndpointRecord, error)

	// Fold applies deltas from a batch of events, one atomic update per
	// (endpoint, variant) group. Unknown event types have already been
	// rejected by the caller before Fold is reached; Fold itself only
	// applies already-validated deltas. ts stamps updated_at (and
	// created_at, if unset) for every touched record.
	Fold(deltas []FoldDelta, ts time.Time) error
}

// DeltasFromEvents groups evs by (endpoint_name, variant_name) in a stable
// sort (spec.md §4.3 "Ordering") and returns one FoldDelta per group. Events
// with an unsupported Type are rejected by events.Event.Validate before
// reaching here; DeltasFromEvents assumes every event already validated.
//
// Each delta's CommitID is derived from the (type, inference_id) pair of
// every event that contributed to it, sorted for order-independence. Folding
// the same set of events twice (a redelivered stream message, a re-applied
// batch artifact) therefore yields the same CommitID both times, letting a
// durable Store recognize and skip the replay.
func DeltasFromEvents(evs []events.Event) []FoldDelta {
	type key struct{ endpoint, variant string }
	order := make([]key, 0, len(evs))
	byKey := map[key]*FoldDelta{}
	commitParts := map[key][]string{}

	for _, e := range evs {
		k := key{e.EndpointName, e.EndpointVariant}
		d, ok := byKey[k]
		if !ok {
			d = &FoldDelta{EndpointName: e.EndpointName, VariantName: e.EndpointVariant}
			byKey[k] = d
			order = append(order, k)
		}
		switch e.Type {
		case events.Invocation:
			d.DeltaInvocation++
		case events.Conversion:
			d.DeltaConversion++
			if e.Reward != nil {
				d.DeltaReward += *e.Reward
			}
		}
		commitParts[k] = append(commitParts[k], string(e.Type)+":"+e.InferenceID)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].endpoint != order[j].endpoint {
			return order[i].endpoint < order[j].endpoint
		}
		return order[i].variant < order[j].variant
	})

	out := make([]FoldDelta, 0, len(order))
	for _, k := range order {
		d := *byKey[k]
		parts := append([]string(nil), commitParts[k]...)
		sort.Strings(parts)
		d.CommitID = k.endpoint + "|" + k.variant + "|" + strings.Join(parts, ",")
		out = append(out, d)
	}
	return out
}
