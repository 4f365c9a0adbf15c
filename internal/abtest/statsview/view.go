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

// Package statsview is C8's read-model half: a thin, non-blocking
// projection of C3's counters (spec.md §4.8). It never mutates state, so it
// never contends with the write path.
package statsview

import (
	"sort"

	"abtest/internal/abtest/metricsstore"
)

// VariantSummary is one variant's projected counters plus its derived mean
// reward, the quantity every bandit strategy ultimately optimizes.
type VariantSummary struct {
	VariantName     string
	InvocationCount int64
	ConversionCount int64
	RewardSum       float64
	MeanReward      float64
}

// EndpointSummary is the full read-model for one endpoint.
type EndpointSummary struct {
	EndpointName string
	Variants     []VariantSummary
}

// View projects metricsstore.Store into read-only summaries.
type View struct {
	metrics metricsstore.Store
}

// New returns a View backed by store.
func New(store metricsstore.Store) *View {
	return &View{metrics: store}
}

// Endpoint projects the current state of endpointName. Returns
// metricsstore.ErrEndpointUnknown unchanged when the record doesn't exist.
func (v *View) Endpoint(endpointName string) (EndpointSummary, error) {
	rec, err := v.metrics.Read(endpointName)
	if err != nil {
		return EndpointSummary{}, err
	}
	return summarize(rec), nil
}

func summarize(rec metricsstore.EndpointRecord) EndpointSummary {
	out := EndpointSummary{EndpointName: rec.EndpointName}
	names := append([]string(nil), rec.VariantNames...)
	sort.Strings(names)
	for _, name := range names {
		vr := rec.Variants[name]
		mean := 0.0
		if vr.InvocationCount > 0 {
			mean = vr.RewardSum / float64(vr.InvocationCount)
		}
		out.Variants = append(out.Variants, VariantSummary{
			VariantName:     vr.Name,
			InvocationCount: vr.InvocationCount,
			ConversionCount: vr.ConversionCount,
			RewardSum:       vr.RewardSum,
			MeanReward:      mean,
		})
	}
	return out
}
