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

package bandit

import "math/rand"

// WeightedSample draws one variant name with probability proportional to its
// Weight. Weights must be non-negative; if every weight is zero it returns
// ErrDegenerateWeights rather than silently falling back to a uniform draw.
func WeightedSample(variants []VariantStat, rng *rand.Rand) (string, error) {
	if len(variants) == 0 {
		return "", ErrEmptyVariantSet
	}

	var total float64
	for _, v := range variants {
		total += v.Weight
	}
	if total <= 0 {
		return "", ErrDegenerateWeights
	}

	draw := rng.Float64() * total
	var acc float64
	for _, v := range variants {
		acc += v.Weight
		if draw < acc {
			return v.Name, nil
		}
	}
	// Floating point rounding can leave draw == total; fall to the last
	// non-zero-weight variant rather than return an empty name.
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Weight > 0 {
			return variants[i].Name, nil
		}
	}
	return variants[len(variants)-1].Name, nil
}
