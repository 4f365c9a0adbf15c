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

// Select dispatches to the named strategy. epsilon is only consulted by
// EpsilonGreedy; callers pass whatever value the endpoint record carries.
func Select(strategy Strategy, variants []VariantStat, epsilon float64, rng *rand.Rand) (string, error) {
	switch strategy {
	case WeightedSampling:
		return WeightedSample(variants, rng)
	case EpsilonGreedy:
		return EpsilonGreedySelect(variants, epsilon, rng)
	case UCB1:
		return UCB1Select(variants)
	case ThompsonSampling:
		return ThompsonSample(variants, rng)
	default:
		return "", ErrUnsupportedStrategy
	}
}
