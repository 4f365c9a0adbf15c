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

// EpsilonGreedySelect explores uniformly at random with probability epsilon and
// otherwise exploits the variant with the highest mean reward
// (reward_sum/invocation_count). Ties go to the lowest index in variants,
// i.e. the caller's canonical order.
func EpsilonGreedySelect(variants []VariantStat, epsilon float64, rng *rand.Rand) (string, error) {
	if len(variants) == 0 {
		return "", ErrEmptyVariantSet
	}
	if epsilon < 0 || epsilon > 1 {
		return "", ErrInvalidEpsilon
	}

	if rng.Float64() < epsilon {
		return variants[rng.Intn(len(variants))].Name, nil
	}

	best := 0
	bestMean := variants[0].meanReward()
	for i := 1; i < len(variants); i++ {
		if m := variants[i].meanReward(); m > bestMean {
			bestMean = m
			best = i
		}
	}
	return variants[best].Name, nil
}
