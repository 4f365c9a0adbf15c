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

import (
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// ThompsonSample draws a posterior sample β ~ Beta(1+reward_sum,
// 1+invocation_count-reward_sum) per variant and returns the argmax. The
// store's own invariant (reward_sum <= invocation_count) keeps both Beta
// parameters positive; this function does not re-validate it.
func ThompsonSample(variants []VariantStat, rng *rand.Rand) (string, error) {
	if len(variants) == 0 {
		return "", ErrEmptyVariantSet
	}

	best := 0
	bestDraw := -1.0
	for i, v := range variants {
		alpha := 1 + v.RewardSum
		beta := 1 + float64(v.InvocationCount) - v.RewardSum
		if alpha <= 0 {
			alpha = 1
		}
		if beta <= 0 {
			beta = 1
		}
		dist := distuv.Beta{Alpha: alpha, Beta: beta, Src: rng}
		draw := dist.Rand()
		if draw > bestDraw {
			bestDraw = draw
			best = i
		}
	}
	return variants[best].Name, nil
}
