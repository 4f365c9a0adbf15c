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
	"errors"
	"math"
)

// ErrUCB1NeedsWarmup is returned when a variant has never been invoked.
// UCB1's confidence bonus divides by invocation_count; callers (C6's warmup
// policy) must keep every variant above zero invocations before reaching
// here — this error exists to catch that precondition failing instead of
// silently producing +Inf.
var ErrUCB1NeedsWarmup = errors.New("bandit: UCB1 requires every variant to have invocation_count >= 1")

// UCB1Select picks the variant maximizing mean reward plus an exploration bonus
// proportional to sqrt(2*ln(N)/invocation_count), where N is the total
// invocation count across all variants. Ties go to the lowest index.
func UCB1Select(variants []VariantStat) (string, error) {
	if len(variants) == 0 {
		return "", ErrEmptyVariantSet
	}

	var total int64
	for _, v := range variants {
		if v.InvocationCount < 1 {
			return "", ErrUCB1NeedsWarmup
		}
		total += v.InvocationCount
	}

	logN := math.Log(float64(total))
	best := 0
	bestScore := math.Inf(-1)
	for i, v := range variants {
		bonus := math.Sqrt(2 * logN / float64(v.InvocationCount))
		score := v.meanReward() + bonus
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return variants[best].Name, nil
}
