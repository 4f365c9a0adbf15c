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

// Package bandit implements the pure, stateless decision functions behind
// the A/B-testing service's variant selection: weighted sampling,
// epsilon-greedy, UCB1, and Thompson sampling. None of these functions touch
// a store or a clock; callers assemble a VariantStat slice from whatever
// store they use and inject a PRNG for determinism in tests.
package bandit

import "errors"

// Strategy identifies one of the four closed-set selection algorithms. It
// replaces the class-hierarchy-of-algorithms pattern: the set is closed and
// every caller can switch over it exhaustively instead of dispatching
// through an interface.
type Strategy string

const (
	WeightedSampling Strategy = "WeightedSampling"
	EpsilonGreedy    Strategy = "EpsilonGreedy"
	UCB1             Strategy = "UCB1"
	ThompsonSampling Strategy = "ThompsonSampling"
)

// Valid reports whether s is one of the four known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case WeightedSampling, EpsilonGreedy, UCB1, ThompsonSampling:
		return true
	default:
		return false
	}
}

var (
	ErrEmptyVariantSet  = errors.New("bandit: variant set is empty")
	ErrDegenerateWeights = errors.New("bandit: all variant weights are zero")
	ErrInvalidEpsilon   = errors.New("bandit: epsilon must be in [0,1]")
	ErrUnsupportedStrategy = errors.New("bandit: unsupported strategy")
)

// VariantStat is the minimal per-variant statistic every selector needs.
// Stores project their own record shape into this one at the call site.
type VariantStat struct {
	Name            string
	Weight          float64 // initial_variant_weight
	InvocationCount int64
	RewardSum       float64
}

// meanReward returns reward_sum/invocation_count, or 0 when the variant has
// never been invoked (avoids a division by zero in the argmax loops).
func (v VariantStat) meanReward() float64 {
	if v.InvocationCount == 0 {
		return 0
	}
	return v.RewardSum / float64(v.InvocationCount)
}
