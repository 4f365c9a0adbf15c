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

import "testing"

func TestUCB1Select_EmptySet(t *testing.T) {
	if _, err := UCB1Select(nil); err != ErrEmptyVariantSet {
		t.Fatalf("got err=%v, want ErrEmptyVariantSet", err)
	}
}

func TestUCB1Select_RequiresWarmup(t *testing.T) {
	variants := []VariantStat{{Name: "a", InvocationCount: 0}}
	if _, err := UCB1Select(variants); err != ErrUCB1NeedsWarmup {
		t.Fatalf("got err=%v, want ErrUCB1NeedsWarmup", err)
	}
}

// TestUCB1Select_ExploitsWellSampledBest matches spec.md §8: with N=300
// across (10/100, 20/100, 50/100) mean rewards, UCB1 selects the v=50/100
// variant since its exploitation edge dominates the roughly-equal bonus.
func TestUCB1Select_ExploitsWellSampledBest(t *testing.T) {
	variants := []VariantStat{
		{Name: "v10", InvocationCount: 100, RewardSum: 10},
		{Name: "v20", InvocationCount: 100, RewardSum: 20},
		{Name: "v50", InvocationCount: 100, RewardSum: 50},
	}
	got, err := UCB1Select(variants)
	if err != nil {
		t.Fatalf("UCB1Select: %v", err)
	}
	if got != "v50" {
		t.Fatalf("got %s, want v50", got)
	}
}

// TestUCB1Select_ExplorationBonusFavorsUndersampled matches spec.md §8: with
// (1/10, 2/10, 50/100), the small sample sizes of the first two variants give
// them a much larger exploration bonus, and v=2/10 (better mean among the
// undersampled pair) wins.
func TestUCB1Select_ExplorationBonusFavorsUndersampled(t *testing.T) {
	variants := []VariantStat{
		{Name: "v1in10", InvocationCount: 10, RewardSum: 1},
		{Name: "v2in10", InvocationCount: 10, RewardSum: 2},
		{Name: "v50in100", InvocationCount: 100, RewardSum: 50},
	}
	got, err := UCB1Select(variants)
	if err != nil {
		t.Fatalf("UCB1Select: %v", err)
	}
	if got != "v2in10" {
		t.Fatalf("got %s, want v2in10", got)
	}
}
