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
	"math"
	"testing"
)

func TestCanonicalizeWeight_RoundTrips(t *testing.T) {
	cases := []float64{0.9, 0.1, 1.0, 0.333333333333, 123456789.123456}
	for _, w := range cases {
		s := CanonicalizeWeight(w)
		got, err := ParseWeight(s)
		if err != nil {
			t.Fatalf("ParseWeight(%q): %v", s, err)
		}
		// 10 significant digits bound the relative error by 5e-10.
		if math.Abs(got-w) > 1e-9*math.Abs(w) {
			t.Fatalf("CanonicalizeWeight(%v) -> %q -> %v, want ~%v", w, s, got, w)
		}
	}
}

func TestCanonicalizeWeight_Deterministic(t *testing.T) {
	a := CanonicalizeWeight(0.1 + 0.2)
	b := CanonicalizeWeight(0.1 + 0.2)
	if a != b {
		t.Fatalf("CanonicalizeWeight is not deterministic: %q != %q", a, b)
	}
}
