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

import "math/big"

// weightSigDigits is the number of significant decimal digits a canonicalized
// weight retains. Picking a fixed precision up front is what lets the same
// initial_variant_weight produce identical draws regardless of which
// language wrote the record (DESIGN NOTES, spec.md §9).
const weightSigDigits = 10

// CanonicalizeWeight rounds w to weightSigDigits significant digits using
// round-half-to-even, and returns the decimal string form suitable for
// storage at rest. Use ParseWeight to get back a float64 for computation.
func CanonicalizeWeight(w float64) string {
	bf := new(big.Float).SetPrec(64).SetMode(big.ToNearestEven).SetFloat64(w)
	return bf.Text('g', weightSigDigits)
}

// ParseWeight parses a weight string produced by CanonicalizeWeight (or any
// decimal literal) back into a float64 for use in VariantStat.Weight.
func ParseWeight(s string) (float64, error) {
	bf, _, err := big.ParseFloat(s, 10, 64, big.ToNearestEven)
	if err != nil {
		return 0, err
	}
	f, _ := bf.Float64()
	return f, nil
}
