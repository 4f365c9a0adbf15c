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

package assignsvc

import "context"

// VariantWeight is one production variant's name and its currently
// configured sampling weight, as the backend's endpoint description reports
// it (SageMaker's DescribeEndpoint ProductionVariantSummary.CurrentWeight,
// per original_source/lambda/api/lambda_register.py's get_endpoint_variants).
type VariantWeight struct {
	Name   string
	Weight float64
}

// Backend is the external inference collaborator named in spec.md §1/§9 as
// out of scope: the core only depends on this interface, never a concrete
// SDK client. It plays the role the teacher's core.Store/Persister pair
// plays for the rate limiter's counter backend — an injected collaborator
// behind a narrow interface, constructed once at startup and handed in.
type Backend interface {
	// Dispatch sends an inference request for endpointName to targetVariant
	// (empty in the Fallback path, where the backend may route on its own)
	// and reports the variant that actually served it. The returned
	// endpointVariant is authoritative for event accounting even when it
	// differs from targetVariant (spec.md §4.6 step 7).
	Dispatch(ctx context.Context, endpointName, targetVariant, contentType string, data []byte) (endpointVariant string, predictions []byte, err error)

	// Roster fetches the current variants and their configured weights for
	// endpointName, used by the registration service (C7) on an IN_SERVICE
	// notification to seed each variant's initial_variant_weight.
	Roster(ctx context.Context, endpointName string) ([]VariantWeight, error)
}
