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

// Package backend provides the one concrete assignsvc.Backend the service
// ships with: a plain HTTP transport against a configurable inference
// front door. spec.md §1 names the inference backend, the cloud-vendor SDK
// glue, and infrastructure provisioning as external collaborators out of
// scope for the core; this package is deliberately thin so swapping in a
// real SDK-backed client later means writing a new Backend, not touching
// assignsvc.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"abtest/internal/abtest/assignsvc"
)

// HTTPBackend dispatches inference requests and roster lookups over plain
// HTTP. baseURL is expected to route to the target endpoint's invocation and
// description front doors (e.g. a reverse proxy in front of the actual
// inference fleet); this package does not speak any cloud vendor's wire
// protocol.
type HTTPBackend struct {
	client  *http.Client
	baseURL string
}

// NewHTTPBackend returns an HTTPBackend calling baseURL, with requestTimeout
// (5s when not positive) as the http.Client timeout of every call; a
// deadline on the caller's context applies as well.
func NewHTTPBackend(baseURL string, requestTimeout time.Duration) *HTTPBackend {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &HTTPBackend{
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
	}
}

// Dispatch POSTs to {baseURL}/endpoints/{endpointName}/invocations, routing
// by targetVariant via an X-Target-Variant header when non-empty (the
// Fallback path leaves it unset, letting the backend choose).
func (b *HTTPBackend) Dispatch(ctx context.Context, endpointName, targetVariant, contentType string, data []byte) (string, []byte, error) {
	u := fmt.Sprintf("%s/endpoints/%s/invocations", b.baseURL, url.PathEscape(endpointName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("build dispatch request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if targetVariant != "" {
		req.Header.Set("X-Target-Variant", targetVariant)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("dispatch to %s: %w", endpointName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("dispatch to %s: unexpected status %d", endpointName, resp.StatusCode)
	}

	endpointVariant := resp.Header.Get("X-Endpoint-Variant")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read dispatch response: %w", err)
	}
	return endpointVariant, body, nil
}

type rosterResponse struct {
	Variants []struct {
		Name          string  `json:"name"`
		CurrentWeight float64 `json:"current_weight"`
	} `json:"variants"`
}

// Roster GETs {baseURL}/endpoints/{endpointName}, decoding its variant list
// and each variant's currently configured weight (SageMaker's
// ProductionVariantSummary.CurrentWeight, surfaced here as current_weight).
func (b *HTTPBackend) Roster(ctx context.Context, endpointName string) ([]assignsvc.VariantWeight, error) {
	u := fmt.Sprintf("%s/endpoints/%s", b.baseURL, url.PathEscape(endpointName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch roster for %s: %w", endpointName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch roster for %s: unexpected status %d", endpointName, resp.StatusCode)
	}

	var out rosterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode roster response: %w", err)
	}
	variants := make([]assignsvc.VariantWeight, 0, len(out.Variants))
	for _, v := range out.Variants {
		variants = append(variants, assignsvc.VariantWeight{Name: v.Name, Weight: v.CurrentWeight})
	}
	return variants, nil
}
