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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"abtest/internal/abtest/assignstore"
	"abtest/internal/abtest/assignsvc"
	"abtest/internal/abtest/eventbuffer"
	"abtest/internal/abtest/metricsstore"
	"abtest/pkg/bandit"
)

type fakeBackend struct{}

func (fakeBackend) Dispatch(ctx context.Context, endpointName, targetVariant, contentType string, data []byte) (string, []byte, error) {
	return targetVariant, []byte("predictions"), nil
}

func (fakeBackend) Roster(ctx context.Context, endpointName string) ([]assignsvc.VariantWeight, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	metrics := metricsstore.NewMemoryStore()
	metrics.Register("e1", []string{"ev1", "ev2"}, map[string]float64{"ev1": 1, "ev2": 1}, bandit.WeightedSampling, 0, 0, time.Now())
	assign := assignstore.NewMemoryStore()
	buffer := eventbuffer.NewSyncBuffer(metrics)
	svc := assignsvc.New(metrics, assign, buffer, fakeBackend{}, 90*24*time.Hour)
	return NewServer(svc)
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func newMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func TestHandleInvocation_Success(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, newMux(s), http.MethodPost, "/invocation", map[string]string{
		"endpoint_name": "e1",
		"user_id":       "u1",
	})
	if rec.Code != assignsvc.StatusAssigned {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, assignsvc.StatusAssigned, rec.Body.String())
	}
	var out invocationResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.EndpointVariant == "" {
		t.Fatal("expected a non-empty endpoint_variant")
	}
}

func TestHandleInvocation_MissingUserID_BadRequest(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, newMux(s), http.MethodPost, "/invocation", map[string]string{"endpoint_name": "e1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleInvocation_WrongMethod(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/invocation", nil)
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleInvocation_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/invocation", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleInvocation_UnknownEndpoint_Fallback(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, newMux(s), http.MethodPost, "/invocation", map[string]string{
		"endpoint_name": "missing",
		"user_id":       "u1",
	})
	if rec.Code != assignsvc.StatusFallback {
		t.Fatalf("status = %d, want %d", rec.Code, assignsvc.StatusFallback)
	}
}

func TestHandleInvocation_DegenerateWeights_BadRequest(t *testing.T) {
	metrics := metricsstore.NewMemoryStore()
	metrics.Register("e1", []string{"ev1", "ev2"}, map[string]float64{"ev1": 0, "ev2": 0}, bandit.EpsilonGreedy, 0.1, 0, time.Now())
	assign := assignstore.NewMemoryStore()
	buffer := eventbuffer.NewSyncBuffer(metrics)
	svc := assignsvc.New(metrics, assign, buffer, fakeBackend{}, 90*24*time.Hour)
	s := NewServer(svc)

	rec := doJSON(t, newMux(s), http.MethodPost, "/invocation", map[string]string{
		"endpoint_name": "e1",
		"user_id":       "u1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleConversion_ManualFallback(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, newMux(s), http.MethodPost, "/conversion", map[string]any{
		"endpoint_name":    "e1",
		"user_id":          "u1",
		"endpoint_variant": "ev1",
	})
	if rec.Code != assignsvc.StatusFallback {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, assignsvc.StatusFallback, rec.Body.String())
	}
	var out conversionResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Reward != 1.0 {
		t.Fatalf("Reward = %v, want default 1.0", out.Reward)
	}
}

func TestHandleConversion_MissingBoth_BadRequest(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, newMux(s), http.MethodPost, "/conversion", map[string]string{
		"endpoint_name": "e1",
		"user_id":       "u1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStats_Success(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, newMux(s), http.MethodPost, "/stats", map[string]string{"endpoint_name": "e1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var out statsResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.VariantMetrics) != 2 {
		t.Fatalf("VariantMetrics = %+v, want 2 entries", out.VariantMetrics)
	}
}

func TestHandleStats_UnknownEndpoint_NotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, newMux(s), http.MethodPost, "/stats", map[string]string{"endpoint_name": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
