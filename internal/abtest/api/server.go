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

// Package api implements the public-facing HTTP server fronting C6. It
// handles incoming requests, applies the assignment logic by interacting
// with assignsvc.Service, and returns JSON responses. Its route
// registration and ListenAndServe shape is grounded on the teacher's
// internal/ratelimiter/api/server.go, generalized from query-string
// parameters to JSON request bodies (spec.md §6).
package api

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"abtest/internal/abtest/apperr"
	"abtest/internal/abtest/assignsvc"
)

// Server handles the HTTP requests for the assignment service.
type Server struct {
	svc *assignsvc.Service
}

// NewServer creates and configures a new API server wrapping svc.
func NewServer(svc *assignsvc.Service) *Server {
	return &Server{svc: svc}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/invocation", s.handleInvocation)
	mux.HandleFunc("/conversion", s.handleConversion)
	mux.HandleFunc("/stats", s.handleStats)
}

// ListenAndServe starts the HTTP server on the specified address.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("A/B assignment API server listening on %s\n", addr)
	return httpServer.ListenAndServe()
}

type invocationRequestBody struct {
	EndpointName    string `json:"endpoint_name"`
	UserID          string `json:"user_id"`
	InferenceID     string `json:"inference_id,omitempty"`
	EndpointVariant string `json:"endpoint_variant,omitempty"`
	ContentType     string `json:"content_type,omitempty"`
	Data            []byte `json:"data,omitempty"` // base64 per encoding/json convention
}

type invocationResponseBody struct {
	Strategy        string `json:"strategy,omitempty"`
	EndpointName    string `json:"endpoint_name"`
	TargetVariant   string `json:"target_variant,omitempty"`
	EndpointVariant string `json:"endpoint_variant"`
	InferenceID     string `json:"inference_id"`
	UserID          string `json:"user_id"`
	Predictions     []byte `json:"predictions,omitempty"`
}

// handleInvocation serves POST /invocation (spec.md §4.6, §6).
func (s *Server) handleInvocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var body invocationRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	rng := rand.New(rand.NewSource(randSeed()))
	res, err := s.svc.Invoke(r.Context(), assignsvc.InvocationRequest{
		EndpointName:    body.EndpointName,
		UserID:          body.UserID,
		InferenceID:     body.InferenceID,
		EndpointVariant: body.EndpointVariant,
		ContentType:     body.ContentType,
		Data:            body.Data,
	}, time.Now(), rng)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, res.Status, invocationResponseBody{
		Strategy:        string(res.Strategy),
		EndpointName:    res.EndpointName,
		TargetVariant:   res.TargetVariant,
		EndpointVariant: res.EndpointVariant,
		InferenceID:     res.InferenceID,
		UserID:          res.UserID,
		Predictions:     res.Predictions,
	})
}

type conversionRequestBody struct {
	EndpointName    string   `json:"endpoint_name"`
	UserID          string   `json:"user_id"`
	InferenceID     string   `json:"inference_id,omitempty"`
	Reward          *float64 `json:"reward,omitempty"`
	EndpointVariant string   `json:"endpoint_variant,omitempty"`
}

type conversionResponseBody struct {
	Strategy        string  `json:"strategy,omitempty"`
	EndpointName    string  `json:"endpoint_name"`
	EndpointVariant string  `json:"endpoint_variant"`
	InferenceID     string  `json:"inference_id"`
	UserID          string  `json:"user_id"`
	Reward          float64 `json:"reward"`
}

// handleConversion serves POST /conversion (spec.md §4.6, §6).
func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var body conversionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	res, err := s.svc.Convert(r.Context(), assignsvc.ConversionRequest{
		EndpointName:    body.EndpointName,
		UserID:          body.UserID,
		InferenceID:     body.InferenceID,
		Reward:          body.Reward,
		EndpointVariant: body.EndpointVariant,
	}, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, res.Status, conversionResponseBody{
		Strategy:        string(res.Strategy),
		EndpointName:    res.EndpointName,
		EndpointVariant: res.EndpointVariant,
		InferenceID:     res.InferenceID,
		UserID:          res.UserID,
		Reward:          res.Reward,
	})
}

type statsRequestBody struct {
	EndpointName string `json:"endpoint_name"`
}

type variantMetricBody struct {
	VariantName     string  `json:"variant_name"`
	InitialWeight   float64 `json:"initial_weight"`
	InvocationCount int64   `json:"invocation_count"`
	ConversionCount int64   `json:"conversion_count"`
	RewardSum       float64 `json:"reward_sum"`
}

type statsResponseBody struct {
	EndpointName   string              `json:"endpoint_name"`
	Strategy       string              `json:"strategy"`
	Epsilon        float64             `json:"epsilon"`
	Warmup         int64               `json:"warmup"`
	VariantMetrics []variantMetricBody `json:"variant_metrics"`
}

// handleStats serves POST /stats (spec.md §4.6, §6).
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var body statsRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	res, err := s.svc.Stats(assignsvc.StatsRequest{EndpointName: body.EndpointName})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := statsResponseBody{
		EndpointName: res.EndpointName,
		Strategy:     string(res.Strategy),
		Epsilon:      res.Epsilon,
		Warmup:       res.Warmup,
	}
	for _, v := range res.Variants {
		out.VariantMetrics = append(out.VariantMetrics, variantMetricBody{
			VariantName:     v.VariantName,
			InitialWeight:   v.InitialWeight,
			InvocationCount: v.InvocationCount,
			ConversionCount: v.ConversionCount,
			RewardSum:       v.RewardSum,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// writeServiceError maps an apperr.Kind to the HTTP status spec.md §7 names.
func writeServiceError(w http.ResponseWriter, err error) {
	kind, _ := apperr.KindOf(err)
	switch kind {
	case apperr.KindInvalidRequest, apperr.KindInvalidEpsilon, apperr.KindDegenerateWeights,
		apperr.KindEmptyVariantSet, apperr.KindUnsupportedStrategy:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case apperr.KindEndpointUnknown:
		http.Error(w, err.Error(), http.StatusNotFound)
	case apperr.KindStoreTransient, apperr.KindBackendTransient, apperr.KindStreamTransient:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// randSeed draws a per-request seed from crypto/rand (OS entropy) so
// every invocation gets its own *rand.Rand, matching spec.md §5's "no
// process-wide mutable singletons other than configuration" rule. If the
// entropy read fails it falls back to the top-level math/rand source.
func randSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.Int63()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}
