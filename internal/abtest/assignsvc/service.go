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

// Package assignsvc implements C6: the orchestration of lookup, algorithm
// selection, dispatch, and event emission behind /invocation and
// /conversion (spec.md §4.6). Its shape is grounded on the teacher's
// api.handleCheckRateLimit: fetch state, decide, mutate, dispatch, respond,
// emit telemetry — generalized here from a single token-bucket check into
// the full sticky-assignment decision tree.
package assignsvc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"abtest/internal/abtest/apperr"
	"abtest/internal/abtest/assignstore"
	"abtest/internal/abtest/eventbuffer"
	"abtest/internal/abtest/events"
	"abtest/internal/abtest/metricsstore"
	"abtest/internal/abtest/telemetry"
	"abtest/pkg/bandit"
)

// Status mirrors the three dispositions spec.md §4.6 names for /invocation
// and /conversion: StatusReused (200), StatusAssigned (201), StatusFallback
// (202, covering both the Fallback path and manual override).
const (
	StatusReused   = 200
	StatusAssigned = 201
	StatusFallback = 202
)

// InvocationRequest is the decoded body of POST /invocation (spec.md §6).
type InvocationRequest struct {
	EndpointName    string
	UserID          string
	InferenceID     string
	EndpointVariant string // manual override when non-empty
	ContentType     string
	Data            []byte
}

// InvocationResult is the JSON response shape for POST /invocation.
type InvocationResult struct {
	Strategy        bandit.Strategy
	EndpointName    string
	TargetVariant   string
	EndpointVariant string
	InferenceID     string
	UserID          string
	Predictions     []byte
	Status          int
}

// ConversionRequest is the decoded body of POST /conversion.
type ConversionRequest struct {
	EndpointName    string
	UserID          string
	InferenceID     string
	Reward          *float64
	EndpointVariant string // used when no sticky assignment exists (manual mode)
}

// ConversionResult is the JSON response shape for POST /conversion.
type ConversionResult struct {
	Strategy        bandit.Strategy
	EndpointName    string
	EndpointVariant string
	InferenceID     string
	UserID          string
	Reward          float64
	Status          int
}

// StatsRequest is the decoded body of POST /stats.
type StatsRequest struct {
	EndpointName string
}

// VariantMetric is one entry of StatsResult.VariantMetrics.
type VariantMetric struct {
	VariantName     string
	InitialWeight   float64
	InvocationCount int64
	ConversionCount int64
	RewardSum       float64
}

// StatsResult is the JSON response shape for POST /stats.
type StatsResult struct {
	EndpointName string
	Strategy     bandit.Strategy
	Epsilon      float64
	Warmup       int64
	Variants     []VariantMetric
}

// Service is C6: the request-scoped orchestrator wiring C1-C4 together.
// It holds no per-request mutable state; every call is given its own clock
// reading and PRNG, matching spec.md §5's "no process-wide mutable
// singletons other than configuration" rule.
type Service struct {
	metrics metricsstore.Store
	assign  assignstore.Store
	buffer  eventbuffer.Buffer
	backend Backend
	ttl     time.Duration
}

// New returns a Service wiring the given collaborators. ttl is the sticky
// assignment lifetime (spec.md §4.2 default: 90 days, see config.AssignmentTTL).
func New(metrics metricsstore.Store, assign assignstore.Store, buffer eventbuffer.Buffer, backend Backend, ttl time.Duration) *Service {
	return &Service{metrics: metrics, assign: assign, buffer: buffer, backend: backend, ttl: ttl}
}

// Invoke runs the full selection algorithm for spec.md §4.6's /invocation.
// now and rng are caller-supplied so tests can pin both; production callers
// pass time.Now() and a per-request rand.Rand seeded from OS entropy
// (spec.md §5 "Shared-resource policy").
func (s *Service) Invoke(ctx context.Context, req InvocationRequest, now time.Time, rng *rand.Rand) (InvocationResult, error) {
	if req.EndpointName == "" || req.UserID == "" {
		return InvocationResult{}, apperr.New("assignsvc.Invoke", apperr.KindInvalidRequest, fmt.Errorf("endpoint_name and user_id are required"))
	}
	inferenceID := req.InferenceID
	if inferenceID == "" {
		inferenceID = uuid.NewString()
	}

	// Manual override bypasses the algorithm entirely (spec.md §4.6
	// "Manual override"): no endpoint read, no sticky read or write.
	if req.EndpointVariant != "" {
		return s.dispatchAndEmit(ctx, req.EndpointName, req.EndpointVariant, req.UserID, inferenceID, now, "", StatusFallback)
	}

	rec, err := s.metrics.Read(req.EndpointName)
	if err != nil {
		// Fallback: endpoint record unreadable. No sticky write, no target
		// variant; the backend may still be invoked without one.
		return s.dispatchAndEmit(ctx, req.EndpointName, "", req.UserID, inferenceID, now, "", StatusFallback)
	}

	status := StatusReused
	targetVariant, ok, err := s.assign.Get(assignstore.Key{UserID: req.UserID, EndpointName: req.EndpointName}, now)
	if err != nil {
		return InvocationResult{}, apperr.New("assignsvc.Invoke", apperr.KindStoreTransient, err)
	}
	if ok && !variantKnown(rec, targetVariant) {
		ok = false // sticky references a variant no longer in the roster; recompute
	}

	if !ok {
		selected, err := selectVariant(rec, rng)
		if err != nil {
			return InvocationResult{}, apperr.New("assignsvc.Invoke", banditErrKind(err), err)
		}
		targetVariant = selected
		if err := s.assign.Put(assignstore.Key{UserID: req.UserID, EndpointName: req.EndpointName}, targetVariant, now, s.ttl); err != nil {
			return InvocationResult{}, apperr.New("assignsvc.Invoke", apperr.KindStoreTransient, err)
		}
		status = StatusAssigned
	}

	return s.dispatchAndEmit(ctx, req.EndpointName, targetVariant, req.UserID, inferenceID, now, rec.Strategy, status)
}

// dispatchAndEmit calls the backend, emits the resulting invocation event,
// and assembles the response. strategy is the empty Strategy in the
// Fallback/manual paths, where no algorithm ran.
func (s *Service) dispatchAndEmit(ctx context.Context, endpointName, targetVariant, userID, inferenceID string, now time.Time, strategy bandit.Strategy, status int) (InvocationResult, error) {
	endpointVariant, predictions, err := s.backend.Dispatch(ctx, endpointName, targetVariant, "", nil)
	if err != nil {
		return InvocationResult{}, apperr.New("assignsvc.Invoke", apperr.KindBackendTransient, err)
	}
	if endpointVariant == "" {
		endpointVariant = targetVariant
	}

	// A Fallback dispatch for which the backend reported no variant has no
	// variant to count the invocation against, so no event is emitted.
	emit := s.buffer.Accept
	if endpointVariant == "" {
		emit = func(events.Event) error { return nil }
	}
	if err := emit(events.Event{
		Timestamp:       now,
		Type:            events.Invocation,
		EndpointName:    endpointName,
		EndpointVariant: endpointVariant,
		UserID:          userID,
		InferenceID:     inferenceID,
	}); err != nil {
		// Asynchronous emission failures are logged, not surfaced
		// (spec.md §4.4); synchronous failures are a store error the
		// caller should see, so we still return it here.
		if _, async := s.buffer.(*eventbuffer.StreamBuffer); !async {
			return InvocationResult{}, apperr.New("assignsvc.Invoke", apperr.KindStoreTransient, err)
		}
		fmt.Printf("WARN: invocation event emission failed for endpoint=%s user=%s: %v\n", endpointName, userID, err)
	}

	telemetry.ObserveInvocation()
	if status == StatusFallback {
		telemetry.ObserveFallback()
	} else if strategy != "" {
		telemetry.ObserveSelection(strategy)
	}

	return InvocationResult{
		Strategy:        strategy,
		EndpointName:    endpointName,
		TargetVariant:   targetVariant,
		EndpointVariant: endpointVariant,
		InferenceID:     inferenceID,
		UserID:          userID,
		Predictions:     predictions,
		Status:          status,
	}, nil
}

// Convert runs spec.md §4.6's /conversion path: reuse the sticky variant if
// one exists (200); otherwise fall back to the client-supplied variant
// (manual mode, 202). Emission failures here are logged, never surfaced
// (spec.md §5: "Conversion emission failures never fail the client").
func (s *Service) Convert(ctx context.Context, req ConversionRequest, now time.Time) (ConversionResult, error) {
	if req.EndpointName == "" || req.UserID == "" {
		return ConversionResult{}, apperr.New("assignsvc.Convert", apperr.KindInvalidRequest, fmt.Errorf("endpoint_name and user_id are required"))
	}
	inferenceID := req.InferenceID
	if inferenceID == "" {
		inferenceID = uuid.NewString()
	}
	reward := 1.0
	if req.Reward != nil {
		reward = *req.Reward
	}

	endpointVariant := ""
	status := StatusFallback
	if sticky, ok, err := s.assign.Get(assignstore.Key{UserID: req.UserID, EndpointName: req.EndpointName}, now); err == nil && ok {
		endpointVariant = sticky
		status = StatusReused
	} else if req.EndpointVariant != "" {
		endpointVariant = req.EndpointVariant
	} else {
		return ConversionResult{}, apperr.New("assignsvc.Convert", apperr.KindInvalidRequest, fmt.Errorf("no sticky assignment and no endpoint_variant supplied"))
	}

	if err := s.buffer.Accept(events.Event{
		Timestamp:       now,
		Type:            events.Conversion,
		EndpointName:    req.EndpointName,
		EndpointVariant: endpointVariant,
		UserID:          req.UserID,
		InferenceID:     inferenceID,
		Reward:          &reward,
	}); err != nil {
		fmt.Printf("WARN: conversion event emission failed for endpoint=%s user=%s: %v\n", req.EndpointName, req.UserID, err)
	}

	return ConversionResult{
		EndpointName:    req.EndpointName,
		EndpointVariant: endpointVariant,
		InferenceID:     inferenceID,
		UserID:          req.UserID,
		Reward:          reward,
		Status:          status,
	}, nil
}

// Stats serves spec.md §4.6's /stats: a direct projection of C3.read.
func (s *Service) Stats(req StatsRequest) (StatsResult, error) {
	if req.EndpointName == "" {
		return StatsResult{}, apperr.New("assignsvc.Stats", apperr.KindInvalidRequest, fmt.Errorf("endpoint_name is required"))
	}
	rec, err := s.metrics.Read(req.EndpointName)
	if err != nil {
		return StatsResult{}, apperr.New("assignsvc.Stats", apperr.KindEndpointUnknown, err)
	}

	out := StatsResult{EndpointName: rec.EndpointName, Strategy: rec.Strategy, Epsilon: rec.Epsilon, Warmup: rec.Warmup}
	for _, name := range rec.VariantNames {
		v := rec.Variants[name]
		out.Variants = append(out.Variants, VariantMetric{
			VariantName:     name,
			InitialWeight:   v.InitialWeight,
			InvocationCount: v.InvocationCount,
			ConversionCount: v.ConversionCount,
			RewardSum:       v.RewardSum,
		})
	}
	return out, nil
}

func variantKnown(rec metricsstore.EndpointRecord, name string) bool {
	_, ok := rec.Variants[name]
	return ok
}

// selectVariant applies spec.md §4.6 step 4's warmup rule, then dispatches
// to C1. The warmup comparison is inclusive (invocation_count <= warmup),
// the Open Question decision recorded in SPEC_FULL.md and config.WarmupInclusive.
func selectVariant(rec metricsstore.EndpointRecord, rng *rand.Rand) (string, error) {
	stats := make([]bandit.VariantStat, 0, len(rec.VariantNames))
	underwarmed := false
	for _, name := range rec.VariantNames {
		v := rec.Variants[name]
		if v.InvocationCount <= rec.Warmup {
			underwarmed = true
		}
		stats = append(stats, v.Stat())
	}

	strategy := rec.Strategy
	if underwarmed {
		strategy = bandit.WeightedSampling
	}
	return bandit.Select(strategy, stats, rec.Epsilon, rng)
}

// banditErrKind maps a pkg/bandit sentinel to its spec.md §7 disposition.
// bandit.ErrUnsupportedStrategy is the only one that doesn't reach here in
// practice (rec.Strategy is validated at registration time), so it is kept
// as the fallback for anything bandit.Select returns that isn't one of the
// three named C1 sentinels.
func banditErrKind(err error) apperr.Kind {
	switch {
	case errors.Is(err, bandit.ErrInvalidEpsilon):
		return apperr.KindInvalidEpsilon
	case errors.Is(err, bandit.ErrDegenerateWeights):
		return apperr.KindDegenerateWeights
	case errors.Is(err, bandit.ErrEmptyVariantSet):
		return apperr.KindEmptyVariantSet
	default:
		return apperr.KindUnsupportedStrategy
	}
}
