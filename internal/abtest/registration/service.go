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

// Package registration implements C7: filtering and state-machine handling
// of SageMaker-style endpoint lifecycle notifications (spec.md §4.7). Its
// selector-with-validation shape is grounded on the teacher's
// persistence.BuildPersister: a single function that validates its input
// against a closed set of cases and returns a typed error for anything
// outside it, generalized here from a persister adapter name into a
// status/tag filter chain.
package registration

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"abtest/internal/abtest/apperr"
	"abtest/internal/abtest/assignsvc"
	"abtest/internal/abtest/metricsstore"
	"abtest/pkg/bandit"
)

// Status is the SageMaker endpoint status named in a lifecycle notification.
type Status string

const (
	InService Status = "IN_SERVICE"
	Deleting  Status = "DELETING"
)

// Notification is the decoded detail payload of spec.md §6's lifecycle
// notification: {source, detail-type, detail:{EndpointName, EndpointStatus, Tags}}.
type Notification struct {
	EndpointName string
	Status       Status
	Tags         map[string]string
}

// Result is the disposition of one notification: the HTTP-style status code
// spec.md §4.7/§6 names, whether the filter chain let it through, and
// whether C3.Register reported a prior record.
type Result struct {
	StatusCode int
	Passed     bool
	Existed    bool
}

// RosterFetcher is the subset of assignsvc.Backend the registration service
// needs: fetching the current variant roster, with each variant's configured
// weight, on an IN_SERVICE notification.
type RosterFetcher interface {
	Roster(ctx context.Context, endpointName string) ([]assignsvc.VariantWeight, error)
}

// Service applies spec.md §4.7's filter chain and state machine.
type Service struct {
	metrics        metricsstore.Store
	backend        RosterFetcher
	endpointPrefix string
	stage          string
}

// New returns a Service filtering to notifications whose EndpointName
// begins with endpointPrefix and whose sagemaker:deployment-stage tag
// equals stage.
func New(metrics metricsstore.Store, backend RosterFetcher, endpointPrefix, stage string) *Service {
	return &Service{metrics: metrics, backend: backend, endpointPrefix: endpointPrefix, stage: stage}
}

// Handle applies the filter chain, then the state machine, to n.
func (s *Service) Handle(ctx context.Context, n Notification, now time.Time) (Result, error) {
	if !s.passesFilter(n) {
		return Result{StatusCode: 304, Passed: false}, nil
	}

	switch n.Status {
	case InService:
		return s.handleInService(ctx, n, now)
	case Deleting:
		if err := s.metrics.SoftDelete(n.EndpointName, now); err != nil {
			return Result{}, apperr.New("registration.Handle", apperr.KindStoreTransient, err)
		}
		return Result{StatusCode: 200, Passed: true}, nil
	default:
		return Result{StatusCode: 400, Passed: true}, apperr.New("registration.Handle", apperr.KindInvalidRequest, fmt.Errorf("unsupported endpoint status %q", n.Status))
	}
}

// passesFilter implements spec.md §4.7's three-part filter: prefix match,
// ab-testing:enabled=="true", and a matching deployment stage. All three
// must hold to proceed.
func (s *Service) passesFilter(n Notification) bool {
	if s.endpointPrefix != "" && !hasPrefix(n.EndpointName, s.endpointPrefix) {
		return false
	}
	if n.Tags["ab-testing:enabled"] != "true" {
		return false
	}
	if n.Tags["sagemaker:deployment-stage"] != s.stage {
		return false
	}
	return true
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

// handleInService fetches the variant roster, parses strategy parameters
// from tags, and registers the record. Status 201 when no prior record
// existed, else 200 (spec.md §4.7 "roster refresh").
func (s *Service) handleInService(ctx context.Context, n Notification, now time.Time) (Result, error) {
	roster, err := s.backend.Roster(ctx, n.EndpointName)
	if err != nil {
		return Result{}, apperr.New("registration.Handle", apperr.KindBackendTransient, err)
	}
	if len(roster) == 0 {
		return Result{}, apperr.New("registration.Handle", apperr.KindEmptyVariantSet, fmt.Errorf("endpoint %s reported an empty variant roster", n.EndpointName))
	}

	strategy, epsilon, warmup := strategyParamsFromTags(n.Tags)
	variantNames := make([]string, 0, len(roster))
	weights := make(map[string]float64, len(roster))
	for _, v := range roster {
		variantNames = append(variantNames, v.Name)
		weights[v.Name] = v.Weight
	}

	existed, err := s.metrics.Register(n.EndpointName, variantNames, weights, strategy, epsilon, warmup, now)
	if err != nil {
		return Result{}, apperr.New("registration.Handle", apperr.KindStoreTransient, err)
	}
	status := 201
	if existed {
		status = 200
	}
	return Result{StatusCode: status, Passed: true, Existed: existed}, nil
}

// strategyParamsFromTags reads ab-testing:strategy/epsilon/warmup from tags,
// applying spec.md §4.7's defaults (ThompsonSampling, 0.1, 0) for anything
// missing or unparseable.
func strategyParamsFromTags(tags map[string]string) (bandit.Strategy, float64, int64) {
	strategy := bandit.ThompsonSampling
	if v := bandit.Strategy(tags["ab-testing:strategy"]); v.Valid() {
		strategy = v
	}

	epsilon := 0.1
	if v, err := strconv.ParseFloat(tags["ab-testing:epsilon"], 64); err == nil {
		epsilon = v
	}

	var warmup int64
	if v, err := strconv.ParseInt(tags["ab-testing:warmup"], 10, 64); err == nil {
		warmup = v
	}

	return strategy, epsilon, warmup
}
